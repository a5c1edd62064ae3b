package reconciliation

import (
	"github.com/finbooks/recon-api/internal/types"
	"github.com/shopspring/decimal"
)

// ReconcileRequest names the lines to settle against each other. When a
// write-off account and journal are supplied, any leftover balance is
// booked there instead of being left open.
type ReconcileRequest struct {
	LineIDs           []string `json:"line_ids" binding:"required,min=2"`
	WriteoffAccountID string   `json:"writeoff_account_id,omitempty"`
	WriteoffJournalID string   `json:"writeoff_journal_id,omitempty"`
}

type ReconcileResult struct {
	Partials      []types.PartialReconcile `json:"partials"`
	FullReconcile *FullReconcileDetail     `json:"full_reconcile,omitempty"`
}

type FullReconcileDetail struct {
	FullReconcileID string   `json:"full_reconcile_id"`
	ExchangeMoveID  string   `json:"exchange_move_id,omitempty"`
	LineIDs         []string `json:"line_ids"`
	PartialIDs      []string `json:"partial_ids"`
}

// UnreconcileRequest tears down either a whole full reconciliation or a
// set of individual partials. VoidExchangeMove controls whether the
// exchange difference entry of a broken full reconciliation is reversed.
type UnreconcileRequest struct {
	FullReconcileID  string   `json:"full_reconcile_id,omitempty"`
	PartialIDs       []string `json:"partial_ids,omitempty"`
	VoidExchangeMove *bool    `json:"void_exchange_move,omitempty"`
}

type UnreconcileResult struct {
	RemovedPartialIDs       []string `json:"removed_partial_ids"`
	RemovedFullReconcileIDs []string `json:"removed_full_reconcile_ids,omitempty"`
	ReversalMoveIDs         []string `json:"reversal_move_ids,omitempty"`
}

// Residual is the open remainder of a single line, in company units and
// in the line's own currency.
type Residual struct {
	LineID                 string          `json:"line_id"`
	AmountResidual         decimal.Decimal `json:"amount_residual"`
	AmountResidualCurrency decimal.Decimal `json:"amount_residual_currency"`
	CurrencyCode           string          `json:"currency_code,omitempty"`
	Reconciled             bool            `json:"reconciled"`
}
