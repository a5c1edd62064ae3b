package ledger

import (
	"github.com/finbooks/recon-api/internal/types"
	"github.com/shopspring/decimal"
)

type CompanyRequest struct {
	Name              string `json:"name" binding:"required"`
	CurrencyCode      string `json:"currency_code" binding:"required"`
	ExchangeJournalID string `json:"exchange_journal_id"`
	GainAccountID     string `json:"gain_account_id"`
	LossAccountID     string `json:"loss_account_id"`
}

type CurrencyRequest struct {
	Code          string `json:"code" binding:"required"`
	Name          string `json:"name"`
	DecimalPlaces int32  `json:"decimal_places"`
}

type AccountRequest struct {
	CompanyID    string `json:"company_id" binding:"required"`
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name"`
	InternalType string `json:"internal_type"`
	Reconcilable bool   `json:"reconcilable"`
}

type JournalRequest struct {
	CompanyID string `json:"company_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name"`
	Type      string `json:"type"`
}

type MoveLineRequest struct {
	AccountID      string          `json:"account_id" binding:"required"`
	PartnerID      string          `json:"partner_id"`
	Name           string          `json:"name"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	CurrencyCode   string          `json:"currency_code"`
	AmountCurrency decimal.Decimal `json:"amount_currency"`
}

type MoveRequest struct {
	JournalID string            `json:"journal_id" binding:"required"`
	Ref       string            `json:"ref"`
	Date      string            `json:"date" binding:"required"` // YYYY-MM-DD
	Lines     []MoveLineRequest `json:"lines" binding:"required"`
}

type MoveResponse struct {
	Move  *types.Move      `json:"move"`
	Lines []types.MoveLine `json:"lines"`
}
