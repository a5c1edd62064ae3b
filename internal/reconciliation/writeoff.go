package reconciliation

import (
	"fmt"
	"time"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// createWriteoff books the remaining open balance of the lines to the
// requested write-off account and returns the counterpart line on the
// reconciled account, which then joins the matching pass. Returns nil
// when nothing is left to write off.
func (w *worker) createWriteoff(lines []types.MoveLine, req ReconcileRequest,
	company *types.Company, companyCurrency *types.Currency) (*types.MoveLine, error) {

	if req.WriteoffAccountID == "" || req.WriteoffJournalID == "" {
		return nil, types.NewValidationError("write-off requires both an account and a journal")
	}
	account, err := w.account(req.WriteoffAccountID)
	if err != nil {
		return nil, types.NewValidationError("write-off account %s does not exist", req.WriteoffAccountID)
	}
	journal, err := w.db.GetJournal(req.WriteoffJournalID)
	if err != nil {
		return nil, types.NewValidationError("write-off journal %s does not exist", req.WriteoffJournalID)
	}
	if account.CompanyID != company.CompanyID || journal.CompanyID != company.CompanyID {
		return nil, types.NewValidationError("write-off account and journal must belong to company %s", company.CompanyID)
	}

	foreignCode := sharedForeignCurrency(lines)
	companyLeft := decimal.Zero
	currencyLeft := decimal.Zero
	moveDate := lines[0].Date
	for i := range lines {
		res, rErr := w.residual(&lines[i])
		if rErr != nil {
			return nil, rErr
		}
		companyLeft = companyLeft.Add(res.AmountResidual)
		if foreignCode != "" {
			currencyLeft = currencyLeft.Add(res.AmountResidualCurrency)
		}
		if lines[i].Date.After(moveDate) {
			moveDate = lines[i].Date
		}
	}

	open := !companyCurrency.IsZero(companyLeft)
	if foreignCode != "" {
		foreignCurrency, cErr := w.currency(foreignCode)
		if cErr != nil {
			return nil, cErr
		}
		open = open || !foreignCurrency.IsZero(currencyLeft)
	}
	if !open {
		return nil, nil
	}

	move := &types.Move{
		MoveID:    "MOV_" + uuid.New().String(),
		CompanyID: company.CompanyID,
		JournalID: journal.JournalID,
		Ref:       "Write-Off",
		Date:      moveDate,
		State:     types.MoveStatePosted,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	counterpart := types.MoveLine{
		LineID:    "LIN_" + uuid.New().String(),
		MoveID:    move.MoveID,
		CompanyID: company.CompanyID,
		AccountID: lines[0].AccountID,
		PartnerID: lines[0].PartnerID,
		Name:      "Write-Off",
		Debit:     decimal.Zero,
		Credit:    decimal.Zero,
		Date:      moveDate,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	writeoff := types.MoveLine{
		LineID:    "LIN_" + uuid.New().String(),
		MoveID:    move.MoveID,
		CompanyID: company.CompanyID,
		AccountID: account.AccountID,
		PartnerID: lines[0].PartnerID,
		Name:      "Write-Off",
		Debit:     decimal.Zero,
		Credit:    decimal.Zero,
		Date:      moveDate,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if companyLeft.Sign() >= 0 {
		counterpart.Credit = companyLeft
		writeoff.Debit = companyLeft
	} else {
		counterpart.Debit = companyLeft.Neg()
		writeoff.Credit = companyLeft.Neg()
	}
	if foreignCode != "" {
		counterpart.CurrencyCode = foreignCode
		counterpart.AmountCurrency = currencyLeft.Neg()
		writeoff.CurrencyCode = foreignCode
		writeoff.AmountCurrency = currencyLeft
	}

	if err := w.db.CreateMoveWithLines(move, []types.MoveLine{counterpart, writeoff}); err != nil {
		return nil, fmt.Errorf("failed to create write-off move: %w", err)
	}

	log.Info().
		Str("move_id", move.MoveID).
		Str("account_id", account.AccountID).
		Str("amount", companyLeft.String()).
		Str("service", "reconciliation").
		Msg("booked write-off entry")
	return &counterpart, nil
}
