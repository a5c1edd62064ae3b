package reconciliation

import (
	"fmt"
	"time"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// createExchangeMove books the entry that absorbs the leftovers of a
// group that is exhausted in its matching unit but not in the other one.
// Each open line gets a correcting line on its own account carrying the
// negated residuals, balanced by a counterpart on the company's gain or
// loss account, plus a partial tying the pair together. After the entry
// is posted every line in the group is fully settled in both units.
//
// Returns the move, the correcting lines that join the reconcile group,
// and the partials created.
func (w *worker) createExchangeMove(group []types.MoveLine, residuals map[string]Residual,
	company *types.Company, companyCurrency *types.Currency) (*types.Move, []types.MoveLine, []types.PartialReconcile, error) {

	if company.ExchangeJournalID == "" || company.GainAccountID == "" || company.LossAccountID == "" {
		return nil, nil, nil, types.NewConfigurationError("company %s has no exchange difference journal and accounts configured", company.CompanyID)
	}
	journal, err := w.db.GetJournal(company.ExchangeJournalID)
	if err != nil {
		return nil, nil, nil, types.NewConfigurationError("exchange journal %s does not exist", company.ExchangeJournalID)
	}
	if _, err := w.account(company.GainAccountID); err != nil {
		return nil, nil, nil, types.NewConfigurationError("exchange gain account %s does not exist", company.GainAccountID)
	}
	if _, err := w.account(company.LossAccountID); err != nil {
		return nil, nil, nil, types.NewConfigurationError("exchange loss account %s does not exist", company.LossAccountID)
	}

	// The entry is dated at the most recent line of the group so the
	// difference lands in the period that produced it.
	moveDate := group[0].Date
	for i := range group {
		if group[i].Date.After(moveDate) {
			moveDate = group[i].Date
		}
	}

	move := &types.Move{
		MoveID:    "MOV_" + uuid.New().String(),
		CompanyID: company.CompanyID,
		JournalID: journal.JournalID,
		Ref:       "Exchange Difference",
		Date:      moveDate,
		State:     types.MoveStatePosted,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	var moveLines []types.MoveLine
	var correcting []types.MoveLine
	var partials []types.PartialReconcile

	for i := range group {
		line := &group[i]
		res := residuals[line.LineID]
		companyLeft := res.AmountResidual
		currencyLeft := res.AmountResidualCurrency
		if companyLeft.Sign() == 0 && (!line.HasForeignCurrency() || currencyLeft.Sign() == 0) {
			continue
		}

		correction := types.MoveLine{
			LineID:    "LIN_" + uuid.New().String(),
			MoveID:    move.MoveID,
			CompanyID: company.CompanyID,
			AccountID: line.AccountID,
			PartnerID: line.PartnerID,
			Name:      fmt.Sprintf("Exchange difference for %s", line.LineID),
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
			Date:      moveDate,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		switch {
		case companyLeft.Sign() > 0:
			correction.Credit = companyLeft
		case companyLeft.Sign() < 0:
			correction.Debit = companyLeft.Neg()
		}
		if line.HasForeignCurrency() {
			correction.CurrencyCode = line.CurrencyCode
			correction.AmountCurrency = currencyLeft.Neg()
		}

		// Debit leftovers are written off as a loss, credit leftovers as
		// a gain. A pure currency leftover follows the currency sign.
		orientation := companyLeft.Sign()
		if orientation == 0 {
			orientation = currencyLeft.Sign()
		}
		counterAccountID := company.GainAccountID
		if orientation > 0 {
			counterAccountID = company.LossAccountID
		}
		counterpart := types.MoveLine{
			LineID:    "LIN_" + uuid.New().String(),
			MoveID:    move.MoveID,
			CompanyID: company.CompanyID,
			AccountID: counterAccountID,
			PartnerID: line.PartnerID,
			Name:      fmt.Sprintf("Exchange difference for %s", line.LineID),
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
			Date:      moveDate,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		switch {
		case companyLeft.Sign() > 0:
			counterpart.Debit = companyLeft
		case companyLeft.Sign() < 0:
			counterpart.Credit = companyLeft.Neg()
		}
		if line.HasForeignCurrency() {
			counterpart.CurrencyCode = line.CurrencyCode
			counterpart.AmountCurrency = currencyLeft
		}

		partialCurrency := companyCurrency.Code
		partialAmountCurrency := companyLeft.Abs()
		if line.HasForeignCurrency() {
			partialCurrency = line.CurrencyCode
			partialAmountCurrency = currencyLeft.Abs()
		}
		partial := types.PartialReconcile{
			PartialID:      "PRC_" + uuid.New().String(),
			CompanyID:      company.CompanyID,
			Amount:         companyLeft.Abs(),
			AmountCurrency: partialAmountCurrency,
			CurrencyCode:   partialCurrency,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if orientation > 0 {
			partial.DebitLineID = line.LineID
			partial.CreditLineID = correction.LineID
		} else {
			partial.DebitLineID = correction.LineID
			partial.CreditLineID = line.LineID
		}

		moveLines = append(moveLines, correction, counterpart)
		correcting = append(correcting, correction)
		partials = append(partials, partial)
	}

	if err := w.db.CreateMoveWithLines(move, moveLines); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create exchange difference move: %w", err)
	}
	for i := range partials {
		if err := w.db.CreatePartial(&partials[i]); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create exchange partial: %w", err)
		}
	}

	log.Info().
		Str("move_id", move.MoveID).
		Str("journal_id", journal.JournalID).
		Int("lines", len(moveLines)).
		Str("service", "reconciliation").
		Msg("booked exchange difference entry")
	return move, correcting, partials, nil
}
