package reconciliation

import (
	"fmt"
	"time"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Unreconcile tears a settlement back open. Given a full reconciliation
// it removes every partial it covers; given individual partials it
// removes just those, dissolving any full reconciliation they were part
// of. A dissolved closure's exchange difference entry is reversed unless
// the caller opts out, and the reversal is settled against the original
// correcting lines so the account does not accumulate open noise.
func (s *Service) Unreconcile(req UnreconcileRequest) (*UnreconcileResult, error) {
	logger := log.With().
		Str("full_reconcile_id", req.FullReconcileID).
		Strs("partial_ids", req.PartialIDs).
		Str("service", "reconciliation").
		Logger()

	if (req.FullReconcileID == "") == (len(req.PartialIDs) == 0) {
		return nil, types.NewValidationError("provide either a full reconciliation or a list of partials")
	}
	voidExchange := true
	if req.VoidExchangeMove != nil {
		voidExchange = *req.VoidExchangeMove
	}

	result := &UnreconcileResult{}
	err := s.db.GormDB().Transaction(func(tx *gorm.DB) error {
		w := newWorker(s.db.WithTx(tx))
		if req.FullReconcileID != "" {
			return w.unreconcileFull(req.FullReconcileID, voidExchange, result)
		}
		return w.unreconcilePartials(req.PartialIDs, voidExchange, result)
	})
	if err != nil {
		logger.Error().Err(err).Msg("unreconcile failed")
		return nil, err
	}

	logger.Info().
		Int("removed_partials", len(result.RemovedPartialIDs)).
		Msg("unreconcile complete")
	return result, nil
}

func (w *worker) unreconcileFull(fullReconcileID string, voidExchange bool, result *UnreconcileResult) error {
	full, err := w.db.GetFullReconcile(fullReconcileID)
	if err != nil {
		return types.NewValidationError("full reconciliation %s does not exist", fullReconcileID)
	}
	remaining, err := w.breakFull(full, voidExchange, result)
	if err != nil {
		return err
	}
	for i := range remaining {
		if err := w.db.DeletePartial(&remaining[i]); err != nil {
			return fmt.Errorf("failed to delete partial: %w", err)
		}
		result.RemovedPartialIDs = append(result.RemovedPartialIDs, remaining[i].PartialID)
	}
	return nil
}

func (w *worker) unreconcilePartials(partialIDs []string, voidExchange bool, result *UnreconcileResult) error {
	removed := make(map[string]struct{})
	for _, partialID := range dedupe(partialIDs) {
		if _, ok := removed[partialID]; ok {
			continue
		}
		partial, err := w.db.GetPartial(partialID)
		if err != nil {
			return types.NewValidationError("partial %s does not exist", partialID)
		}
		if partial.FullReconcileID != "" {
			full, fErr := w.db.GetFullReconcile(partial.FullReconcileID)
			if fErr != nil {
				return fErr
			}
			if _, bErr := w.breakFull(full, voidExchange, result); bErr != nil {
				return bErr
			}
			for _, id := range result.RemovedPartialIDs {
				removed[id] = struct{}{}
			}
			if _, ok := removed[partialID]; ok {
				continue
			}
		}
		if err := w.db.DeletePartial(partial); err != nil {
			return fmt.Errorf("failed to delete partial: %w", err)
		}
		result.RemovedPartialIDs = append(result.RemovedPartialIDs, partialID)
		removed[partialID] = struct{}{}
	}
	return nil
}

// breakFull dissolves a full reconciliation: it clears the closure
// reference from its lines and partials, deletes the record, and handles
// the exchange difference entry. The exchange entry's own partials are
// always removed with the closure; the remaining partials of the group
// are returned untouched for the caller to decide over.
func (w *worker) breakFull(full *types.FullReconcile, voidExchange bool, result *UnreconcileResult) ([]types.PartialReconcile, error) {
	lines, err := w.db.GetLinesOfFull(full.FullReconcileID)
	if err != nil {
		return nil, err
	}
	partials, err := w.db.GetPartialsOfFull(full.FullReconcileID)
	if err != nil {
		return nil, err
	}

	for i := range lines {
		if err := w.db.MarkLineReconciled(lines[i].LineID, ""); err != nil {
			return nil, err
		}
	}
	for i := range partials {
		if err := w.db.MarkPartialReconciled(partials[i].PartialID, ""); err != nil {
			return nil, err
		}
	}
	if err := w.db.DeleteFullReconcile(full); err != nil {
		return nil, fmt.Errorf("failed to delete full reconcile: %w", err)
	}
	result.RemovedFullReconcileIDs = append(result.RemovedFullReconcileIDs, full.FullReconcileID)

	var remaining []types.PartialReconcile
	if full.ExchangeMoveID == "" {
		return partials, nil
	}

	exchangeLines, err := w.db.GetMoveLines(full.ExchangeMoveID)
	if err != nil {
		return nil, err
	}
	exchangeLineIDs := make(map[string]struct{}, len(exchangeLines))
	for i := range exchangeLines {
		exchangeLineIDs[exchangeLines[i].LineID] = struct{}{}
	}
	for i := range partials {
		partial := partials[i]
		_, onDebit := exchangeLineIDs[partial.DebitLineID]
		_, onCredit := exchangeLineIDs[partial.CreditLineID]
		if onDebit || onCredit {
			if err := w.db.DeletePartial(&partial); err != nil {
				return nil, fmt.Errorf("failed to delete exchange partial: %w", err)
			}
			result.RemovedPartialIDs = append(result.RemovedPartialIDs, partial.PartialID)
		} else {
			remaining = append(remaining, partial)
		}
	}

	if voidExchange {
		reversalID, revErr := w.reverseExchangeMove(full.ExchangeMoveID, exchangeLines)
		if revErr != nil {
			return nil, revErr
		}
		result.ReversalMoveIDs = append(result.ReversalMoveIDs, reversalID)
	}
	return remaining, nil
}

// reverseExchangeMove posts the mirror image of an exchange difference
// entry and settles each reversal line against its original on the
// reconcilable account, so the pair nets out instead of sitting open.
func (w *worker) reverseExchangeMove(moveID string, originals []types.MoveLine) (string, error) {
	original, err := w.db.GetMove(moveID)
	if err != nil {
		return "", err
	}

	reversal := &types.Move{
		MoveID:    "MOV_" + uuid.New().String(),
		CompanyID: original.CompanyID,
		JournalID: original.JournalID,
		Ref:       fmt.Sprintf("Reversal of %s", original.Ref),
		Date:      time.Now(),
		State:     types.MoveStatePosted,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	reversalLines := make([]types.MoveLine, 0, len(originals))
	for i := range originals {
		source := &originals[i]
		reversalLines = append(reversalLines, types.MoveLine{
			LineID:         "LIN_" + uuid.New().String(),
			MoveID:         reversal.MoveID,
			CompanyID:      source.CompanyID,
			AccountID:      source.AccountID,
			PartnerID:      source.PartnerID,
			Name:           fmt.Sprintf("Reversal of %s", source.Name),
			Debit:          source.Credit,
			Credit:         source.Debit,
			CurrencyCode:   source.CurrencyCode,
			AmountCurrency: source.AmountCurrency.Neg(),
			Date:           reversal.Date,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		})
	}
	if err := w.db.CreateMoveWithLines(reversal, reversalLines); err != nil {
		return "", fmt.Errorf("failed to create reversal move: %w", err)
	}

	for i := range originals {
		source := &originals[i]
		account, aErr := w.account(source.AccountID)
		if aErr != nil {
			return "", aErr
		}
		if !account.Reconcilable {
			continue
		}
		mirror := &reversalLines[i]
		debitID, creditID := source.LineID, mirror.LineID
		if source.Balance().Sign() < 0 || (source.Balance().Sign() == 0 && source.AmountCurrency.Sign() < 0) {
			debitID, creditID = mirror.LineID, source.LineID
		}
		company, cErr := w.company(source.CompanyID)
		if cErr != nil {
			return "", cErr
		}
		partialCurrency := company.CurrencyCode
		amountCurrency := source.Balance().Abs()
		if source.HasForeignCurrency() {
			partialCurrency = source.CurrencyCode
			amountCurrency = source.AmountCurrency.Abs()
		}
		partial := types.PartialReconcile{
			PartialID:      "PRC_" + uuid.New().String(),
			CompanyID:      source.CompanyID,
			DebitLineID:    debitID,
			CreditLineID:   creditID,
			Amount:         source.Balance().Abs(),
			AmountCurrency: amountCurrency,
			CurrencyCode:   partialCurrency,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err := w.db.CreatePartial(&partial); err != nil {
			return "", fmt.Errorf("failed to settle reversal pair: %w", err)
		}
		pairFull := &types.FullReconcile{
			FullReconcileID: "FRC_" + uuid.New().String(),
			CompanyID:       source.CompanyID,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		}
		if err := w.db.CreateFullReconcile(pairFull); err != nil {
			return "", err
		}
		for _, lineID := range []string{source.LineID, mirror.LineID} {
			if err := w.db.MarkLineReconciled(lineID, pairFull.FullReconcileID); err != nil {
				return "", err
			}
		}
		if err := w.db.MarkPartialReconciled(partial.PartialID, pairFull.FullReconcileID); err != nil {
			return "", err
		}
	}
	return reversal.MoveID, nil
}
