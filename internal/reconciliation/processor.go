package reconciliation

import (
	"context"
	"time"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/rs/zerolog/log"
)

type Processor struct {
	service      *Service
	processDelay time.Duration // Time between auto-matching sweeps
}

func NewProcessor(service *Service) *Processor {
	return &Processor{
		service:      service,
		processDelay: 5 * time.Minute, // Configurable sweep interval
	}
}

// Start begins the auto-matching loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "auto_matcher").Logger()
	logger.Info().Msg("starting auto matcher")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down auto matcher")
			return
		case <-ticker.C:
			if err := p.processOpenLines(); err != nil {
				logger.Error().Err(err).Msg("failed to run auto-matching sweep")
			}
		}
	}
}

// processOpenLines sweeps the reconcilable accounts and settles every
// debit line whose residual is the exact mirror of a credit line on the
// same account, partner and currency. Anything fuzzier is left for a
// human or an explicit reconcile call.
func (p *Processor) processOpenLines() error {
	logger := log.With().Str("component", "auto_matcher").Logger()

	accounts, err := p.service.db.GetReconcilableAccounts()
	if err != nil {
		return err
	}

	matched := 0
	for i := range accounts {
		pairs, pErr := p.findExactPairs(accounts[i].AccountID)
		if pErr != nil {
			logger.Error().Err(pErr).
				Str("account_id", accounts[i].AccountID).
				Msg("failed to scan account for matches")
			continue
		}
		for _, pair := range pairs {
			if _, rErr := p.service.Reconcile(ReconcileRequest{LineIDs: pair}); rErr != nil {
				logger.Warn().Err(rErr).
					Strs("line_ids", pair).
					Msg("auto-match pair rejected")
				continue
			}
			matched++
		}
	}

	if matched > 0 {
		logger.Info().Int("matched_pairs", matched).Msg("auto-matching sweep complete")
	}
	return nil
}

func (p *Processor) findExactPairs(accountID string) ([][]string, error) {
	lines, err := p.service.db.GetOpenLinesOnAccount(accountID)
	if err != nil {
		return nil, err
	}

	w := newWorker(p.service.db)
	type openLine struct {
		line     *types.MoveLine
		residual Residual
	}
	// Candidates bucketed by partner and currency so a match never
	// crosses either boundary.
	buckets := make(map[string][]openLine)
	for i := range lines {
		res, rErr := w.residual(&lines[i])
		if rErr != nil {
			return nil, rErr
		}
		if res.Reconciled || res.AmountResidual.Sign() == 0 {
			continue
		}
		key := lines[i].PartnerID + "|" + lines[i].CurrencyCode
		buckets[key] = append(buckets[key], openLine{line: &lines[i], residual: res})
	}

	var pairs [][]string
	for _, bucket := range buckets {
		used := make(map[string]struct{})
		for i := range bucket {
			debit := bucket[i]
			if debit.residual.AmountResidual.Sign() <= 0 {
				continue
			}
			if _, ok := used[debit.line.LineID]; ok {
				continue
			}
			for j := range bucket {
				credit := bucket[j]
				if credit.residual.AmountResidual.Sign() >= 0 {
					continue
				}
				if _, ok := used[credit.line.LineID]; ok {
					continue
				}
				if !debit.residual.AmountResidual.Equal(credit.residual.AmountResidual.Neg()) {
					continue
				}
				if !debit.residual.AmountResidualCurrency.Equal(credit.residual.AmountResidualCurrency.Neg()) {
					continue
				}
				pairs = append(pairs, []string{debit.line.LineID, credit.line.LineID})
				used[debit.line.LineID] = struct{}{}
				used[credit.line.LineID] = struct{}{}
				break
			}
		}
	}
	return pairs, nil
}
