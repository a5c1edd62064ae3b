package reconciliation

import (
	"fmt"
	"sort"
	"time"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetDB returns the database instance
func (s *Service) GetDB() *Database {
	return s.db
}

// Reconcile settles the requested lines against each other: it pairs
// opposite residuals into partials, optionally books the leftover to a
// write-off account, and when the connected group closes it creates the
// full reconciliation, generating an exchange difference entry if the
// two units disagree. The whole operation runs in one transaction with
// the lines locked.
func (s *Service) Reconcile(req ReconcileRequest) (*ReconcileResult, error) {
	logger := log.With().
		Strs("line_ids", req.LineIDs).
		Str("service", "reconciliation").
		Logger()

	logger.Info().Msg("starting reconciliation")

	var result *ReconcileResult
	err := s.db.GormDB().Transaction(func(tx *gorm.DB) error {
		w := newWorker(s.db.WithTx(tx))
		r, txErr := w.reconcile(req)
		if txErr != nil {
			return txErr
		}
		result = r
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("reconciliation failed")
		return nil, err
	}

	logger.Info().
		Int("partials", len(result.Partials)).
		Bool("full", result.FullReconcile != nil).
		Msg("reconciliation complete")
	return result, nil
}

// GetResidual recomputes the open remainder of a single line
func (s *Service) GetResidual(lineID string) (*Residual, error) {
	w := newWorker(s.db)
	line, err := s.db.GetLine(lineID)
	if err != nil {
		return nil, types.NewValidationError("line %s does not exist", lineID)
	}
	res, err := w.residual(line)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetFullReconcileDetail returns a full reconciliation with the lines and
// partials it covers
func (s *Service) GetFullReconcileDetail(fullReconcileID string) (*FullReconcileDetail, error) {
	full, err := s.db.GetFullReconcile(fullReconcileID)
	if err != nil {
		return nil, types.NewValidationError("full reconciliation %s does not exist", fullReconcileID)
	}
	lines, err := s.db.GetLinesOfFull(full.FullReconcileID)
	if err != nil {
		return nil, err
	}
	partials, err := s.db.GetPartialsOfFull(full.FullReconcileID)
	if err != nil {
		return nil, err
	}
	detail := &FullReconcileDetail{
		FullReconcileID: full.FullReconcileID,
		ExchangeMoveID:  full.ExchangeMoveID,
	}
	for i := range lines {
		detail.LineIDs = append(detail.LineIDs, lines[i].LineID)
	}
	for i := range partials {
		detail.PartialIDs = append(detail.PartialIDs, partials[i].PartialID)
	}
	return detail, nil
}

// worker carries the per-transaction state of one reconcile call
type worker struct {
	db         *Database
	currencies map[string]*types.Currency
	accounts   map[string]*types.Account
	companies  map[string]*types.Company
	moves      map[string]*types.Move
}

func newWorker(db *Database) *worker {
	return &worker{
		db:         db,
		currencies: make(map[string]*types.Currency),
		accounts:   make(map[string]*types.Account),
		companies:  make(map[string]*types.Company),
		moves:      make(map[string]*types.Move),
	}
}

func (w *worker) currency(code string) (*types.Currency, error) {
	if c, ok := w.currencies[code]; ok {
		return c, nil
	}
	c, err := w.db.GetCurrency(code)
	if err != nil {
		return nil, types.NewConfigurationError("currency %s is not configured", code)
	}
	w.currencies[code] = c
	return c, nil
}

func (w *worker) account(accountID string) (*types.Account, error) {
	if a, ok := w.accounts[accountID]; ok {
		return a, nil
	}
	a, err := w.db.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	w.accounts[accountID] = a
	return a, nil
}

func (w *worker) company(companyID string) (*types.Company, error) {
	if c, ok := w.companies[companyID]; ok {
		return c, nil
	}
	c, err := w.db.GetCompany(companyID)
	if err != nil {
		return nil, err
	}
	w.companies[companyID] = c
	return c, nil
}

func (w *worker) move(moveID string) (*types.Move, error) {
	if m, ok := w.moves[moveID]; ok {
		return m, nil
	}
	m, err := w.db.GetMove(moveID)
	if err != nil {
		return nil, err
	}
	w.moves[moveID] = m
	return m, nil
}

// residual loads everything a line's residual depends on and computes it
func (w *worker) residual(line *types.MoveLine) (Residual, error) {
	account, err := w.account(line.AccountID)
	if err != nil {
		return Residual{}, fmt.Errorf("failed to fetch account %s: %w", line.AccountID, err)
	}
	company, err := w.company(line.CompanyID)
	if err != nil {
		return Residual{}, fmt.Errorf("failed to fetch company %s: %w", line.CompanyID, err)
	}
	companyCurrency, err := w.currency(company.CurrencyCode)
	if err != nil {
		return Residual{}, err
	}
	var lineCurrency *types.Currency
	if line.HasForeignCurrency() {
		if lineCurrency, err = w.currency(line.CurrencyCode); err != nil {
			return Residual{}, err
		}
	}
	partials, err := w.db.GetPartialsTouching(line.LineID)
	if err != nil {
		return Residual{}, fmt.Errorf("failed to fetch partials for line %s: %w", line.LineID, err)
	}
	return computeResidual(line, account, partials, companyCurrency, lineCurrency), nil
}

func (w *worker) reconcile(req ReconcileRequest) (*ReconcileResult, error) {
	lineIDs := dedupe(req.LineIDs)
	if len(lineIDs) < 2 {
		return nil, types.NewValidationError("at least two distinct lines are required")
	}

	lines, err := w.db.GetLinesForUpdate(lineIDs)
	if err != nil {
		return nil, err
	}
	if len(lines) != len(lineIDs) {
		return nil, types.NewValidationError("one or more lines do not exist")
	}

	company, companyCurrency, err := w.validateLines(lines)
	if err != nil {
		return nil, err
	}

	created, err := w.pairAll(lines, companyCurrency)
	if err != nil {
		return nil, err
	}

	if req.WriteoffAccountID != "" || req.WriteoffJournalID != "" {
		writeoffLine, woErr := w.createWriteoff(lines, req, company, companyCurrency)
		if woErr != nil {
			return nil, woErr
		}
		if writeoffLine != nil {
			lines = append(lines, *writeoffLine)
			more, pairErr := w.pairAll(lines, companyCurrency)
			if pairErr != nil {
				return nil, pairErr
			}
			created = append(created, more...)
		}
	}

	result := &ReconcileResult{Partials: created}
	sort.Slice(result.Partials, func(i, j int) bool {
		return result.Partials[i].Amount.Cmp(result.Partials[j].Amount) < 0
	})

	full, err := w.detectFullReconcile(lines, company, companyCurrency)
	if err != nil {
		return nil, err
	}
	result.FullReconcile = full
	return result, nil
}

// validateLines enforces the preconditions shared by every reconcile
// call: the lines must be posted, on one reconcilable account of one
// company, and not already closed.
func (w *worker) validateLines(lines []types.MoveLine) (*types.Company, *types.Currency, error) {
	accountID := lines[0].AccountID
	companyID := lines[0].CompanyID
	for i := range lines {
		line := &lines[i]
		if line.CompanyID != companyID {
			return nil, nil, types.NewValidationError("lines must belong to the same company")
		}
		if line.AccountID != accountID {
			return nil, nil, types.NewValidationError("lines must share the same account, got %s and %s", accountID, line.AccountID)
		}
		if line.FullReconcileID != "" {
			return nil, nil, types.NewValidationError("line %s is already fully reconciled", line.LineID)
		}
		move, err := w.move(line.MoveID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch move %s: %w", line.MoveID, err)
		}
		if move.State != types.MoveStatePosted {
			return nil, nil, types.NewValidationError("line %s belongs to a draft entry", line.LineID)
		}
	}

	account, err := w.account(accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch account %s: %w", accountID, err)
	}
	if !account.Reconcilable {
		return nil, nil, types.NewValidationError("account %s does not allow reconciliation", account.Code)
	}

	company, err := w.company(companyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch company %s: %w", companyID, err)
	}
	companyCurrency, err := w.currency(company.CurrencyCode)
	if err != nil {
		return nil, nil, err
	}

	// The call must bring both a debit and a credit residual to the
	// table, otherwise there is nothing to settle. The sides are judged
	// in the unit the pairing will match on, so lines open only in
	// foreign units still qualify.
	foreignCode := sharedForeignCurrency(lines)
	matchCurrency := companyCurrency
	if foreignCode != "" {
		if matchCurrency, err = w.currency(foreignCode); err != nil {
			return nil, nil, err
		}
	}
	hasDebit, hasCredit := false, false
	for i := range lines {
		res, rErr := w.residual(&lines[i])
		if rErr != nil {
			return nil, nil, rErr
		}
		switch matchCurrency.Round(matchValue(res, foreignCode != "")).Sign() {
		case 1:
			hasDebit = true
		case -1:
			hasCredit = true
		}
	}
	if !hasDebit || !hasCredit {
		return nil, nil, types.NewValidationError("lines to reconcile must carry both debit and credit residuals")
	}
	return company, companyCurrency, nil
}

// pairAll greedily matches the oldest open debit against the oldest open
// credit until one side runs out. The matching unit is the shared
// foreign currency when every line carries the same one, company units
// otherwise. The settled company amount is always the smaller of the two
// company residuals, taken independently of the currency amounts; the
// gap between the two units is what later surfaces as an exchange
// difference.
func (w *worker) pairAll(lines []types.MoveLine, companyCurrency *types.Currency) ([]types.PartialReconcile, error) {
	foreignCode := sharedForeignCurrency(lines)
	matchCurrency := companyCurrency
	if foreignCode != "" {
		var err error
		if matchCurrency, err = w.currency(foreignCode); err != nil {
			return nil, err
		}
	}

	var created []types.PartialReconcile
	for {
		var debit, credit *types.MoveLine
		var debitRes, creditRes Residual
		for i := range lines {
			res, err := w.residual(&lines[i])
			if err != nil {
				return nil, err
			}
			value := matchCurrency.Round(matchValue(res, foreignCode != ""))
			if debit == nil && value.Sign() > 0 {
				debit, debitRes = &lines[i], res
			}
			if credit == nil && value.Sign() < 0 {
				credit, creditRes = &lines[i], res
			}
		}
		if debit == nil || credit == nil {
			return created, nil
		}

		amount := decimal.Min(debitRes.AmountResidual, creditRes.AmountResidual.Neg())
		amountCurrency := amount
		currencyCode := companyCurrency.Code
		if foreignCode != "" {
			amountCurrency = decimal.Min(debitRes.AmountResidualCurrency, creditRes.AmountResidualCurrency.Neg())
			currencyCode = foreignCode
		}

		partial := types.PartialReconcile{
			PartialID:      "PRC_" + uuid.New().String(),
			CompanyID:      debit.CompanyID,
			DebitLineID:    debit.LineID,
			CreditLineID:   credit.LineID,
			Amount:         amount,
			AmountCurrency: amountCurrency,
			CurrencyCode:   currencyCode,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err := w.db.CreatePartial(&partial); err != nil {
			return nil, fmt.Errorf("failed to create partial: %w", err)
		}
		created = append(created, partial)
	}
}

// closure expands the input lines to the full connected component of the
// partial graph, returning the component's lines and partials.
func (w *worker) closure(lines []types.MoveLine) ([]types.MoveLine, []types.PartialReconcile, error) {
	seenLines := make(map[string]types.MoveLine)
	seenPartials := make(map[string]types.PartialReconcile)
	frontier := make([]string, 0, len(lines))
	for i := range lines {
		seenLines[lines[i].LineID] = lines[i]
		frontier = append(frontier, lines[i].LineID)
	}

	for len(frontier) > 0 {
		lineID := frontier[0]
		frontier = frontier[1:]
		partials, err := w.db.GetPartialsTouching(lineID)
		if err != nil {
			return nil, nil, err
		}
		for i := range partials {
			partial := partials[i]
			if _, ok := seenPartials[partial.PartialID]; ok {
				continue
			}
			seenPartials[partial.PartialID] = partial
			for _, otherID := range []string{partial.DebitLineID, partial.CreditLineID} {
				if _, ok := seenLines[otherID]; ok {
					continue
				}
				other, lErr := w.db.GetLine(otherID)
				if lErr != nil {
					return nil, nil, lErr
				}
				seenLines[otherID] = *other
				frontier = append(frontier, otherID)
			}
		}
	}

	groupLines := make([]types.MoveLine, 0, len(seenLines))
	for _, line := range seenLines {
		groupLines = append(groupLines, line)
	}
	sort.Slice(groupLines, func(i, j int) bool { return groupLines[i].ID < groupLines[j].ID })
	groupPartials := make([]types.PartialReconcile, 0, len(seenPartials))
	for _, partial := range seenPartials {
		groupPartials = append(groupPartials, partial)
	}
	sort.Slice(groupPartials, func(i, j int) bool { return groupPartials[i].ID < groupPartials[j].ID })
	return groupLines, groupPartials, nil
}

// detectFullReconcile checks whether the connected group is exhausted in
// its matching unit and, if so, closes it. When the other unit still
// carries leftovers the closure first books an exchange difference entry
// that absorbs them.
func (w *worker) detectFullReconcile(lines []types.MoveLine, company *types.Company, companyCurrency *types.Currency) (*FullReconcileDetail, error) {
	group, partials, err := w.closure(lines)
	if err != nil {
		return nil, err
	}

	foreignCode := sharedForeignCurrency(group)
	matchCurrency := companyCurrency
	if foreignCode != "" {
		if matchCurrency, err = w.currency(foreignCode); err != nil {
			return nil, err
		}
	}

	residuals := make(map[string]Residual, len(group))
	allReconciled := true
	for i := range group {
		res, rErr := w.residual(&group[i])
		if rErr != nil {
			return nil, rErr
		}
		residuals[group[i].LineID] = res
		if !res.Reconciled {
			allReconciled = false
		}
		if matchCurrency.Round(matchValue(res, foreignCode != "")).Sign() != 0 {
			return nil, nil
		}
	}

	full := &types.FullReconcile{
		FullReconcileID: "FRC_" + uuid.New().String(),
		CompanyID:       company.CompanyID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if !allReconciled {
		exchangeMove, exchangeLines, exchangePartials, exErr := w.createExchangeMove(group, residuals, company, companyCurrency)
		if exErr != nil {
			return nil, exErr
		}
		full.ExchangeMoveID = exchangeMove.MoveID
		group = append(group, exchangeLines...)
		partials = append(partials, exchangePartials...)
	}

	if err := w.db.CreateFullReconcile(full); err != nil {
		return nil, fmt.Errorf("failed to create full reconcile: %w", err)
	}

	detail := &FullReconcileDetail{
		FullReconcileID: full.FullReconcileID,
		ExchangeMoveID:  full.ExchangeMoveID,
	}
	for i := range group {
		if err := w.db.MarkLineReconciled(group[i].LineID, full.FullReconcileID); err != nil {
			return nil, err
		}
		detail.LineIDs = append(detail.LineIDs, group[i].LineID)
	}
	for i := range partials {
		if err := w.db.MarkPartialReconciled(partials[i].PartialID, full.FullReconcileID); err != nil {
			return nil, err
		}
		detail.PartialIDs = append(detail.PartialIDs, partials[i].PartialID)
	}
	return detail, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
