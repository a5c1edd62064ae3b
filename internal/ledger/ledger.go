package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/finbooks/recon-api/internal/rates"
	"github.com/finbooks/recon-api/internal/types"
	"github.com/finbooks/recon-api/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service handles chart-of-accounts setup and journal-entry posting
type Service struct {
	db    *Database
	rates *rates.Service
}

// NewService creates a new ledger service with the given database
// connection and rate table
func NewService(gormDB *gorm.DB, ratesService *rates.Service) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		rates: ratesService,
	}
}

// GetDB exposes the ledger store to collaborating services
func (s *Service) GetDB() *Database {
	return s.db
}

// CreateCompany registers a company and its reporting currency
func (s *Service) CreateCompany(req CompanyRequest) (*types.Company, error) {
	if _, err := s.db.GetCurrency(req.CurrencyCode); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewValidationError("unknown reporting currency %s", req.CurrencyCode)
		}
		return nil, err
	}

	company := &types.Company{
		CompanyID:         "CMP_" + uuid.New().String(),
		Name:              req.Name,
		CurrencyCode:      req.CurrencyCode,
		ExchangeJournalID: req.ExchangeJournalID,
		GainAccountID:     req.GainAccountID,
		LossAccountID:     req.LossAccountID,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if err := s.db.CreateCompany(company); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return company, nil
}

// ConfigureExchange sets the exchange-difference journal and accounts on an
// existing company
func (s *Service) ConfigureExchange(companyID, journalID, gainAccountID, lossAccountID string) (*types.Company, error) {
	company, err := s.db.GetCompany(companyID)
	if err != nil {
		return nil, err
	}
	company.ExchangeJournalID = journalID
	company.GainAccountID = gainAccountID
	company.LossAccountID = lossAccountID
	company.UpdatedAt = time.Now()
	if err := s.db.UpdateCompany(company); err != nil {
		return nil, err
	}
	return company, nil
}

// CreateCurrency registers a currency with its decimal precision
func (s *Service) CreateCurrency(req CurrencyRequest) (*types.Currency, error) {
	if req.DecimalPlaces < 0 {
		return nil, types.NewValidationError("decimal places must not be negative")
	}
	currency := &types.Currency{
		Code:          req.Code,
		Name:          req.Name,
		DecimalPlaces: req.DecimalPlaces,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.db.CreateCurrency(currency); err != nil {
		return nil, fmt.Errorf("failed to create currency: %w", err)
	}
	return currency, nil
}

// UpdateCurrencyPrecision changes a currency's decimal precision. Reducing
// the precision of a currency that already rounded posted entries would
// retroactively change their residuals, so it is rejected.
func (s *Service) UpdateCurrencyPrecision(code string, decimalPlaces int32) (*types.Currency, error) {
	currency, err := s.db.GetCurrency(code)
	if err != nil {
		return nil, err
	}

	if decimalPlaces < currency.DecimalPlaces {
		used, err := s.db.CurrencyHasPostedLines(code)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, types.NewValidationError(
				"cannot reduce the decimal places of currency %s: it has already been used to post accounting entries", code)
		}
	}

	currency.DecimalPlaces = decimalPlaces
	currency.UpdatedAt = time.Now()
	if err := s.db.UpdateCurrency(currency); err != nil {
		return nil, err
	}
	return currency, nil
}

// CreateAccount registers a chart-of-accounts entry
func (s *Service) CreateAccount(req AccountRequest) (*types.Account, error) {
	if _, err := s.db.GetCompany(req.CompanyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewValidationError("unknown company %s", req.CompanyID)
		}
		return nil, err
	}

	account := &types.Account{
		AccountID:    "ACC_" + uuid.New().String(),
		CompanyID:    req.CompanyID,
		Code:         req.Code,
		Name:         req.Name,
		InternalType: req.InternalType,
		Reconcilable: req.Reconcilable,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.CreateAccount(account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// CreateJournal registers a journal for a company
func (s *Service) CreateJournal(req JournalRequest) (*types.Journal, error) {
	if _, err := s.db.GetCompany(req.CompanyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewValidationError("unknown company %s", req.CompanyID)
		}
		return nil, err
	}

	journal := &types.Journal{
		JournalID: "JRN_" + uuid.New().String(),
		CompanyID: req.CompanyID,
		Code:      req.Code,
		Name:      req.Name,
		Type:      req.Type,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateJournal(journal); err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}
	return journal, nil
}

// PostMove validates and posts a journal entry with idempotency support.
// Lines are immutable once posted, except for the reconciliation
// bookkeeping references.
func (s *Service) PostMove(req MoveRequest, idempotencyKey string) (*MoveResponse, error) {
	logger := log.With().
		Str("journal_id", req.JournalID).
		Str("service", "ledger").
		Logger()

	// Check for existing idempotency record
	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err == nil && record != nil && record.ExpiresAt.After(time.Now()) {
			logger.Info().
				Str("move_id", record.ResourceID).
				Msg("returning existing move for idempotency key")
			return s.GetMove(record.ResourceID)
		}
	}

	journal, err := s.db.GetJournal(req.JournalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewValidationError("unknown journal %s", req.JournalID)
		}
		return nil, err
	}

	company, err := s.db.GetCompany(journal.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch company: %w", err)
	}

	companyCurrency, err := s.db.GetCurrency(company.CurrencyCode)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch company currency: %w", err)
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, types.NewValidationError("invalid date %q, expected YYYY-MM-DD", req.Date)
	}

	if len(req.Lines) < 2 {
		return nil, types.NewValidationError("a journal entry needs at least two lines")
	}

	move := &types.Move{
		MoveID:    "MOV_" + uuid.New().String(),
		CompanyID: company.CompanyID,
		JournalID: journal.JournalID,
		Ref:       req.Ref,
		Date:      date,
		State:     types.MoveStatePosted,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	lines, err := s.buildLines(move, company, companyCurrency, req.Lines)
	if err != nil {
		return nil, err
	}

	// The entry must balance in company currency at the company's precision
	total := decimal.Zero
	for i := range lines {
		total = total.Add(lines[i].Balance())
	}
	if !companyCurrency.IsZero(total) {
		return nil, types.NewValidationError("cannot post an unbalanced entry: total balance is %s", total.String())
	}

	if err := s.db.CreateMoveWithLines(move, lines, idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to create move: %w", err)
	}

	logger.Info().
		Str("move_id", move.MoveID).
		Int("line_count", len(lines)).
		Time("date", move.Date).
		Msg("posted journal entry")

	return &MoveResponse{Move: move, Lines: lines}, nil
}

// buildLines validates each requested line and materializes it against the
// move being posted
func (s *Service) buildLines(move *types.Move, company *types.Company, companyCurrency *types.Currency, reqs []MoveLineRequest) ([]types.MoveLine, error) {
	lines := make([]types.MoveLine, 0, len(reqs))
	for _, lr := range reqs {
		account, err := s.db.GetAccount(lr.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, types.NewValidationError("unknown account %s", lr.AccountID)
			}
			return nil, err
		}
		if account.CompanyID != company.CompanyID {
			return nil, types.NewValidationError("account %s does not belong to company %s", account.Code, company.Name)
		}

		debit := companyCurrency.Round(lr.Debit)
		credit := companyCurrency.Round(lr.Credit)
		if debit.Sign() < 0 || credit.Sign() < 0 {
			return nil, types.NewValidationError("wrong credit or debit value in accounting entry")
		}
		if debit.Sign() != 0 && credit.Sign() != 0 {
			return nil, types.NewValidationError("wrong credit or debit value in accounting entry")
		}

		amountCurrency := decimal.Zero
		if lr.CurrencyCode != "" {
			if lr.CurrencyCode == company.CurrencyCode {
				return nil, types.NewValidationError("the foreign currency of a line must differ from the company currency")
			}
			lineCurrency, err := s.db.GetCurrency(lr.CurrencyCode)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, types.NewValidationError("unknown currency %s", lr.CurrencyCode)
				}
				return nil, err
			}
			amountCurrency = lineCurrency.Round(lr.AmountCurrency)
			balance := debit.Sub(credit)
			if amountCurrency.Sign() == 0 && balance.Sign() != 0 {
				// The caller did not fix the currency amount, so the rate
				// table in force at the posting date decides it.
				converted, convErr := s.rates.Convert(balance, "", lr.CurrencyCode, move.Date)
				if convErr != nil {
					return nil, convErr
				}
				amountCurrency = lineCurrency.Round(converted)
			}
			if balance.Sign() != 0 && amountCurrency.Sign() != 0 && balance.Sign() != amountCurrency.Sign() {
				return nil, types.NewValidationError(
					"the amount expressed in currency %s must have the same sign as the line balance", lr.CurrencyCode)
			}
		} else if !lr.AmountCurrency.IsZero() {
			return nil, types.NewValidationError("amount_currency requires a currency_code")
		}

		lines = append(lines, types.MoveLine{
			LineID:         "LIN_" + uuid.New().String(),
			MoveID:         move.MoveID,
			CompanyID:      company.CompanyID,
			AccountID:      account.AccountID,
			PartnerID:      lr.PartnerID,
			Name:           lr.Name,
			Debit:          debit,
			Credit:         credit,
			CurrencyCode:   lr.CurrencyCode,
			AmountCurrency: amountCurrency,
			Date:           move.Date,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		})
	}
	return lines, nil
}

// GetMove retrieves a move with its lines
func (s *Service) GetMove(moveID string) (*MoveResponse, error) {
	move, err := s.db.GetMove(moveID)
	if err != nil {
		return nil, err
	}
	lines, err := s.db.GetMoveLines(moveID)
	if err != nil {
		return nil, err
	}
	return &MoveResponse{Move: move, Lines: lines}, nil
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) CreateCompanyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompanyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		company, err := h.service.CreateCompany(req)
		response.Handle(c, company, err)
	}
}

func (h *GinHandlers) ConfigureExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.Param("company_id")
		var req struct {
			ExchangeJournalID string `json:"exchange_journal_id" binding:"required"`
			GainAccountID     string `json:"gain_account_id" binding:"required"`
			LossAccountID     string `json:"loss_account_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		company, err := h.service.ConfigureExchange(companyID, req.ExchangeJournalID, req.GainAccountID, req.LossAccountID)
		response.Handle(c, company, err)
	}
}

func (h *GinHandlers) CreateCurrencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CurrencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		currency, err := h.service.CreateCurrency(req)
		response.Handle(c, currency, err)
	}
}

func (h *GinHandlers) UpdateCurrencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		var req struct {
			DecimalPlaces int32 `json:"decimal_places"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		currency, err := h.service.UpdateCurrencyPrecision(code, req.DecimalPlaces)
		response.Handle(c, currency, err)
	}
}

func (h *GinHandlers) CreateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		account, err := h.service.CreateAccount(req)
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) CreateJournalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req JournalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		journal, err := h.service.CreateJournal(req)
		response.Handle(c, journal, err)
	}
}

func (h *GinHandlers) PostMoveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MoveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		idempotencyKey := c.GetHeader("X-Idempotency-Key")
		move, err := h.service.PostMove(req, idempotencyKey)
		response.Handle(c, move, err)
	}
}

func (h *GinHandlers) GetMoveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		moveID := c.Param("move_id")
		move, err := h.service.GetMove(moveID)
		response.Handle(c, move, err)
	}
}
