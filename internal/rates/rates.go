package rates

import (
	"fmt"
	"time"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/finbooks/recon-api/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateRate(rate *types.Rate) error {
	return d.db.Create(rate).Error
}

// GetRateAt returns the newest rate row for the currency that is not
// later than the given date
func (d *Database) GetRateAt(code string, at time.Time) (*types.Rate, error) {
	var rate types.Rate
	err := d.db.Where("currency_code = ? AND valid_from <= ?", code, at).
		Order("valid_from DESC").
		First(&rate).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rate: %w", err)
	}
	return &rate, nil
}

func (d *Database) GetRates(code string) ([]types.Rate, error) {
	var rates []types.Rate
	err := d.db.Where("currency_code = ?", code).
		Order("valid_from ASC").
		Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

// Service converts amounts between currencies using the stored rate
// table. Conversions are only used when a caller does not supply the
// currency amount of a line; settled entries always keep their booked
// historical amounts.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

type RateRequest struct {
	CurrencyCode string          `json:"currency_code" binding:"required"`
	Rate         decimal.Decimal `json:"rate" binding:"required"`
	ValidFrom    string          `json:"valid_from" binding:"required"`
}

// SetRate records a new conversion rate taking effect at the given date
func (s *Service) SetRate(req RateRequest) (*types.Rate, error) {
	if req.Rate.Sign() <= 0 {
		return nil, types.NewValidationError("rate must be strictly positive")
	}
	validFrom, err := time.Parse("2006-01-02", req.ValidFrom)
	if err != nil {
		return nil, types.NewValidationError("valid_from must be formatted as YYYY-MM-DD")
	}

	rate := &types.Rate{
		CurrencyCode: req.CurrencyCode,
		Rate:         req.Rate,
		ValidFrom:    validFrom,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.db.CreateRate(rate); err != nil {
		return nil, fmt.Errorf("failed to create rate: %w", err)
	}

	log.Info().
		Str("currency_code", rate.CurrencyCode).
		Str("rate", rate.Rate.String()).
		Time("valid_from", rate.ValidFrom).
		Str("service", "rates").
		Msg("conversion rate recorded")
	return rate, nil
}

// RateAt returns the rate in force for the currency at the given date.
// The empty code means the company base unit and always converts at one.
func (s *Service) RateAt(code string, at time.Time) (decimal.Decimal, error) {
	if code == "" {
		return decimal.NewFromInt(1), nil
	}
	rate, err := s.db.GetRateAt(code, at)
	if err != nil {
		return decimal.Zero, types.NewConfigurationError("no conversion rate for %s at %s", code, at.Format("2006-01-02"))
	}
	return rate.Rate, nil
}

// Convert translates an amount between two currencies through the
// company base, using the rates in force at the given date. The result
// is unrounded; callers round with the target currency's precision.
func (s *Service) Convert(amount decimal.Decimal, fromCode, toCode string, at time.Time) (decimal.Decimal, error) {
	if fromCode == toCode {
		return amount, nil
	}
	fromRate, err := s.RateAt(fromCode, at)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := s.RateAt(toCode, at)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

// GinHandlers contains HTTP handlers for rate endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) SetRateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request RateRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		rate, err := h.service.SetRate(request)
		response.Handle(c, rate, err)
	}
}

func (h *GinHandlers) GetRatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("currency_code")

		rates, err := h.service.db.GetRates(code)
		response.Handle(c, rates, err)
	}
}
