package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Rate is one row of the conversion table: how many units of the
// currency one company base unit buys from ValidFrom onwards. The rate
// in force at a date is the newest row not later than it.
type Rate struct {
	gorm.Model   `json:"-"`
	CurrencyCode string          `gorm:"index:idx_rates_code_valid" json:"currency_code"`
	Rate         decimal.Decimal `gorm:"type:decimal(20,12)" json:"rate"`
	ValidFrom    time.Time       `gorm:"index:idx_rates_code_valid" json:"valid_from"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
