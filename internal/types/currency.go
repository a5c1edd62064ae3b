package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Currency describes a settlement currency and its monetary precision.
// All roundings go through Round so an amount smaller than the currency's
// smallest unit is indistinguishable from zero.
type Currency struct {
	gorm.Model    `json:"-"`
	Code          string `gorm:"uniqueIndex" json:"code"`
	Name          string `json:"name"`
	DecimalPlaces int32  `json:"decimal_places"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Round rounds half away from zero to the currency's decimal precision.
func (c *Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.DecimalPlaces)
}

// IsZero reports whether the amount rounds to zero in this currency.
func (c *Currency) IsZero(amount decimal.Decimal) bool {
	return c.Round(amount).IsZero()
}

// Cmp compares two amounts at the currency's precision. It returns -1, 0
// or 1 in the usual way.
func (c *Currency) Cmp(a, b decimal.Decimal) int {
	return c.Round(a).Cmp(c.Round(b))
}

// Sign returns the sign of the amount at the currency's precision.
func (c *Currency) Sign(amount decimal.Decimal) int {
	return c.Round(amount).Sign()
}
