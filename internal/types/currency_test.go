package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCurrencyRoundHalfAwayFromZero(t *testing.T) {
	eur := &Currency{Code: "EUR", DecimalPlaces: 2}

	assert.Equal(t, "0.01", eur.Round(decimal.RequireFromString("0.005")).String())
	assert.Equal(t, "-0.01", eur.Round(decimal.RequireFromString("-0.005")).String())
	assert.Equal(t, "0", eur.Round(decimal.RequireFromString("0.004")).String())
	assert.Equal(t, "12.35", eur.Round(decimal.RequireFromString("12.345")).String())
}

func TestCurrencyIsZeroBelowPrecision(t *testing.T) {
	eur := &Currency{Code: "EUR", DecimalPlaces: 2}

	assert.True(t, eur.IsZero(decimal.RequireFromString("0.004")))
	assert.True(t, eur.IsZero(decimal.RequireFromString("-0.004")))
	assert.False(t, eur.IsZero(decimal.RequireFromString("0.005")))
	assert.False(t, eur.IsZero(decimal.RequireFromString("0.01")))
}

func TestCurrencyPrecisionChangesZeroTest(t *testing.T) {
	haircut := decimal.RequireFromString("0.004")

	coarse := &Currency{Code: "EUR", DecimalPlaces: 2}
	fine := &Currency{Code: "EUR", DecimalPlaces: 3}

	// The same residual is settled at two decimals but still open at three
	assert.True(t, coarse.IsZero(haircut))
	assert.False(t, fine.IsZero(haircut))
}

func TestCurrencyCmpAndSign(t *testing.T) {
	jpy := &Currency{Code: "JPY", DecimalPlaces: 0}

	assert.Equal(t, 0, jpy.Cmp(decimal.RequireFromString("100.4"), decimal.RequireFromString("100")))
	assert.Equal(t, 1, jpy.Cmp(decimal.RequireFromString("100.5"), decimal.RequireFromString("100")))
	assert.Equal(t, 0, jpy.Sign(decimal.RequireFromString("0.3")))
	assert.Equal(t, -1, jpy.Sign(decimal.RequireFromString("-0.6")))
}

func TestMoveLineBalance(t *testing.T) {
	line := &MoveLine{
		Debit:  decimal.RequireFromString("150.25"),
		Credit: decimal.Zero,
	}
	assert.Equal(t, "150.25", line.Balance().String())

	line = &MoveLine{
		Debit:  decimal.Zero,
		Credit: decimal.RequireFromString("99.99"),
	}
	assert.Equal(t, "-99.99", line.Balance().String())
}
