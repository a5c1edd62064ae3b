package reconciliation

import (
	"testing"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var (
	testEUR = &types.Currency{Code: "EUR", DecimalPlaces: 2}
	testUSD = &types.Currency{Code: "USD", DecimalPlaces: 2}

	testAccount = &types.Account{AccountID: "ACC_1", Reconcilable: true}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeResidualNoPartials(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("1000")}

	res := computeResidual(line, testAccount, nil, testEUR, nil)
	assert.Equal(t, "1000", res.AmountResidual.String())
	assert.Equal(t, "1000", res.AmountResidualCurrency.String())
	assert.Equal(t, "EUR", res.CurrencyCode)
	assert.False(t, res.Reconciled)
}

func TestComputeResidualWithPartials(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("1000")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_1", CreditLineID: "LIN_2",
			Amount: dec("100"), AmountCurrency: dec("100"), CurrencyCode: "EUR"},
		{PartialID: "PRC_2", DebitLineID: "LIN_1", CreditLineID: "LIN_3",
			Amount: dec("300"), AmountCurrency: dec("300"), CurrencyCode: "EUR"},
	}

	res := computeResidual(line, testAccount, partials, testEUR, nil)
	assert.Equal(t, "600", res.AmountResidual.String())
	assert.False(t, res.Reconciled)
}

func TestComputeResidualCreditSide(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_2", Credit: dec("400")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_1", CreditLineID: "LIN_2",
			Amount: dec("150"), AmountCurrency: dec("150"), CurrencyCode: "EUR"},
	}

	res := computeResidual(line, testAccount, partials, testEUR, nil)
	assert.Equal(t, "-250", res.AmountResidual.String())
}

func TestComputeResidualFullySettled(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("500")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_1", CreditLineID: "LIN_2",
			Amount: dec("500"), AmountCurrency: dec("500"), CurrencyCode: "EUR"},
	}

	res := computeResidual(line, testAccount, partials, testEUR, nil)
	assert.Equal(t, "0", res.AmountResidual.String())
	assert.True(t, res.Reconciled)
}

func TestComputeResidualForeignCurrencyTracksBothUnits(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("100"),
		CurrencyCode: "USD", AmountCurrency: dec("120")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_1", CreditLineID: "LIN_2",
			Amount: dec("50"), AmountCurrency: dec("60"), CurrencyCode: "USD"},
	}

	res := computeResidual(line, testAccount, partials, testEUR, testUSD)
	assert.Equal(t, "50", res.AmountResidual.String())
	assert.Equal(t, "60", res.AmountResidualCurrency.String())
	assert.Equal(t, "USD", res.CurrencyCode)
	assert.False(t, res.Reconciled)
}

func TestComputeResidualCrossCurrencyPartialUsesBookedRate(t *testing.T) {
	// Line booked at 1.2 USD per EUR; a company-currency partial of 50
	// consumes 60 in line units through the line's own rate, not any
	// later rate.
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("100"),
		CurrencyCode: "USD", AmountCurrency: dec("120")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_1", CreditLineID: "LIN_2",
			Amount: dec("50"), AmountCurrency: dec("50"), CurrencyCode: "EUR"},
	}

	res := computeResidual(line, testAccount, partials, testEUR, testUSD)
	assert.Equal(t, "50", res.AmountResidual.String())
	assert.Equal(t, "60", res.AmountResidualCurrency.String())
}

func TestComputeResidualCompanySettledButCurrencyOpen(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("100"),
		CurrencyCode: "USD", AmountCurrency: dec("120")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_1", CreditLineID: "LIN_2",
			Amount: dec("100"), AmountCurrency: dec("110"), CurrencyCode: "USD"},
	}

	// Zero in company units is not enough: ten dollars are still open
	res := computeResidual(line, testAccount, partials, testEUR, testUSD)
	assert.Equal(t, "0", res.AmountResidual.String())
	assert.Equal(t, "10", res.AmountResidualCurrency.String())
	assert.False(t, res.Reconciled)
}

func TestComputeResidualPureCurrencyLine(t *testing.T) {
	// An exchange correcting line can carry currency with no balance;
	// its orientation follows the currency amount.
	line := &types.MoveLine{LineID: "LIN_1",
		CurrencyCode: "USD", AmountCurrency: dec("-15")}

	res := computeResidual(line, testAccount, nil, testEUR, testUSD)
	assert.Equal(t, "0", res.AmountResidual.String())
	assert.Equal(t, "-15", res.AmountResidualCurrency.String())
	assert.False(t, res.Reconciled)
}

func TestComputeResidualSubPrecisionIsSettled(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("100.004")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_1", CreditLineID: "LIN_2",
			Amount: dec("100"), AmountCurrency: dec("100"), CurrencyCode: "EUR"},
	}

	res := computeResidual(line, testAccount, partials, testEUR, nil)
	assert.Equal(t, "0", res.AmountResidual.String())
	assert.True(t, res.Reconciled)
}

func TestComputeResidualIgnoresUnrelatedPartials(t *testing.T) {
	line := &types.MoveLine{LineID: "LIN_1", Debit: dec("100")}
	partials := []types.PartialReconcile{
		{PartialID: "PRC_1", DebitLineID: "LIN_9", CreditLineID: "LIN_8",
			Amount: dec("40"), AmountCurrency: dec("40"), CurrencyCode: "EUR"},
	}

	res := computeResidual(line, testAccount, partials, testEUR, nil)
	assert.Equal(t, "100", res.AmountResidual.String())
}

func TestSharedForeignCurrency(t *testing.T) {
	usd := func(amount string) types.MoveLine {
		return types.MoveLine{CurrencyCode: "USD", AmountCurrency: dec(amount)}
	}

	assert.Equal(t, "USD", sharedForeignCurrency([]types.MoveLine{usd("120"), usd("-120")}))
	assert.Equal(t, "", sharedForeignCurrency([]types.MoveLine{usd("120"), {}}))
	assert.Equal(t, "", sharedForeignCurrency([]types.MoveLine{usd("120"),
		{CurrencyCode: "JPY", AmountCurrency: dec("100")}}))
	assert.Equal(t, "", sharedForeignCurrency([]types.MoveLine{usd("120"), usd("0")}))
	assert.Equal(t, "", sharedForeignCurrency(nil))
}
