package ledger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/finbooks/recon-api/internal/database"
	"github.com/finbooks/recon-api/internal/rates"
	"github.com/finbooks/recon-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires a ledger service against a throwaway in-memory database
// with a minimal chart of accounts
type fixture struct {
	service    *Service
	rates      *rates.Service
	company    *types.Company
	receivable *types.Account
	revenue    *types.Account
	bank       *types.Account
	sale       *types.Journal
	bankBook   *types.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)

	ratesService := rates.NewService(db)
	service := NewService(db, ratesService)

	_, err = service.CreateCurrency(CurrencyRequest{Code: "EUR", Name: "Euro", DecimalPlaces: 2})
	require.NoError(t, err)
	_, err = service.CreateCurrency(CurrencyRequest{Code: "USD", Name: "US Dollar", DecimalPlaces: 2})
	require.NoError(t, err)

	company, err := service.CreateCompany(CompanyRequest{Name: "Test Co", CurrencyCode: "EUR"})
	require.NoError(t, err)

	f := &fixture{service: service, rates: ratesService, company: company}
	f.receivable = f.account(t, "121000", "Receivable", true)
	f.revenue = f.account(t, "400000", "Revenue", false)
	f.bank = f.account(t, "101401", "Bank", false)
	f.sale = f.journal(t, "INV", types.JournalTypeSale)
	f.bankBook = f.journal(t, "BNK", types.JournalTypeBank)
	return f
}

func (f *fixture) account(t *testing.T, code, name string, reconcilable bool) *types.Account {
	t.Helper()
	account, err := f.service.CreateAccount(AccountRequest{
		CompanyID:    f.company.CompanyID,
		Code:         code,
		Name:         name,
		Reconcilable: reconcilable,
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) journal(t *testing.T, code, kind string) *types.Journal {
	t.Helper()
	journal, err := f.service.CreateJournal(JournalRequest{
		CompanyID: f.company.CompanyID,
		Code:      code,
		Type:      kind,
	})
	require.NoError(t, err)
	return journal
}

func TestPostMoveBalanced(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.PostMove(MoveRequest{
		JournalID: f.sale.JournalID,
		Ref:       "INV/001",
		Date:      "2026-01-15",
		Lines: []MoveLineRequest{
			{AccountID: f.receivable.AccountID, PartnerID: "PARTNER_A", Debit: decimal.RequireFromString("150.00")},
			{AccountID: f.revenue.AccountID, PartnerID: "PARTNER_A", Credit: decimal.RequireFromString("150.00")},
		},
	}, "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.Move.MoveID, "MOV_"))
	assert.Equal(t, types.MoveStatePosted, resp.Move.State)
	require.Len(t, resp.Lines, 2)
	assert.True(t, strings.HasPrefix(resp.Lines[0].LineID, "LIN_"))
	assert.Equal(t, "150", resp.Lines[0].Debit.String())
}

func TestPostMoveRejectsUnbalanced(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PostMove(MoveRequest{
		JournalID: f.sale.JournalID,
		Date:      "2026-01-15",
		Lines: []MoveLineRequest{
			{AccountID: f.receivable.AccountID, Debit: decimal.RequireFromString("150.00")},
			{AccountID: f.revenue.AccountID, Credit: decimal.RequireFromString("140.00")},
		},
	}, "")
	require.Error(t, err)
	assert.IsType(t, &types.ValidationError{}, err)
	assert.Contains(t, err.Error(), "unbalanced")
}

func TestPostMoveToleratesSubPrecisionImbalance(t *testing.T) {
	f := newFixture(t)

	// 0.004 off in a 2-decimal currency rounds to balanced
	_, err := f.service.PostMove(MoveRequest{
		JournalID: f.sale.JournalID,
		Date:      "2026-01-15",
		Lines: []MoveLineRequest{
			{AccountID: f.receivable.AccountID, Debit: decimal.RequireFromString("100.004")},
			{AccountID: f.revenue.AccountID, Credit: decimal.RequireFromString("100.00")},
		},
	}, "")
	require.NoError(t, err)
}

func TestPostMoveRejectsInvalidLines(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		line MoveLineRequest
	}{
		{
			name: "debit and credit on the same line",
			line: MoveLineRequest{AccountID: f.receivable.AccountID,
				Debit: decimal.RequireFromString("10"), Credit: decimal.RequireFromString("10")},
		},
		{
			name: "negative debit",
			line: MoveLineRequest{AccountID: f.receivable.AccountID,
				Debit: decimal.RequireFromString("-10")},
		},
		{
			name: "currency amount against the balance sign",
			line: MoveLineRequest{AccountID: f.receivable.AccountID,
				Debit: decimal.RequireFromString("10"), CurrencyCode: "USD",
				AmountCurrency: decimal.RequireFromString("-12")},
		},
		{
			name: "company currency marked as foreign",
			line: MoveLineRequest{AccountID: f.receivable.AccountID,
				Debit: decimal.RequireFromString("10"), CurrencyCode: "EUR",
				AmountCurrency: decimal.RequireFromString("10")},
		},
		{
			name: "currency amount without a currency",
			line: MoveLineRequest{AccountID: f.receivable.AccountID,
				Debit: decimal.RequireFromString("10"),
				AmountCurrency: decimal.RequireFromString("12")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			balance := tc.line.Debit.Sub(tc.line.Credit)
			_, err := f.service.PostMove(MoveRequest{
				JournalID: f.sale.JournalID,
				Date:      "2026-01-15",
				Lines: []MoveLineRequest{
					tc.line,
					{AccountID: f.revenue.AccountID, Credit: balance},
				},
			}, "")
			require.Error(t, err)
			assert.IsType(t, &types.ValidationError{}, err)
		})
	}
}

func TestPostMoveIdempotency(t *testing.T) {
	f := newFixture(t)

	request := MoveRequest{
		JournalID: f.sale.JournalID,
		Ref:       "INV/002",
		Date:      "2026-01-15",
		Lines: []MoveLineRequest{
			{AccountID: f.receivable.AccountID, Debit: decimal.RequireFromString("75.00")},
			{AccountID: f.revenue.AccountID, Credit: decimal.RequireFromString("75.00")},
		},
	}

	first, err := f.service.PostMove(request, "idem-key-1")
	require.NoError(t, err)
	second, err := f.service.PostMove(request, "idem-key-1")
	require.NoError(t, err)

	assert.Equal(t, first.Move.MoveID, second.Move.MoveID)

	third, err := f.service.PostMove(request, "idem-key-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.Move.MoveID, third.Move.MoveID)
}

func TestPostMoveFillsCurrencyAmountFromRateTable(t *testing.T) {
	f := newFixture(t)

	_, err := f.rates.SetRate(rates.RateRequest{
		CurrencyCode: "USD",
		Rate:         decimal.RequireFromString("1.10"),
		ValidFrom:    "2026-01-01",
	})
	require.NoError(t, err)

	resp, err := f.service.PostMove(MoveRequest{
		JournalID: f.sale.JournalID,
		Date:      "2026-01-15",
		Lines: []MoveLineRequest{
			{AccountID: f.receivable.AccountID, Debit: decimal.RequireFromString("100.00"), CurrencyCode: "USD"},
			{AccountID: f.revenue.AccountID, Credit: decimal.RequireFromString("100.00")},
		},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "110", resp.Lines[0].AmountCurrency.String())
	assert.Equal(t, "USD", resp.Lines[0].CurrencyCode)
}

func TestPostMoveWithoutRateFailsWhenCurrencyAmountOmitted(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PostMove(MoveRequest{
		JournalID: f.sale.JournalID,
		Date:      "2026-01-15",
		Lines: []MoveLineRequest{
			{AccountID: f.receivable.AccountID, Debit: decimal.RequireFromString("100.00"), CurrencyCode: "USD"},
			{AccountID: f.revenue.AccountID, Credit: decimal.RequireFromString("100.00")},
		},
	}, "")
	require.Error(t, err)
	assert.IsType(t, &types.ConfigurationError{}, err)
}

func TestUpdateCurrencyPrecisionGuard(t *testing.T) {
	f := newFixture(t)

	// Raising the precision of an unused currency is always fine
	_, err := f.service.UpdateCurrencyPrecision("USD", 3)
	require.NoError(t, err)
	_, err = f.service.UpdateCurrencyPrecision("USD", 2)
	require.NoError(t, err)

	_, err = f.service.PostMove(MoveRequest{
		JournalID: f.sale.JournalID,
		Date:      "2026-01-15",
		Lines: []MoveLineRequest{
			{AccountID: f.receivable.AccountID, Debit: decimal.RequireFromString("100.00"),
				CurrencyCode: "USD", AmountCurrency: decimal.RequireFromString("110.00")},
			{AccountID: f.revenue.AccountID, Credit: decimal.RequireFromString("100.00")},
		},
	}, "")
	require.NoError(t, err)

	// Posted entries pin the precision of both currencies involved
	_, err = f.service.UpdateCurrencyPrecision("USD", 1)
	require.Error(t, err)
	assert.IsType(t, &types.ValidationError{}, err)

	_, err = f.service.UpdateCurrencyPrecision("EUR", 1)
	require.Error(t, err)

	// Raising stays allowed
	_, err = f.service.UpdateCurrencyPrecision("USD", 4)
	require.NoError(t, err)
}
