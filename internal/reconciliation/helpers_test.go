package reconciliation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/finbooks/recon-api/internal/database"
	"github.com/finbooks/recon-api/internal/ledger"
	"github.com/finbooks/recon-api/internal/rates"
	"github.com/finbooks/recon-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fixture wires the reconciliation service against an in-memory ledger
// with a chart of accounts and exchange configuration ready to use
type fixture struct {
	service    *Service
	ledger     *ledger.Service
	company    *types.Company
	receivable *types.Account
	revenue    *types.Account
	bankAcct   *types.Account
	gain       *types.Account
	loss       *types.Account
	writeoff   *types.Account
	sale       *types.Journal
	bankBook   *types.Journal
	misc       *types.Journal
	exchange   *types.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)

	ratesService := rates.NewService(db)
	ledgerService := ledger.NewService(db, ratesService)
	service := NewService(db)

	for _, currency := range []ledger.CurrencyRequest{
		{Code: "EUR", Name: "Euro", DecimalPlaces: 2},
		{Code: "USD", Name: "US Dollar", DecimalPlaces: 2},
		{Code: "JPY", Name: "Yen", DecimalPlaces: 0},
	} {
		_, err = ledgerService.CreateCurrency(currency)
		require.NoError(t, err)
	}

	company, err := ledgerService.CreateCompany(ledger.CompanyRequest{Name: "Test Co", CurrencyCode: "EUR"})
	require.NoError(t, err)

	f := &fixture{service: service, ledger: ledgerService, company: company}
	f.receivable = f.account(t, "121000", "Receivable", true)
	f.revenue = f.account(t, "400000", "Revenue", false)
	f.bankAcct = f.account(t, "101401", "Bank", false)
	f.gain = f.account(t, "744000", "FX Gain", false)
	f.loss = f.account(t, "644000", "FX Loss", false)
	f.writeoff = f.account(t, "658000", "Discounts", false)
	f.sale = f.journal(t, "INV", types.JournalTypeSale)
	f.bankBook = f.journal(t, "BNK", types.JournalTypeBank)
	f.misc = f.journal(t, "MISC", types.JournalTypeGeneral)
	f.exchange = f.journal(t, "EXCH", types.JournalTypeExchange)
	return f
}

func (f *fixture) account(t *testing.T, code, name string, reconcilable bool) *types.Account {
	t.Helper()
	account, err := f.ledger.CreateAccount(ledger.AccountRequest{
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
	journal, err := f.ledger.CreateJournal(ledger.JournalRequest{
		CompanyID: f.company.CompanyID,
		Code:      code,
		Type:      kind,
	})
	require.NoError(t, err)
	return journal
}

// configureExchange enables exchange difference booking on the fixture
// company
func (f *fixture) configureExchange(t *testing.T) {
	t.Helper()
	_, err := f.ledger.ConfigureExchange(f.company.CompanyID,
		f.exchange.JournalID, f.gain.AccountID, f.loss.AccountID)
	require.NoError(t, err)
	company, err := f.service.db.GetCompany(f.company.CompanyID)
	require.NoError(t, err)
	f.company = company
}

// invoice posts a receivable debit against revenue and returns the
// receivable line
func (f *fixture) invoice(t *testing.T, date, amount, currencyCode, amountCurrency string) *types.MoveLine {
	t.Helper()
	line := ledger.MoveLineRequest{
		AccountID: f.receivable.AccountID,
		PartnerID: "PARTNER_A",
		Debit:     decimal.RequireFromString(amount),
	}
	if currencyCode != "" {
		line.CurrencyCode = currencyCode
		line.AmountCurrency = decimal.RequireFromString(amountCurrency)
	}
	resp, err := f.ledger.PostMove(ledger.MoveRequest{
		JournalID: f.sale.JournalID,
		Date:      date,
		Lines: []ledger.MoveLineRequest{
			line,
			{AccountID: f.revenue.AccountID, PartnerID: "PARTNER_A", Credit: decimal.RequireFromString(amount)},
		},
	}, "")
	require.NoError(t, err)
	return f.lineOn(t, resp, f.receivable.AccountID)
}

// payment posts a receivable credit against the bank and returns the
// receivable line
func (f *fixture) payment(t *testing.T, date, amount, currencyCode, amountCurrency string) *types.MoveLine {
	t.Helper()
	line := ledger.MoveLineRequest{
		AccountID: f.receivable.AccountID,
		PartnerID: "PARTNER_A",
		Credit:    decimal.RequireFromString(amount),
	}
	if currencyCode != "" {
		line.CurrencyCode = currencyCode
		line.AmountCurrency = decimal.RequireFromString(amountCurrency).Neg()
	}
	resp, err := f.ledger.PostMove(ledger.MoveRequest{
		JournalID: f.bankBook.JournalID,
		Date:      date,
		Lines: []ledger.MoveLineRequest{
			{AccountID: f.bankAcct.AccountID, PartnerID: "PARTNER_A", Debit: decimal.RequireFromString(amount)},
			line,
		},
	}, "")
	require.NoError(t, err)
	return f.lineOn(t, resp, f.receivable.AccountID)
}

// makePartnerPayment builds a bank payment entry for an arbitrary partner
func makePartnerPayment(f *fixture, partnerID, date, amount string) (ledger.MoveRequest, string) {
	return ledger.MoveRequest{
		JournalID: f.bankBook.JournalID,
		Date:      date,
		Lines: []ledger.MoveLineRequest{
			{AccountID: f.bankAcct.AccountID, PartnerID: partnerID, Debit: decimal.RequireFromString(amount)},
			{AccountID: f.receivable.AccountID, PartnerID: partnerID, Credit: decimal.RequireFromString(amount)},
		},
	}, ""
}

func (f *fixture) lineOn(t *testing.T, resp *ledger.MoveResponse, accountID string) *types.MoveLine {
	t.Helper()
	for i := range resp.Lines {
		if resp.Lines[i].AccountID == accountID {
			return &resp.Lines[i]
		}
	}
	t.Fatalf("move %s has no line on account %s", resp.Move.MoveID, accountID)
	return nil
}

func (f *fixture) residual(t *testing.T, lineID string) *Residual {
	t.Helper()
	residual, err := f.service.GetResidual(lineID)
	require.NoError(t, err)
	return residual
}

func (f *fixture) reconcile(t *testing.T, lineIDs ...string) *ReconcileResult {
	t.Helper()
	result, err := f.service.Reconcile(ReconcileRequest{LineIDs: lineIDs})
	require.NoError(t, err)
	return result
}
