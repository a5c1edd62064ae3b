package reconciliation

import (
	"github.com/finbooks/recon-api/internal/types"
	"github.com/shopspring/decimal"
)

// computeResidual derives the open remainder of a line from its posted
// amounts and the partials touching it. Residuals are never stored; they
// are always recomputed from this single source of truth.
//
// The company-unit residual starts at the absolute balance and each
// partial subtracts its settled amount. The foreign-unit residual starts
// at the absolute currency amount; a partial in the same currency
// subtracts its own currency amount, while a partial expressed in another
// currency is converted through the line's own booked rate
// (amount_currency / balance) rather than any live rate, so historical
// entries keep their historical valuation.
func computeResidual(line *types.MoveLine, account *types.Account, partials []types.PartialReconcile,
	companyCurrency, lineCurrency *types.Currency) Residual {

	res := Residual{
		LineID:                 line.LineID,
		AmountResidual:         decimal.Zero,
		AmountResidualCurrency: decimal.Zero,
		CurrencyCode:           line.CurrencyCode,
	}
	if account == nil || !account.Reconcilable {
		return res
	}

	balance := line.Balance()
	amount := balance.Abs()
	amountCurrency := line.AmountCurrency.Abs()
	foreign := line.HasForeignCurrency() && lineCurrency != nil

	// Orientation of the residual. A pure exchange line can carry a zero
	// balance with a non-zero currency amount, in which case the currency
	// amount decides the side.
	sign := decimal.NewFromInt(1)
	switch {
	case balance.Sign() < 0:
		sign = decimal.NewFromInt(-1)
	case balance.Sign() == 0 && foreign && lineCurrency.Sign(line.AmountCurrency) < 0:
		sign = decimal.NewFromInt(-1)
	}

	for i := range partials {
		partial := &partials[i]
		if !partial.Touches(line.LineID) {
			continue
		}
		// A partial settles the credit side positively and the debit side
		// negatively relative to the line's own orientation.
		side := sign
		if partial.CreditLineID != line.LineID {
			side = sign.Neg()
		}
		amount = amount.Add(partial.Amount.Mul(side))
		if !foreign {
			continue
		}
		if partial.CurrencyCode == line.CurrencyCode {
			amountCurrency = amountCurrency.Add(partial.AmountCurrency.Mul(side))
		} else if balance.Sign() != 0 && line.AmountCurrency.Sign() != 0 {
			rate := line.AmountCurrency.Div(balance)
			converted := lineCurrency.Round(partial.Amount.Mul(rate))
			amountCurrency = amountCurrency.Add(converted.Mul(side))
		}
	}

	reconciled := false
	if companyCurrency.IsZero(amount) {
		if foreign && line.AmountCurrency.Sign() != 0 {
			reconciled = lineCurrency.IsZero(amountCurrency)
		} else {
			reconciled = true
		}
	}

	res.AmountResidual = companyCurrency.Round(amount.Mul(sign))
	if foreign {
		res.AmountResidualCurrency = lineCurrency.Round(amountCurrency.Mul(sign))
	} else {
		res.AmountResidualCurrency = res.AmountResidual
		res.CurrencyCode = companyCurrency.Code
	}
	res.Reconciled = reconciled
	return res
}

// matchValue is the residual expressed in the unit used for pairing
func matchValue(res Residual, foreignField bool) decimal.Decimal {
	if foreignField {
		return res.AmountResidualCurrency
	}
	return res.AmountResidual
}

// sharedForeignCurrency reports the single foreign currency shared by
// every line, or "" when the lines mix currencies or any line is booked
// in company units only. The matching unit is foreign only in the first
// case.
func sharedForeignCurrency(lines []types.MoveLine) string {
	code := ""
	for i := range lines {
		if !lines[i].HasForeignCurrency() || lines[i].AmountCurrency.Sign() == 0 {
			return ""
		}
		if code == "" {
			code = lines[i].CurrencyCode
		} else if code != lines[i].CurrencyCode {
			return ""
		}
	}
	return code
}
