package reconciliation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorMatchesExactPairs(t *testing.T) {
	f := newFixture(t)

	inv := f.invoice(t, "2026-01-15", "500.00", "", "")
	pay := f.payment(t, "2026-02-01", "500.00", "", "")
	// A near miss stays open
	odd := f.invoice(t, "2026-01-20", "123.45", "", "")

	processor := NewProcessor(f.service)
	require.NoError(t, processor.processOpenLines())

	assert.True(t, f.residual(t, inv.LineID).Reconciled)
	assert.True(t, f.residual(t, pay.LineID).Reconciled)
	assert.False(t, f.residual(t, odd.LineID).Reconciled)
}

func TestProcessorRespectsPartnerBoundary(t *testing.T) {
	f := newFixture(t)

	inv := f.invoice(t, "2026-01-15", "500.00", "", "")

	// Same amount, different partner
	resp, err := f.ledger.PostMove(makePartnerPayment(f, "PARTNER_B", "2026-02-01", "500.00"))
	require.NoError(t, err)
	otherPay := f.lineOn(t, resp, f.receivable.AccountID)

	processor := NewProcessor(f.service)
	require.NoError(t, processor.processOpenLines())

	assert.False(t, f.residual(t, inv.LineID).Reconciled)
	assert.False(t, f.residual(t, otherPay.LineID).Reconciled)
}

func TestProcessorSkipsPartiallySettledPairs(t *testing.T) {
	f := newFixture(t)

	inv := f.invoice(t, "2026-01-15", "500.00", "", "")
	pay1 := f.payment(t, "2026-02-01", "200.00", "", "")
	f.reconcile(t, inv.LineID, pay1.LineID)

	// Open residual is now 300, matched exactly by a later payment
	pay2 := f.payment(t, "2026-02-10", "300.00", "", "")

	processor := NewProcessor(f.service)
	require.NoError(t, processor.processOpenLines())

	assert.True(t, f.residual(t, inv.LineID).Reconciled)
	assert.True(t, f.residual(t, pay2.LineID).Reconciled)
}
