package reconciliation

import (
	"testing"

	"github.com/finbooks/recon-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreconcileFullReopensLines(t *testing.T) {
	f := newFixture(t)

	inv := f.invoice(t, "2026-01-15", "500.00", "", "")
	pay := f.payment(t, "2026-02-01", "500.00", "", "")
	result := f.reconcile(t, inv.LineID, pay.LineID)
	require.NotNil(t, result.FullReconcile)

	undone, err := f.service.Unreconcile(UnreconcileRequest{
		FullReconcileID: result.FullReconcile.FullReconcileID,
	})
	require.NoError(t, err)
	assert.Len(t, undone.RemovedPartialIDs, 1)
	assert.Equal(t, []string{result.FullReconcile.FullReconcileID}, undone.RemovedFullReconcileIDs)
	assert.Empty(t, undone.ReversalMoveIDs)

	invRes := f.residual(t, inv.LineID)
	assert.Equal(t, "500", invRes.AmountResidual.String())
	assert.False(t, invRes.Reconciled)

	line, err := f.service.db.GetLine(inv.LineID)
	require.NoError(t, err)
	assert.Empty(t, line.FullReconcileID)

	// The pair can be settled again
	result = f.reconcile(t, inv.LineID, pay.LineID)
	require.NotNil(t, result.FullReconcile)
}

func TestUnreconcileSinglePartialBreaksFull(t *testing.T) {
	f := newFixture(t)

	inv := f.invoice(t, "2026-01-15", "1000.00", "", "")
	pay1 := f.payment(t, "2026-02-01", "400.00", "", "")
	pay2 := f.payment(t, "2026-02-10", "600.00", "", "")
	result := f.reconcile(t, inv.LineID, pay1.LineID, pay2.LineID)
	require.NotNil(t, result.FullReconcile)
	require.Len(t, result.Partials, 2)

	// Removing one partial dissolves the closure but keeps the other
	// settlement in place
	first := result.Partials[0] // smallest: 400 against pay1
	undone, err := f.service.Unreconcile(UnreconcileRequest{PartialIDs: []string{first.PartialID}})
	require.NoError(t, err)
	assert.Equal(t, []string{first.PartialID}, undone.RemovedPartialIDs)
	assert.Len(t, undone.RemovedFullReconcileIDs, 1)

	assert.Equal(t, "400", f.residual(t, inv.LineID).AmountResidual.String())
	assert.Equal(t, "-400", f.residual(t, pay1.LineID).AmountResidual.String())

	pay2Res := f.residual(t, pay2.LineID)
	assert.Equal(t, "0", pay2Res.AmountResidual.String())
	line, err := f.service.db.GetLine(pay2.LineID)
	require.NoError(t, err)
	assert.Empty(t, line.FullReconcileID)
}

func TestUnreconcileReversesExchangeMove(t *testing.T) {
	f := newFixture(t)
	f.configureExchange(t)

	inv := f.invoice(t, "2026-02-10", "100.00", "USD", "120.00")
	pay := f.payment(t, "2026-03-01", "109.09", "USD", "120.00")
	result := f.reconcile(t, inv.LineID, pay.LineID)
	require.NotNil(t, result.FullReconcile)
	require.NotEmpty(t, result.FullReconcile.ExchangeMoveID)

	undone, err := f.service.Unreconcile(UnreconcileRequest{
		FullReconcileID: result.FullReconcile.FullReconcileID,
	})
	require.NoError(t, err)
	require.Len(t, undone.ReversalMoveIDs, 1)

	// Original lines are fully open again in both units
	invRes := f.residual(t, inv.LineID)
	assert.Equal(t, "100", invRes.AmountResidual.String())
	assert.Equal(t, "120", invRes.AmountResidualCurrency.String())
	payRes := f.residual(t, pay.LineID)
	assert.Equal(t, "-109.09", payRes.AmountResidual.String())
	assert.Equal(t, "-120", payRes.AmountResidualCurrency.String())

	// The reversal mirrors the exchange entry line for line
	reversalLines, err := f.service.db.GetMoveLines(undone.ReversalMoveIDs[0])
	require.NoError(t, err)
	exchangeLines, err := f.service.db.GetMoveLines(result.FullReconcile.ExchangeMoveID)
	require.NoError(t, err)
	require.Len(t, reversalLines, len(exchangeLines))
	for i := range exchangeLines {
		assert.Equal(t, exchangeLines[i].Debit.String(), reversalLines[i].Credit.String())
		assert.Equal(t, exchangeLines[i].Credit.String(), reversalLines[i].Debit.String())
	}

	// The correcting line and its reversal settle each other, keeping
	// the receivable account clean
	for i := range exchangeLines {
		if exchangeLines[i].AccountID != f.receivable.AccountID {
			continue
		}
		res := f.residual(t, exchangeLines[i].LineID)
		assert.True(t, res.Reconciled)
	}
}

func TestUnreconcileKeepsExchangeMoveWhenAsked(t *testing.T) {
	f := newFixture(t)
	f.configureExchange(t)

	inv := f.invoice(t, "2026-02-10", "100.00", "USD", "120.00")
	pay := f.payment(t, "2026-03-01", "109.09", "USD", "120.00")
	result := f.reconcile(t, inv.LineID, pay.LineID)
	require.NotNil(t, result.FullReconcile)

	keep := false
	undone, err := f.service.Unreconcile(UnreconcileRequest{
		FullReconcileID:  result.FullReconcile.FullReconcileID,
		VoidExchangeMove: &keep,
	})
	require.NoError(t, err)
	assert.Empty(t, undone.ReversalMoveIDs)

	// The exchange entry stays posted and its correcting line sits open
	// on the receivable account
	exchangeLines, err := f.service.db.GetMoveLines(result.FullReconcile.ExchangeMoveID)
	require.NoError(t, err)
	for i := range exchangeLines {
		if exchangeLines[i].AccountID != f.receivable.AccountID {
			continue
		}
		res := f.residual(t, exchangeLines[i].LineID)
		assert.False(t, res.Reconciled)
		assert.Equal(t, "9.09", res.AmountResidual.String())
	}
}

func TestUnreconcileValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Unreconcile(UnreconcileRequest{})
	require.Error(t, err)
	assert.IsType(t, &types.ValidationError{}, err)

	_, err = f.service.Unreconcile(UnreconcileRequest{
		FullReconcileID: "FRC_x",
		PartialIDs:      []string{"PRC_y"},
	})
	require.Error(t, err)

	_, err = f.service.Unreconcile(UnreconcileRequest{FullReconcileID: "FRC_missing"})
	require.Error(t, err)
	assert.IsType(t, &types.ValidationError{}, err)

	_, err = f.service.Unreconcile(UnreconcileRequest{PartialIDs: []string{"PRC_missing"}})
	require.Error(t, err)
	assert.IsType(t, &types.ValidationError{}, err)
}
