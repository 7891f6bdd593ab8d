package reconcile

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func flow(date string, ft model.FlowType, amount string) model.CashflowRecord {
	return model.CashflowRecord{
		FundID:   "fund-1",
		FlowDate: day(date),
		Type:     ft,
		Amount:   decimal.RequireFromString(amount),
	}
}

func TestSignedFlowsConvention(t *testing.T) {
	flows := []model.CashflowRecord{
		flow("2024-06-30", model.FlowDist, "200"),
		flow("2024-01-01", model.FlowCall, "1000"),
		flow("2024-03-31", model.FlowFee, "50"),
	}

	pts := SignedFlows(flows)
	require.Len(t, pts, 3)
	// Sorted by date, calls and fees negative, distributions positive.
	assert.Equal(t, "-1000", pts[0].Amount.String())
	assert.Equal(t, "-50", pts[1].Amount.String())
	assert.Equal(t, "200", pts[2].Amount.String())
}

func TestXIRRSingleRoundTrip(t *testing.T) {
	// 100 out, 110 back one year later: ten percent.
	pts := []FlowPoint{
		{Date: day("2024-01-01"), Amount: decimal.RequireFromString("-100")},
		{Date: day("2025-01-01"), Amount: decimal.RequireFromString("110")},
	}
	rate, err := XIRR(pts)
	require.NoError(t, err)
	assert.InDelta(t, 0.10, rate, 1e-3)
}

func TestXIRRMultiFlow(t *testing.T) {
	pts := []FlowPoint{
		{Date: day("2020-01-01"), Amount: decimal.RequireFromString("-10000000")},
		{Date: day("2021-01-01"), Amount: decimal.RequireFromString("-5000000")},
		{Date: day("2022-06-30"), Amount: decimal.RequireFromString("3000000")},
		{Date: day("2024-01-01"), Amount: decimal.RequireFromString("18000000")},
	}
	rate, err := XIRR(pts)
	require.NoError(t, err)
	// The solved rate zeroes the NPV.
	assert.InDelta(t, 0, XNPV(rate, pts), 1.0)
	assert.Greater(t, rate, 0.0)
}

func TestXIRRNegativeRate(t *testing.T) {
	pts := []FlowPoint{
		{Date: day("2022-01-01"), Amount: decimal.RequireFromString("-1000")},
		{Date: day("2024-01-01"), Amount: decimal.RequireFromString("640")},
	}
	rate, err := XIRR(pts)
	require.NoError(t, err)
	assert.Less(t, rate, 0.0)
	assert.InDelta(t, 0, XNPV(rate, pts), 0.01)
}

func TestXIRRRejectsOneSidedSeries(t *testing.T) {
	pts := []FlowPoint{
		{Date: day("2024-01-01"), Amount: decimal.RequireFromString("-100")},
		{Date: day("2025-01-01"), Amount: decimal.RequireFromString("-200")},
	}
	_, err := XIRR(pts)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoIRR))

	_, err = XIRR(pts[:1])
	require.Error(t, err)
}

func TestComputeMultiples(t *testing.T) {
	m := ComputeMultiples(
		decimal.RequireFromString("35000000"),
		decimal.RequireFromString("3600000"),
		decimal.RequireFromString("40700000"),
	)
	assert.InDelta(t, 0.1029, m.DPI.InexactFloat64(), 1e-4)
	assert.InDelta(t, 1.1629, m.RVPI.InexactFloat64(), 1e-4)
	assert.InDelta(t, 1.2657, m.TVPI.InexactFloat64(), 1e-4)
	// TVPI = DPI + RVPI holds by construction.
	assert.True(t, m.TVPI.Equal(m.DPI.Add(m.RVPI)))
	assert.InDelta(t, m.TVPI.InexactFloat64(), m.MOIC.InexactFloat64(), 1e-9)
}

func TestComputeMultiplesZeroContributed(t *testing.T) {
	m := ComputeMultiples(decimal.Zero, decimal.RequireFromString("10"), decimal.RequireFromString("10"))
	assert.True(t, m.TVPI.IsZero())
}

func TestLedgerTotals(t *testing.T) {
	flows := []model.CashflowRecord{
		flow("2024-01-01", model.FlowCall, "1000"),
		flow("2024-02-01", model.FlowCall, "500"),
		flow("2024-03-01", model.FlowDist, "300"),
		flow("2024-03-15", model.FlowFee, "25"),
	}
	contributed, distributed := LedgerTotals(flows)
	assert.Equal(t, "1500", contributed.String())
	assert.Equal(t, "300", distributed.String())
}

func TestRollForwardNAV(t *testing.T) {
	flows := []model.CashflowRecord{
		flow("2024-01-15", model.FlowCall, "5000000"),
		flow("2024-02-15", model.FlowDist, "3600000"),
		flow("2024-03-15", model.FlowFee, "300000"),
	}
	nav := RollForwardNAV(decimal.RequireFromString("35000000"), flows)
	assert.Equal(t, "36100000", nav.String())
}
