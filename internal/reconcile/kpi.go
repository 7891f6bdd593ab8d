// Package reconcile independently recomputes fund KPIs from the raw
// cashflow ledger and cross-checks them against extracted values.
package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// ErrNoIRR is returned when the cashflow series admits no internal rate of
// return, e.g. all flows share a sign.
var ErrNoIRR = eris.New("reconcile: cashflow series has no IRR")

// FlowPoint is one dated signed cashflow for IRR computation.
type FlowPoint struct {
	Date   time.Time
	Amount decimal.Decimal
}

// SignedFlows converts ledger entries to the IRR sign convention: calls
// negative, distributions positive. Fee and tax flows reduce the investor's
// position and carry a negative sign; OTHER flows keep the sign they were
// recorded with.
func SignedFlows(flows []model.CashflowRecord) []FlowPoint {
	out := make([]FlowPoint, 0, len(flows))
	for _, f := range flows {
		amt := f.Amount
		switch f.Type {
		case model.FlowCall, model.FlowFee, model.FlowTax:
			amt = amt.Abs().Neg()
		case model.FlowDist:
			amt = amt.Abs()
		}
		out = append(out, FlowPoint{Date: f.FlowDate, Amount: amt})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

const (
	irrMaxIterations = 100
	irrPrecision     = 1e-7
	irrLowerBound    = -0.99
	irrUpperBound    = 5.0
	daysPerYear      = 365.25
)

// XNPV computes the net present value of dated flows at an annual rate,
// discounting by actual day count from the first flow.
func XNPV(rate float64, flows []FlowPoint) float64 {
	if len(flows) == 0 {
		return 0
	}
	t0 := flows[0].Date
	var npv float64
	for _, f := range flows {
		years := f.Date.Sub(t0).Hours() / 24 / daysPerYear
		amt, _ := f.Amount.Float64()
		npv += amt / math.Pow(1+rate, years)
	}
	return npv
}

// XIRR solves XNPV(rate) = 0 with Newton iteration, falling back to
// bisection over [-0.99, 5.0] when Newton diverges. The series must contain
// at least one negative and one positive flow.
func XIRR(flows []FlowPoint) (float64, error) {
	if len(flows) < 2 {
		return 0, eris.Wrap(ErrNoIRR, "fewer than two flows")
	}
	var hasNeg, hasPos bool
	for _, f := range flows {
		switch f.Amount.Sign() {
		case -1:
			hasNeg = true
		case 1:
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return 0, eris.Wrap(ErrNoIRR, "flows do not change sign")
	}

	if rate, ok := newtonIRR(flows); ok {
		return rate, nil
	}
	return bisectIRR(flows)
}

func newtonIRR(flows []FlowPoint) (float64, bool) {
	rate := 0.1
	for i := 0; i < irrMaxIterations; i++ {
		npv := XNPV(rate, flows)
		if math.Abs(npv) < irrPrecision {
			return rate, true
		}
		// Numeric derivative; the analytic form is no cheaper here.
		const h = 1e-6
		deriv := (XNPV(rate+h, flows) - npv) / h
		if deriv == 0 || math.IsNaN(deriv) {
			return 0, false
		}
		next := rate - npv/deriv
		if math.IsNaN(next) || next <= irrLowerBound || next > irrUpperBound {
			return 0, false
		}
		if math.Abs(next-rate) < irrPrecision {
			return next, true
		}
		rate = next
	}
	return 0, false
}

func bisectIRR(flows []FlowPoint) (float64, error) {
	lo, hi := irrLowerBound, irrUpperBound
	flo, fhi := XNPV(lo, flows), XNPV(hi, flows)
	if flo*fhi > 0 {
		return 0, eris.Wrap(ErrNoIRR, "no sign change on bracket")
	}
	for i := 0; i < irrMaxIterations; i++ {
		mid := (lo + hi) / 2
		fmid := XNPV(mid, flows)
		if math.Abs(fmid) < irrPrecision || (hi-lo)/2 < irrPrecision {
			return mid, nil
		}
		if flo*fmid < 0 {
			hi = mid
		} else {
			lo, flo = mid, fmid
		}
	}
	return (lo + hi) / 2, nil
}

// Multiples holds the performance multiples recomputed from cumulative
// contributed and distributed capital plus current NAV.
type Multiples struct {
	DPI  decimal.Decimal
	RVPI decimal.Decimal
	TVPI decimal.Decimal
	MOIC decimal.Decimal
}

// ComputeMultiples derives DPI, RVPI, TVPI and MOIC. Zero contributed
// capital yields zero multiples rather than a division error.
func ComputeMultiples(contributed, distributed, nav decimal.Decimal) Multiples {
	if contributed.IsZero() {
		return Multiples{}
	}
	dpi := distributed.Div(contributed)
	rvpi := nav.Div(contributed)
	return Multiples{
		DPI:  dpi,
		RVPI: rvpi,
		TVPI: dpi.Add(rvpi),
		MOIC: distributed.Add(nav).Div(contributed),
	}
}

// LedgerTotals sums a cashflow slice into contributed and distributed
// capital, both as positive magnitudes. Fee and tax flows are neither.
func LedgerTotals(flows []model.CashflowRecord) (contributed, distributed decimal.Decimal) {
	for _, f := range flows {
		switch f.Type {
		case model.FlowCall:
			contributed = contributed.Add(f.Amount.Abs())
		case model.FlowDist:
			distributed = distributed.Add(f.Amount.Abs())
		}
	}
	return contributed, distributed
}

// RollForwardNAV combines a prior NAV with the net ledger flows since its
// date: calls add to the position, distributions, fees and taxes reduce it.
// Market gains are not visible in the ledger.
func RollForwardNAV(prior decimal.Decimal, flows []model.CashflowRecord) decimal.Decimal {
	nav := prior
	for _, f := range flows {
		switch f.Type {
		case model.FlowCall:
			nav = nav.Add(f.Amount.Abs())
		case model.FlowDist, model.FlowFee, model.FlowTax:
			nav = nav.Sub(f.Amount.Abs())
		case model.FlowOther:
			nav = nav.Add(f.Amount)
		}
	}
	return nav
}
