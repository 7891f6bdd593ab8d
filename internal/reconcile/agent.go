package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/internal/store"
	"github.com/olitsch123/FOReportingv2/internal/validate"
)

// Check names emitted by the agent.
const (
	CheckNAVCrossSource = "nav_cross_source"
	CheckNAVRollForward = "nav_rollforward"
	CheckIRR            = "irr"
	CheckMOIC           = "moic"
	CheckTVPI           = "tvpi"
	CheckDPI            = "dpi"
	CheckRVPI           = "rvpi"
)

// ErrScopeBusy is returned when another run already holds the scope's lease.
// The caller coalesces with the running instance instead of duplicating it.
var ErrScopeBusy = eris.New("reconcile: scope lease held by another run")

// Storage is the slice of the store the agent reads and writes.
type Storage interface {
	LatestRecordForScope(ctx context.Context, fundID, investorID string, docType model.DocType, asOf time.Time) (*model.ExtractedDocumentRecord, error)
	Cashflows(ctx context.Context, fundID, investorID string, from, to time.Time) ([]model.CashflowRecord, error)
	NAVObservations(ctx context.Context, fundID string, asOf time.Time) ([]model.NAVObservation, error)
	PriorNAVObservation(ctx context.Context, fundID string, before time.Time) (*model.NAVObservation, error)
	SaveReport(ctx context.Context, rep *model.ReconciliationReport) error
	AcquireLease(ctx context.Context, scope model.ReconScope, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, scope model.ReconScope, holder string) error
}

// Agent recomputes NAV, IRR and the performance multiples for one scope and
// compares them against extracted values. Runs for the same scope are
// serialized through a store lease.
type Agent struct {
	storage  Storage
	tol      validate.Tolerance
	irrTol   float64
	irrFail  float64
	multTol  decimal.Decimal
	leaseTTL time.Duration
	holder   string
	now      func() time.Time
}

// NewAgent creates an Agent. irrTol is the IRR agreement band, irrFail the
// divergence beyond which a warning escalates to a failure; multTol bounds
// the multiple comparisons.
func NewAgent(storage Storage, tol validate.Tolerance, irrTol, irrFail, multTol float64, leaseTTL time.Duration) *Agent {
	return &Agent{
		storage:  storage,
		tol:      tol,
		irrTol:   irrTol,
		irrFail:  irrFail,
		multTol:  decimal.NewFromFloat(multTol),
		leaseTTL: leaseTTL,
		holder:   uuid.NewString(),
		now:      time.Now,
	}
}

// Run executes one reconciliation for the scope and persists the report.
// Identical stored inputs yield identical per-check outcomes.
func (a *Agent) Run(ctx context.Context, scope model.ReconScope) (*model.ReconciliationReport, error) {
	ok, err := a.storage.AcquireLease(ctx, scope, a.holder, a.leaseTTL)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: acquire lease")
	}
	if !ok {
		return nil, eris.Wrapf(ErrScopeBusy, "fund %s as of %s", scope.FundID, scope.AsOfDate.Format("2006-01-02"))
	}
	defer func() {
		if rerr := a.storage.ReleaseLease(context.WithoutCancel(ctx), scope, a.holder); rerr != nil {
			zap.L().Warn("reconcile: release lease", zap.Error(rerr))
		}
	}()

	report := &model.ReconciliationReport{
		ID:        uuid.NewString(),
		Scope:     scope,
		Status:    model.RunRunning,
		StartedAt: a.now(),
	}

	inputs, err := a.gather(ctx, scope)
	if err != nil {
		return nil, err
	}
	report.InputVersion = inputs.fingerprint()

	if inputs.missingRequired() {
		// Absent source data is a coverage gap, not a failed check.
		report.Status = model.RunMissingData
		report.Checks = inputs.missingChecks()
	} else {
		report.Checks = a.runChecks(inputs)
		report.Status = model.RunPassed
		for _, c := range report.Checks {
			if c.Status == model.CheckFail {
				report.Status = model.RunFlagged
				report.RequiresReview = true
				break
			}
		}
	}
	report.FinishedAt = a.now()

	if err := a.storage.SaveReport(ctx, report); err != nil {
		return nil, eris.Wrap(err, "reconcile: save report")
	}

	if report.Status == model.RunFlagged {
		for _, c := range report.Checks {
			if c.Status != model.CheckFail {
				continue
			}
			zap.L().Warn("reconcile: check failed",
				zap.String("fund_id", scope.FundID),
				zap.String("check", c.Name),
				zap.String("message", c.Message),
			)
		}
	}

	passed, failed, warnings, missing := report.Summary()
	zap.L().Info("reconcile: run complete",
		zap.String("fund_id", scope.FundID),
		zap.String("as_of", scope.AsOfDate.Format("2006-01-02")),
		zap.String("status", string(report.Status)),
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("warnings", warnings),
		zap.Int("missing", missing),
	)
	return report, nil
}

// inputs is everything one run reads, gathered up front so the fingerprint
// covers exactly what the checks will see.
type inputs struct {
	scope     model.ReconScope
	flows     []model.CashflowRecord
	navByType map[model.DocType]decimal.Decimal
	priorNAV  *model.NAVObservation
	qrRecord  *model.ExtractedDocumentRecord
}

func (a *Agent) gather(ctx context.Context, scope model.ReconScope) (*inputs, error) {
	in := &inputs{scope: scope, navByType: make(map[model.DocType]decimal.Decimal)}

	obs, err := a.storage.NAVObservations(ctx, scope.FundID, scope.AsOfDate)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load nav observations")
	}
	for _, o := range obs {
		in.navByType[o.Source] = o.NAV
	}

	in.priorNAV, err = a.storage.PriorNAVObservation(ctx, scope.FundID, scope.AsOfDate)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "reconcile: load prior nav")
	}

	in.flows, err = a.storage.Cashflows(ctx, scope.FundID, scope.InvestorID, time.Time{}, scope.AsOfDate)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load cashflows")
	}

	in.qrRecord, err = a.storage.LatestRecordForScope(ctx, scope.FundID, scope.InvestorID, model.DocTypeQuarterlyReport, scope.AsOfDate)
	if err != nil && !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "reconcile: load quarterly report record")
	}

	return in, nil
}

// missingRequired reports whether the run lacks the data every check needs:
// a cashflow history and at least one NAV observation at the as-of date.
func (in *inputs) missingRequired() bool {
	return len(in.flows) == 0 || len(in.navByType) == 0
}

func (in *inputs) missingChecks() []model.ReconCheck {
	var out []model.ReconCheck
	if len(in.flows) == 0 {
		out = append(out, model.ReconCheck{
			Name: CheckNAVRollForward, Status: model.CheckMissing,
			Message: "no cashflow ledger entries for scope",
		})
	}
	if len(in.navByType) == 0 {
		out = append(out, model.ReconCheck{
			Name: CheckNAVCrossSource, Status: model.CheckMissing,
			Message: "no NAV observation at as-of date",
		})
	}
	return out
}

// currentNAV picks the NAV used as IRR terminal value, preferring the
// capital account statement as the more granular source.
func (in *inputs) currentNAV() decimal.Decimal {
	if nav, ok := in.navByType[model.DocTypeCapitalAccountStatement]; ok {
		return nav
	}
	for _, nav := range in.navByType {
		return nav
	}
	return decimal.Zero
}

// fingerprint hashes the gathered inputs. Re-running over unchanged data
// reproduces the same value.
func (in *inputs) fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s\n", in.scope.FundID, in.scope.InvestorID, in.scope.AsOfDate.Format("2006-01-02"))
	for _, f := range in.flows {
		fmt.Fprintf(h, "f:%s|%s|%s|%s\n", f.ID, f.FlowDate.Format("2006-01-02"), f.Type, f.Amount.String())
	}
	types := make([]string, 0, len(in.navByType))
	for dt := range in.navByType {
		types = append(types, string(dt))
	}
	sort.Strings(types)
	for _, dt := range types {
		fmt.Fprintf(h, "n:%s|%s\n", dt, in.navByType[model.DocType(dt)].String())
	}
	if in.priorNAV != nil {
		fmt.Fprintf(h, "p:%s|%s\n", in.priorNAV.AsOfDate.Format("2006-01-02"), in.priorNAV.NAV.String())
	}
	if in.qrRecord != nil {
		fmt.Fprintf(h, "q:%s|%d\n", in.qrRecord.ID, in.qrRecord.Version)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (a *Agent) runChecks(in *inputs) []model.ReconCheck {
	var checks []model.ReconCheck

	checks = append(checks, a.navChecks(in)...)
	checks = append(checks, a.irrCheck(in))
	checks = append(checks, a.multipleChecks(in)...)
	return checks
}

// navChecks compares the two document sources against each other and each
// against the ledger roll-forward.
func (a *Agent) navChecks(in *inputs) []model.ReconCheck {
	var checks []model.ReconCheck

	casNAV, hasCAS := in.navByType[model.DocTypeCapitalAccountStatement]
	qrNAV, hasQR := in.navByType[model.DocTypeQuarterlyReport]

	if hasCAS && hasQR {
		checks = append(checks, a.moneyCheck(CheckNAVCrossSource, qrNAV, casNAV,
			"quarterly report NAV vs capital account statement NAV"))
	} else {
		checks = append(checks, model.ReconCheck{
			Name: CheckNAVCrossSource, Status: model.CheckMissing,
			Message: "only one NAV source present at as-of date",
		})
	}

	if in.priorNAV == nil {
		checks = append(checks, model.ReconCheck{
			Name: CheckNAVRollForward, Status: model.CheckMissing,
			Message: "no prior NAV observation to roll forward from",
		})
		return checks
	}

	var sinceflows []model.CashflowRecord
	for _, f := range in.flows {
		if f.FlowDate.After(in.priorNAV.AsOfDate) && !f.FlowDate.After(in.scope.AsOfDate) {
			sinceflows = append(sinceflows, f)
		}
	}
	computed := RollForwardNAV(in.priorNAV.NAV, sinceflows)
	checks = append(checks, a.moneyCheck(CheckNAVRollForward, computed, in.currentNAV(),
		"ledger roll-forward NAV vs observed NAV"))
	return checks
}

func (a *Agent) moneyCheck(name string, computed, reported decimal.Decimal, what string) model.ReconCheck {
	diff := computed.Sub(reported).Abs()
	tol := a.tol.For(reported)
	c := model.ReconCheck{
		Name:      name,
		Status:    model.CheckPass,
		Computed:  &computed,
		Reported:  &reported,
		Diff:      &diff,
		Tolerance: tol,
	}
	if diff.GreaterThan(tol) {
		c.Status = model.CheckFail
		c.Message = fmt.Sprintf("%s: %s vs %s (diff %s, tolerance %s)",
			what, computed.String(), reported.String(), diff.String(), tol.String())
	}
	return c
}

// irrCheck recomputes IRR over the full flow history plus the current NAV
// as terminal value and compares it to the quarterly-report figure.
func (a *Agent) irrCheck(in *inputs) model.ReconCheck {
	reported, ok := reportedAmount(in.qrRecord, "irr_net")
	if !ok {
		return model.ReconCheck{
			Name: CheckIRR, Status: model.CheckMissing,
			Message: "no reported net IRR to compare against",
		}
	}

	series := SignedFlows(in.flows)
	series = append(series, FlowPoint{Date: in.scope.AsOfDate, Amount: in.currentNAV()})
	rate, err := XIRR(series)
	if err != nil {
		return model.ReconCheck{
			Name: CheckIRR, Status: model.CheckMissing,
			Message: "IRR not computable from ledger: " + err.Error(),
		}
	}

	computed := decimal.NewFromFloat(rate).Round(6)
	diff := computed.Sub(reported).Abs()
	tol := decimal.NewFromFloat(a.irrTol)
	c := model.ReconCheck{
		Name:      CheckIRR,
		Status:    model.CheckPass,
		Computed:  &computed,
		Reported:  &reported,
		Diff:      &diff,
		Tolerance: tol,
	}
	switch {
	case diff.LessThanOrEqual(tol):
	case diff.LessThanOrEqual(decimal.NewFromFloat(a.irrFail)):
		c.Status = model.CheckWarning
		c.Message = fmt.Sprintf("recomputed IRR %s vs reported %s (diff %s)",
			computed.String(), reported.String(), diff.String())
	default:
		c.Status = model.CheckFail
		c.Message = fmt.Sprintf("recomputed IRR %s vs reported %s (diff %s)",
			computed.String(), reported.String(), diff.String())
	}
	return c
}

func (a *Agent) multipleChecks(in *inputs) []model.ReconCheck {
	contributed, distributed := LedgerTotals(in.flows)
	m := ComputeMultiples(contributed, distributed, in.currentNAV())

	pairs := []struct {
		name     string
		field    string
		computed decimal.Decimal
	}{
		{CheckDPI, "dpi", m.DPI},
		{CheckRVPI, "rvpi", m.RVPI},
		{CheckTVPI, "tvpi", m.TVPI},
		{CheckMOIC, "moic_net", m.MOIC},
	}

	var checks []model.ReconCheck
	for _, p := range pairs {
		reported, ok := reportedAmount(in.qrRecord, p.field)
		if !ok {
			checks = append(checks, model.ReconCheck{
				Name: p.name, Status: model.CheckMissing,
				Message: fmt.Sprintf("no reported %s to compare against", p.field),
			})
			continue
		}
		computed := p.computed.Round(4)
		diff := computed.Sub(reported).Abs()
		c := model.ReconCheck{
			Name:      p.name,
			Status:    model.CheckPass,
			Computed:  &computed,
			Reported:  &reported,
			Diff:      &diff,
			Tolerance: a.multTol,
		}
		if diff.GreaterThan(a.multTol) {
			c.Status = model.CheckFail
			c.Message = fmt.Sprintf("recomputed %s %s vs reported %s (diff %s)",
				p.field, computed.String(), reported.String(), diff.String())
		}
		checks = append(checks, c)
	}
	return checks
}

func reportedAmount(rec *model.ExtractedDocumentRecord, field string) (decimal.Decimal, bool) {
	if rec == nil {
		return decimal.Decimal{}, false
	}
	return rec.Amount(field)
}
