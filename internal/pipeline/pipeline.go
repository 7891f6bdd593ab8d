// Package pipeline orchestrates a document's path through extraction,
// resolution, validation and persistence.
package pipeline

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/olitsch123/FOReportingv2/internal/config"
	"github.com/olitsch123/FOReportingv2/internal/extract"
	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/internal/resolve"
	"github.com/olitsch123/FOReportingv2/internal/store"
	"github.com/olitsch123/FOReportingv2/internal/validate"
)

// Pipeline wires the extraction methods, the candidate reconciler and both
// validators around the store.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	library    *model.FieldLibrary
	extractors []extract.Extractor
	docVal     *validate.DocumentValidator
	contVal    *validate.ContinuityValidator
	assessor   *validate.Assessor
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	library *model.FieldLibrary,
	extractors []extract.Extractor,
) *Pipeline {
	tol := validate.NewTolerance(cfg.Validation.ToleranceRel, cfg.Validation.ToleranceAbs)
	ratioTol := validate.NewTolerance(cfg.Validation.ToleranceRel, cfg.Reconcile.MultipleTolerance)
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		library:    library,
		extractors: extractors,
		docVal:     validate.NewDocumentValidator(tol, ratioTol),
		contVal:    validate.NewContinuityValidator(tol),
		assessor: validate.NewAssessor(
			cfg.Validation.CriticalMultiplier,
			cfg.Validation.WarningMultiplier,
			cfg.Validation.ReviewThreshold,
		),
	}
}

// Process runs the full extraction, resolution and validation sequence for
// one parsed document and persists the resulting record. Submitting
// identical content twice returns the stored record without creating a new
// version.
func (p *Pipeline) Process(ctx context.Context, doc *model.ParsedDocument) (*model.ExtractedDocumentRecord, error) {
	log := zap.L().With(zap.String("doc_id", doc.DocID), zap.String("doc_type", string(doc.DocType)))

	hash := doc.ContentHash()
	if existing, err := p.store.FindRecordByHash(ctx, hash); err == nil {
		log.Info("pipeline: duplicate content, returning existing record",
			zap.String("record_id", existing.ID))
		return existing, nil
	} else if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "pipeline: idempotency lookup")
	}

	specs := p.library.ForDocType(doc.DocType)
	if len(specs) == 0 {
		return nil, eris.Wrapf(model.ErrUnknownField, "no field specs for doc type %q", doc.DocType)
	}

	fields, err := p.extractAll(ctx, specs, doc)
	if err != nil {
		return nil, err
	}

	rec := &model.ExtractedDocumentRecord{
		ID:          uuid.NewString(),
		DocID:       doc.DocID,
		DocType:     doc.DocType,
		FundID:      doc.FundID,
		InvestorID:  doc.InvestorID,
		AsOfDate:    doc.AsOfDate,
		Currency:    doc.Currency,
		ContentHash: hash,
		Version:     1,
		Fields:      fields,
		CreatedAt:   time.Now().UTC(),
	}
	p.fillAsOfDate(rec)
	p.linkPriorVersion(ctx, rec)
	rec.Confidence = validate.BaseConfidence(rec)

	p.assessor.Apply(rec, p.docVal.RequiredFields(rec, p.library.Required(doc.DocType)))
	p.assessor.Apply(rec, p.docVal.Validate(rec))

	prev, err := p.previousPeriod(ctx, rec)
	if err != nil {
		return nil, err
	}
	p.assessor.Apply(rec, p.contVal.Validate(rec, prev))

	if err := p.persist(ctx, rec); err != nil {
		return nil, err
	}

	log.Info("pipeline: document processed",
		zap.String("record_id", rec.ID),
		zap.Int("version", rec.Version),
		zap.Float64("confidence", rec.Confidence),
		zap.Bool("requires_review", rec.RequiresReview),
	)
	return rec, nil
}

// extractAll fans out per field across a bounded worker pool, runs every
// method for the field, and fans back in through the resolver. Methods
// never share state, so fields are fully parallel.
func (p *Pipeline) extractAll(ctx context.Context, specs []*model.FieldSpec, doc *model.ParsedDocument) (map[string]model.ResolvedField, error) {
	workers := p.cfg.Extraction.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	fields := make(map[string]model.ResolvedField, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, spec := range specs {
		g.Go(func() error {
			var candidates []model.ExtractionCandidate
			for _, ex := range p.extractors {
				cands, err := ex.Extract(gctx, spec, doc)
				if err != nil {
					if eris.Is(err, extract.ErrServiceUnavailable) {
						// Degraded, not failed: proceed on the remaining
						// methods' candidates.
						zap.L().Warn("pipeline: extraction method unavailable",
							zap.String("field", spec.Canonical),
							zap.String("method", string(ex.Method())),
						)
						continue
					}
					return eris.Wrapf(err, "pipeline: extract %s via %s", spec.Canonical, ex.Method())
				}
				candidates = append(candidates, cands...)
			}
			resolved := resolve.Resolve(spec, candidates)

			mu.Lock()
			fields[spec.Canonical] = resolved
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fields, nil
}

// fillAsOfDate takes the extracted as-of date when the parser did not
// supply one.
func (p *Pipeline) fillAsOfDate(rec *model.ExtractedDocumentRecord) {
	if !rec.AsOfDate.IsZero() {
		return
	}
	if f, ok := rec.Fields["as_of_date"]; ok && f.Date != nil {
		rec.AsOfDate = *f.Date
	}
}

// linkPriorVersion makes a reprocessed document a restatement of its latest
// stored version.
func (p *Pipeline) linkPriorVersion(ctx context.Context, rec *model.ExtractedDocumentRecord) {
	latest, err := p.store.LatestRecord(ctx, rec.DocID)
	if err != nil {
		if !eris.Is(err, store.ErrNotFound) {
			zap.L().Warn("pipeline: prior version lookup", zap.Error(err))
		}
		return
	}
	rec.Version = latest.Version + 1
	rec.RestatesID = latest.ID
}

func (p *Pipeline) previousPeriod(ctx context.Context, rec *model.ExtractedDocumentRecord) (*model.CapitalAccountPeriod, error) {
	if rec.AsOfDate.IsZero() {
		return nil, nil
	}
	prev, err := p.store.PreviousPeriod(ctx, rec.FundID, rec.InvestorID, rec.AsOfDate)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "pipeline: previous period lookup")
	}
	return prev, nil
}

// persist writes the record and, for balance-bearing documents, its derived
// period row and NAV observation.
func (p *Pipeline) persist(ctx context.Context, rec *model.ExtractedDocumentRecord) error {
	if err := p.store.SaveRecord(ctx, rec); err != nil {
		return eris.Wrap(err, "pipeline: save record")
	}

	switch rec.DocType {
	case model.DocTypeCapitalCallNotice, model.DocTypeDistributionNotice:
		return p.noticeCashflow(ctx, rec)
	case model.DocTypeCapitalAccountStatement, model.DocTypeQuarterlyReport:
	default:
		return nil
	}

	period := PeriodFromRecord(rec)
	if err := p.store.SavePeriod(ctx, period); err != nil {
		return eris.Wrap(err, "pipeline: save period")
	}

	if ending, ok := rec.Amount("ending_balance"); ok {
		obs := &model.NAVObservation{
			FundID:     rec.FundID,
			InvestorID: rec.InvestorID,
			AsOfDate:   rec.AsOfDate,
			NAV:        ending,
			Source:     rec.DocType,
		}
		if reason := implausibleNAV(obs); reason != "" {
			zap.L().Warn("pipeline: discarding implausible nav observation",
				zap.String("doc_id", rec.DocID),
				zap.String("reason", reason))
			return nil
		}
		if err := p.store.SaveNAVObservation(ctx, obs); err != nil {
			return eris.Wrap(err, "pipeline: save nav observation")
		}
	}
	return nil
}

// noticeCashflow appends the notice amount to the cashflow ledger. Only the
// first version of a notice feeds the ledger; a restatement leaves the
// append-only ledger to a manual correction.
func (p *Pipeline) noticeCashflow(ctx context.Context, rec *model.ExtractedDocumentRecord) error {
	if rec.Version > 1 {
		zap.L().Warn("pipeline: restated notice, ledger not updated",
			zap.String("doc_id", rec.DocID), zap.Int("version", rec.Version))
		return nil
	}

	field, flowType, dateField := "call_amount", model.FlowCall, "due_date"
	if rec.DocType == model.DocTypeDistributionNotice {
		field, flowType, dateField = "distribution_amount", model.FlowDist, "payment_date"
	}

	amount, ok := rec.Amount(field)
	if !ok || !amount.IsPositive() {
		zap.L().Warn("pipeline: notice without a positive amount, ledger not updated",
			zap.String("doc_id", rec.DocID), zap.String("field", field))
		return nil
	}

	flowDate := rec.AsOfDate
	if f, ok := rec.Fields[dateField]; ok && f.Date != nil {
		flowDate = *f.Date
	}
	if flowDate.IsZero() {
		zap.L().Warn("pipeline: notice without a flow date, ledger not updated",
			zap.String("doc_id", rec.DocID))
		return nil
	}

	flow := model.CashflowRecord{
		ID:         uuid.NewString(),
		FundID:     rec.FundID,
		InvestorID: rec.InvestorID,
		FlowDate:   flowDate,
		Type:       flowType,
		Amount:     amount,
		Currency:   rec.Currency,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := p.store.InsertCashflows(ctx, []model.CashflowRecord{flow}); err != nil {
		return eris.Wrap(err, "pipeline: append notice cashflow")
	}
	return nil
}

// navEpoch predates every fund the engine will ever see.
var navEpoch = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// implausibleNAV screens an observation before it enters the reconciliation
// inputs. The record itself is still stored; only the cross-source NAV series
// is protected.
func implausibleNAV(obs *model.NAVObservation) string {
	switch {
	case !obs.NAV.IsPositive():
		return "non-positive nav"
	case obs.AsOfDate.IsZero():
		return "no as-of date"
	case obs.AsOfDate.Before(navEpoch):
		return "as-of date before 1990"
	case obs.AsOfDate.After(time.Now().UTC().AddDate(0, 0, 1)):
		return "future as-of date"
	}
	return ""
}

// PeriodFromRecord maps a validated record onto the time-series period row.
func PeriodFromRecord(rec *model.ExtractedDocumentRecord) *model.CapitalAccountPeriod {
	return &model.CapitalAccountPeriod{
		ID:                  uuid.NewString(),
		FundID:              rec.FundID,
		InvestorID:          rec.InvestorID,
		AsOfDate:            rec.AsOfDate,
		Currency:            rec.Currency,
		BeginningBalance:    rec.AmountOrZero("beginning_balance"),
		EndingBalance:       rec.AmountOrZero("ending_balance"),
		Contributions:       rec.AmountOrZero("contributions_period"),
		DistributionsTotal:  rec.AmountOrZero("distributions_period"),
		DistributionsROC:    rec.AmountOrZero("distributions_roc_period"),
		DistributionsGain:   rec.AmountOrZero("distributions_gain_period"),
		DistributionsIncome: rec.AmountOrZero("distributions_income_period"),
		DistributionsTax:    rec.AmountOrZero("distributions_tax_period"),
		ManagementFees:      rec.AmountOrZero("management_fees_period"),
		PartnershipExpenses: rec.AmountOrZero("partnership_expenses_period"),
		RealizedGL:          rec.AmountOrZero("realized_gain_loss_period"),
		UnrealizedGL:        rec.AmountOrZero("unrealized_gain_loss_period"),
		TotalCommitment:     rec.AmountOrZero("total_commitment"),
		DrawnCommitment:     rec.AmountOrZero("drawn_commitment"),
		UnfundedCommitment:  rec.AmountOrZero("unfunded_commitment"),
		Recommitment:        rec.Recommitment,
		SourceRecordID:      rec.ID,
		Version:             rec.Version,
		CreatedAt:           time.Now().UTC(),
	}
}
