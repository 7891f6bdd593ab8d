package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olitsch123/FOReportingv2/internal/config"
	"github.com/olitsch123/FOReportingv2/internal/extract"
	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/internal/store"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	records []*model.ExtractedDocumentRecord
	periods []*model.CapitalAccountPeriod
	navObs  []*model.NAVObservation
	flows   []model.CashflowRecord
	prev    *model.CapitalAccountPeriod
}

func (m *memStore) SaveRecord(ctx context.Context, rec *model.ExtractedDocumentRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) FindRecordByHash(ctx context.Context, hash string) (*model.ExtractedDocumentRecord, error) {
	for _, r := range m.records {
		if r.ContentHash == hash {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) LatestRecord(ctx context.Context, docID string) (*model.ExtractedDocumentRecord, error) {
	var latest *model.ExtractedDocumentRecord
	for _, r := range m.records {
		if r.DocID == docID && (latest == nil || r.Version > latest.Version) {
			latest = r
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (m *memStore) LatestRecordForScope(ctx context.Context, fundID, investorID string, docType model.DocType, asOf time.Time) (*model.ExtractedDocumentRecord, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) SavePeriod(ctx context.Context, p *model.CapitalAccountPeriod) error {
	m.periods = append(m.periods, p)
	return nil
}

func (m *memStore) PreviousPeriod(ctx context.Context, fundID, investorID string, before time.Time) (*model.CapitalAccountPeriod, error) {
	if m.prev == nil {
		return nil, store.ErrNotFound
	}
	return m.prev, nil
}

func (m *memStore) InsertCashflows(ctx context.Context, flows []model.CashflowRecord) (int64, error) {
	m.flows = append(m.flows, flows...)
	return int64(len(flows)), nil
}

func (m *memStore) Cashflows(ctx context.Context, fundID, investorID string, from, to time.Time) ([]model.CashflowRecord, error) {
	return nil, nil
}

func (m *memStore) SaveNAVObservation(ctx context.Context, obs *model.NAVObservation) error {
	m.navObs = append(m.navObs, obs)
	return nil
}

func (m *memStore) NAVObservations(ctx context.Context, fundID string, asOf time.Time) ([]model.NAVObservation, error) {
	return nil, nil
}

func (m *memStore) PriorNAVObservation(ctx context.Context, fundID string, before time.Time) (*model.NAVObservation, error) {
	return nil, store.ErrNotFound
}

func (m *memStore) SaveReport(ctx context.Context, rep *model.ReconciliationReport) error {
	return nil
}

func (m *memStore) AcquireLease(ctx context.Context, scope model.ReconScope, holder string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (m *memStore) ReleaseLease(ctx context.Context, scope model.ReconScope, holder string) error {
	return nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error    { return nil }
func (m *memStore) Close() error                      { return nil }

// downExtractor simulates the structured method with an unreachable backend.
type downExtractor struct{}

func (downExtractor) Method() model.Method { return model.MethodStructured }
func (downExtractor) Extract(ctx context.Context, spec *model.FieldSpec, doc *model.ParsedDocument) ([]model.ExtractionCandidate, error) {
	return nil, extract.ErrServiceUnavailable
}

func testConfig() *config.Config {
	return &config.Config{
		Extraction: config.ExtractionConfig{
			TableConfidence:           0.90,
			PatternConfidence:         0.80,
			PositionalExactConfidence: 0.75,
			PositionalLooseConfidence: 0.60,
			Workers:                   4,
		},
		Validation: config.ValidationConfig{
			ToleranceRel:       1e-4,
			ToleranceAbs:       1.0,
			ReviewThreshold:    0.80,
			CriticalMultiplier: 0.5,
			WarningMultiplier:  0.85,
		},
		Reconcile: config.ReconcileConfig{MultipleTolerance: 0.01},
	}
}

func testPipeline(t *testing.T, st store.Store, extractors ...extract.Extractor) *Pipeline {
	t.Helper()
	if len(extractors) == 0 {
		extractors = []extract.Extractor{
			extract.NewTableExtractor(0.90),
			extract.NewPatternExtractor(0.80),
			extract.NewPositionalExtractor(0.75, 0.60),
		}
	}
	lib, err := model.BuiltinLibrary()
	require.NoError(t, err)
	return New(testConfig(), st, lib, extractors)
}

func casDocument() *model.ParsedDocument {
	return &model.ParsedDocument{
		DocID:    "doc-cas-1",
		DocType:  model.DocTypeCapitalAccountStatement,
		FundID:   "fund-1",
		AsOfDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Currency: "USD",
		Text:     "Capital Account Statement as of March 31, 2024",
		Tables: []model.Table{{
			Page: 1,
			Cells: [][]string{
				{"Beginning Balance", "35,000,000.00"},
				{"Contributions", "5,000,000.00"},
				{"Distributions", "3,600,000.00"},
				{"Management Fees", "300,000.00"},
				{"Realized Gain/(Loss)", "1,500,000.00"},
				{"Unrealized Gain/(Loss)", "3,000,000.00"},
				{"Ending Balance", "40,600,000.00"},
			},
		}},
	}
}

func TestProcessDocument(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	rec, err := p.Process(context.Background(), casDocument())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Version)
	assert.Empty(t, rec.RestatesID)
	assert.Equal(t, "40600000", rec.Fields["ending_balance"].Value)
	assert.Equal(t, []model.Method{model.MethodTable}, rec.Fields["ending_balance"].Methods)
	assert.Greater(t, rec.Confidence, 0.8)
	assert.False(t, rec.RequiresReview)

	// Balance equation holds exactly on this statement.
	var balance *model.ValidationResult
	for i := range rec.Results {
		if rec.Results[i].RuleID == "balance_equation" {
			balance = &rec.Results[i]
		}
	}
	require.NotNil(t, balance)
	assert.True(t, balance.Passed)

	require.Len(t, st.records, 1)
	require.Len(t, st.periods, 1)
	assert.Equal(t, "40600000", st.periods[0].EndingBalance.String())
	assert.Equal(t, rec.ID, st.periods[0].SourceRecordID)
	require.Len(t, st.navObs, 1)
	assert.Equal(t, model.DocTypeCapitalAccountStatement, st.navObs[0].Source)
}

func TestProcessDuplicateContentIsNoOp(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	first, err := p.Process(context.Background(), casDocument())
	require.NoError(t, err)
	second, err := p.Process(context.Background(), casDocument())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, st.records, 1)
}

func TestProcessChangedContentCreatesRestatement(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	first, err := p.Process(context.Background(), casDocument())
	require.NoError(t, err)

	restated := casDocument()
	restated.Tables[0].Cells[6][1] = "40,700,000.00"
	second, err := p.Process(context.Background(), restated)
	require.NoError(t, err)

	assert.Equal(t, 2, second.Version)
	assert.Equal(t, first.ID, second.RestatesID)
	assert.Len(t, st.records, 2)
}

func TestProcessSurvivesStructuredOutage(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st,
		extract.NewTableExtractor(0.90),
		downExtractor{},
	)

	rec, err := p.Process(context.Background(), casDocument())
	require.NoError(t, err)
	assert.True(t, rec.Fields["ending_balance"].Resolved())
	require.Len(t, st.records, 1)
}

func TestProcessContinuityDiscontinuityFlagsReview(t *testing.T) {
	st := &memStore{
		prev: &model.CapitalAccountPeriod{
			FundID:        "fund-1",
			EndingBalance: decimal.RequireFromString("34000000"),
		},
	}
	p := testPipeline(t, st)

	rec, err := p.Process(context.Background(), casDocument())
	require.NoError(t, err)
	// Prior ending 34m vs current beginning 35m.
	assert.True(t, rec.RequiresReview)

	found := false
	for _, r := range rec.Results {
		if r.RuleID == "balance_continuity" {
			found = true
			assert.False(t, r.Passed)
		}
	}
	assert.True(t, found)
}

func TestApplyOverride(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	first, err := p.Process(context.Background(), casDocument())
	require.NoError(t, err)

	rec, err := p.ApplyOverride(context.Background(), Override{
		DocID:      "doc-cas-1",
		Field:      "ending_balance",
		NewValue:   "40,700,000.00",
		ReviewerID: "ops-1",
		Reason:     "administrator errata",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, first.ID, rec.RestatesID)

	f := rec.Fields["ending_balance"]
	assert.Equal(t, "40700000", f.Value)
	assert.Equal(t, 1.0, f.Confidence)
	assert.Equal(t, []model.Method{model.MethodManual}, f.Methods)
	require.Len(t, f.Evidence, 1)
	assert.Equal(t, "ops-1", f.Evidence[0].ReviewerID)

	// The amended balance no longer satisfies the roll-forward equation, so
	// validation re-ran and flagged the new version.
	assert.True(t, rec.RequiresReview)

	// The original version is untouched.
	assert.False(t, first.RequiresReview)
	assert.Len(t, st.records, 2)
}

func TestApplyOverrideUnknownFieldIsFatal(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	_, err := p.ApplyOverride(context.Background(), Override{DocID: "x", Field: "nonexistent"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrUnknownField))
}

func TestProcessCallNoticeFeedsLedger(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	rec, err := p.Process(context.Background(), &model.ParsedDocument{
		DocID:    "doc-call-1",
		DocType:  model.DocTypeCapitalCallNotice,
		FundID:   "fund-1",
		Currency: "USD",
		Text:     "Capital Call Notice\nCall Amount: 5,000,000.00\nDue Date: 2024-01-15",
	})
	require.NoError(t, err)
	assert.True(t, rec.Fields["call_amount"].Resolved())

	require.Len(t, st.flows, 1)
	assert.Equal(t, model.FlowCall, st.flows[0].Type)
	assert.True(t, st.flows[0].Amount.Equal(decimal.RequireFromString("5000000")))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), st.flows[0].FlowDate)
	assert.Empty(t, st.periods)
	assert.Empty(t, st.navObs)
}

func TestProcessNoticeWithoutAmountSkipsLedger(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	rec, err := p.Process(context.Background(), &model.ParsedDocument{
		DocID:   "doc-call-2",
		DocType: model.DocTypeCapitalCallNotice,
		FundID:  "fund-1",
		Text:    "Capital Call Notice\nDue Date: 2024-01-15",
	})
	require.NoError(t, err)
	assert.False(t, rec.Fields["call_amount"].Resolved())
	assert.Empty(t, st.flows)
}

func TestImplausibleNAVIsDiscarded(t *testing.T) {
	st := &memStore{}
	p := testPipeline(t, st)

	doc := casDocument()
	doc.AsOfDate = time.Date(1987, 12, 31, 0, 0, 0, 0, time.UTC)
	doc.Text = "Capital Account Statement"

	_, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	// The record and period persist; only the NAV series is protected.
	assert.Len(t, st.records, 1)
	assert.Len(t, st.periods, 1)
	assert.Empty(t, st.navObs)
}
