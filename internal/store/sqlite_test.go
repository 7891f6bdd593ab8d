package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(version int, hash string) *model.ExtractedDocumentRecord {
	return &model.ExtractedDocumentRecord{
		ID:          uuid.New().String(),
		DocID:       "doc-1",
		DocType:     model.DocTypeCapitalAccountStatement,
		FundID:      "fund-1",
		AsOfDate:    time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Currency:    "USD",
		ContentHash: hash,
		Version:     version,
		Fields: map[string]model.ResolvedField{
			"ending_balance": {
				Field:      "ending_balance",
				Value:      "40600000",
				Confidence: 0.9,
				Methods:    []model.Method{model.MethodTable},
			},
		},
		Confidence: 0.9,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSQLite_RecordRoundTrip(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	rec := testRecord(1, "hash-1")
	require.NoError(t, st.SaveRecord(ctx, rec))

	got, err := st.FindRecordByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, model.DocTypeCapitalAccountStatement, got.DocType)
	assert.Equal(t, "40600000", got.Fields["ending_balance"].Value)
	assert.Equal(t, 0.9, got.Fields["ending_balance"].Confidence)
}

func TestSQLite_FindRecordByHash_NotFound(t *testing.T) {
	st := newTestSQLite(t)
	_, err := st.FindRecordByHash(context.Background(), "no-such-hash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_LatestRecordPicksHighestVersion(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	v1 := testRecord(1, "hash-1")
	require.NoError(t, st.SaveRecord(ctx, v1))

	v2 := testRecord(2, "hash-2")
	v2.RestatesID = v1.ID
	require.NoError(t, st.SaveRecord(ctx, v2))

	got, err := st.LatestRecord(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, v1.ID, got.RestatesID)
}

func TestSQLite_OverrideVersionsShareHash(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	v1 := testRecord(1, "hash-1")
	require.NoError(t, st.SaveRecord(ctx, v1))

	// An override produces a new version with the same content hash.
	v2 := testRecord(2, "hash-1")
	v2.RestatesID = v1.ID
	require.NoError(t, st.SaveRecord(ctx, v2))

	got, err := st.FindRecordByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestSQLite_PreviousPeriod(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	q4 := &model.CapitalAccountPeriod{
		ID:            uuid.New().String(),
		FundID:        "fund-1",
		AsOfDate:      time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		EndingBalance: decimal.RequireFromString("35000000"),
		Version:       1,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.SavePeriod(ctx, q4))

	q1 := &model.CapitalAccountPeriod{
		ID:            uuid.New().String(),
		FundID:        "fund-1",
		AsOfDate:      time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		EndingBalance: decimal.RequireFromString("40600000"),
		Version:       1,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, st.SavePeriod(ctx, q1))

	prev, err := st.PreviousPeriod(ctx, "fund-1", "", q1.AsOfDate)
	require.NoError(t, err)
	assert.Equal(t, q4.ID, prev.ID)
	assert.True(t, prev.EndingBalance.Equal(decimal.RequireFromString("35000000")))

	_, err = st.PreviousPeriod(ctx, "fund-1", "", q4.AsOfDate)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_CashflowsRange(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	flows := []model.CashflowRecord{
		{ID: uuid.New().String(), FundID: "fund-1", FlowDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
			Type: model.FlowCall, Amount: decimal.RequireFromString("30000000"), CreatedAt: time.Now().UTC()},
		{ID: uuid.New().String(), FundID: "fund-1", FlowDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Type: model.FlowCall, Amount: decimal.RequireFromString("5000000"), CreatedAt: time.Now().UTC()},
		{ID: uuid.New().String(), FundID: "fund-1", FlowDate: time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
			Type: model.FlowDist, Amount: decimal.RequireFromString("3600000"), CreatedAt: time.Now().UTC()},
	}
	n, err := st.InsertCashflows(ctx, flows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.Cashflows(ctx, "fund-1", "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.FlowCall, got[0].Type)
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("5000000")))
	assert.Equal(t, model.FlowDist, got[1].Type)
}

func TestSQLite_NAVObservationsLatestPerSource(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	asOf := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveNAVObservation(ctx, &model.NAVObservation{
		FundID: "fund-1", AsOfDate: asOf,
		NAV: decimal.RequireFromString("36000000"), Source: model.DocTypeCapitalAccountStatement,
	}))
	// A restatement supersedes the first observation from the same source.
	require.NoError(t, st.SaveNAVObservation(ctx, &model.NAVObservation{
		FundID: "fund-1", AsOfDate: asOf,
		NAV: decimal.RequireFromString("36400000"), Source: model.DocTypeCapitalAccountStatement,
	}))
	require.NoError(t, st.SaveNAVObservation(ctx, &model.NAVObservation{
		FundID: "fund-1", AsOfDate: asOf,
		NAV: decimal.RequireFromString("36400000"), Source: model.DocTypeQuarterlyReport,
	}))

	obs, err := st.NAVObservations(ctx, "fund-1", asOf)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.True(t, o.NAV.Equal(decimal.RequireFromString("36400000")), "source %s", o.Source)
	}
}

func TestSQLite_PriorNAVObservation(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.SaveNAVObservation(ctx, &model.NAVObservation{
		FundID: "fund-1", AsOfDate: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		NAV: decimal.RequireFromString("35000000"), Source: model.DocTypeCapitalAccountStatement,
	}))

	prior, err := st.PriorNAVObservation(ctx, "fund-1", time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, prior.NAV.Equal(decimal.RequireFromString("35000000")))

	_, err = st.PriorNAVObservation(ctx, "fund-1", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_LeaseContention(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	scope := model.ReconScope{FundID: "fund-1", AsOfDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}

	ok, err := st.AcquireLease(ctx, scope, "holder-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Another holder cannot take a live lease.
	ok, err = st.AcquireLease(ctx, scope, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// The holder can refresh its own lease.
	ok, err = st.AcquireLease(ctx, scope, "holder-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, st.ReleaseLease(ctx, scope, "holder-a"))

	ok, err = st.AcquireLease(ctx, scope, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_LeaseExpiryAllowsTakeover(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()
	scope := model.ReconScope{FundID: "fund-1", AsOfDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)}

	ok, err := st.AcquireLease(ctx, scope, "holder-a", -time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.AcquireLease(ctx, scope, "holder-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_SaveReport(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	diff := decimal.RequireFromString("0")
	rep := &model.ReconciliationReport{
		ID:     uuid.New().String(),
		Scope:  model.ReconScope{FundID: "fund-1", AsOfDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)},
		Status: model.RunPassed,
		Checks: []model.ReconCheck{{
			Name:      "nav_cross_source",
			Status:    model.CheckPass,
			Diff:      &diff,
			Tolerance: decimal.RequireFromString("3640"),
		}},
		InputVersion: "fp-1",
		StartedAt:    time.Now().UTC(),
		FinishedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.SaveReport(ctx, rep))
}
