// Package store persists the engine's outputs. Financial facts are
// append-only: records, periods and reports are versioned and linked via
// restates references, never updated in place.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/olitsch123/FOReportingv2/internal/config"
	"github.com/olitsch123/FOReportingv2/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store is the persistence contract for the extraction and reconciliation
// pipelines.
type Store interface {
	// Extracted document records, append-only with versioning.
	SaveRecord(ctx context.Context, rec *model.ExtractedDocumentRecord) error
	// FindRecordByHash supports the idempotency check: identical content
	// already processed means a duplicate submission.
	FindRecordByHash(ctx context.Context, contentHash string) (*model.ExtractedDocumentRecord, error)
	// LatestRecord returns the highest version for a doc ID.
	LatestRecord(ctx context.Context, docID string) (*model.ExtractedDocumentRecord, error)
	// LatestRecordForScope returns the newest record of one doc type for a
	// fund/investor at an as-of date.
	LatestRecordForScope(ctx context.Context, fundID, investorID string, docType model.DocType, asOf time.Time) (*model.ExtractedDocumentRecord, error)

	// Capital account periods.
	SavePeriod(ctx context.Context, p *model.CapitalAccountPeriod) error
	// PreviousPeriod returns the latest period strictly before the given
	// date, for continuity validation.
	PreviousPeriod(ctx context.Context, fundID, investorID string, before time.Time) (*model.CapitalAccountPeriod, error)

	// Cashflow ledger, append-only.
	InsertCashflows(ctx context.Context, flows []model.CashflowRecord) (int64, error)
	Cashflows(ctx context.Context, fundID, investorID string, from, to time.Time) ([]model.CashflowRecord, error)

	// NAV observations.
	SaveNAVObservation(ctx context.Context, obs *model.NAVObservation) error
	// NAVObservations returns every observation for a fund at exactly the
	// given date, at most one per source doc type.
	NAVObservations(ctx context.Context, fundID string, asOf time.Time) ([]model.NAVObservation, error)
	// PriorNAVObservation returns the latest observation strictly before the
	// given date.
	PriorNAVObservation(ctx context.Context, fundID string, before time.Time) (*model.NAVObservation, error)

	// Reconciliation reports, append-only.
	SaveReport(ctx context.Context, rep *model.ReconciliationReport) error

	// Per-scope reconciliation lease. AcquireLease returns false when a live
	// lease is already held for the scope by another holder.
	AcquireLease(ctx context.Context, scope model.ReconScope, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, scope model.ReconScope, holder string) error

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// New creates a Store for the configured driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
