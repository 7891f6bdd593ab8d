package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// SQLite implements Store using modernc.org/sqlite. It serves local
// development and single-machine deployments; postgres is the production
// backend.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

// Amounts are stored as TEXT to keep decimal values exact.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extracted_records (
	id              TEXT PRIMARY KEY,
	doc_id          TEXT NOT NULL,
	doc_type        TEXT NOT NULL,
	fund_id         TEXT NOT NULL,
	investor_id     TEXT NOT NULL DEFAULT '',
	as_of_date      DATETIME,
	currency        TEXT NOT NULL DEFAULT '',
	content_hash    TEXT NOT NULL,
	version         INTEGER NOT NULL,
	restates_id     TEXT NOT NULL DEFAULT '',
	recommitment    INTEGER NOT NULL DEFAULT 0,
	fields          TEXT NOT NULL,
	confidence      REAL NOT NULL,
	requires_review INTEGER NOT NULL,
	results         TEXT,
	created_at      DATETIME NOT NULL,
	UNIQUE (doc_id, version)
);

CREATE TABLE IF NOT EXISTS capital_account_periods (
	id               TEXT PRIMARY KEY,
	fund_id          TEXT NOT NULL,
	investor_id      TEXT NOT NULL DEFAULT '',
	as_of_date       DATETIME NOT NULL,
	currency         TEXT NOT NULL DEFAULT '',
	recommitment     INTEGER NOT NULL DEFAULT 0,
	source_record_id TEXT NOT NULL DEFAULT '',
	restates_id      TEXT NOT NULL DEFAULT '',
	version          INTEGER NOT NULL,
	amounts          TEXT NOT NULL,
	created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cashflows (
	id          TEXT PRIMARY KEY,
	fund_id     TEXT NOT NULL,
	investor_id TEXT NOT NULL DEFAULT '',
	flow_date   DATETIME NOT NULL,
	type        TEXT NOT NULL,
	amount      TEXT NOT NULL,
	currency    TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS nav_observations (
	fund_id     TEXT NOT NULL,
	investor_id TEXT NOT NULL DEFAULT '',
	as_of_date  DATETIME NOT NULL,
	nav         TEXT NOT NULL,
	source      TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS recon_reports (
	id              TEXT PRIMARY KEY,
	fund_id         TEXT NOT NULL,
	investor_id     TEXT NOT NULL DEFAULT '',
	as_of_date      DATETIME NOT NULL,
	status          TEXT NOT NULL,
	checks          TEXT NOT NULL,
	requires_review INTEGER NOT NULL,
	input_version   TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS recon_leases (
	fund_id     TEXT NOT NULL,
	investor_id TEXT NOT NULL DEFAULT '',
	as_of_date  DATETIME NOT NULL,
	holder      TEXT NOT NULL,
	expires_at  DATETIME NOT NULL,
	PRIMARY KEY (fund_id, investor_id, as_of_date)
);

CREATE INDEX IF NOT EXISTS idx_records_hash ON extracted_records(content_hash);
CREATE INDEX IF NOT EXISTS idx_records_scope ON extracted_records(fund_id, investor_id, doc_type, as_of_date);
CREATE INDEX IF NOT EXISTS idx_periods_scope ON capital_account_periods(fund_id, investor_id, as_of_date);
CREATE INDEX IF NOT EXISTS idx_cashflows_scope ON cashflows(fund_id, investor_id, flow_date);
CREATE INDEX IF NOT EXISTS idx_nav_scope ON nav_observations(fund_id, as_of_date, source);
CREATE INDEX IF NOT EXISTS idx_reports_scope ON recon_reports(fund_id, investor_id, as_of_date);
`

func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) SaveRecord(ctx context.Context, rec *model.ExtractedDocumentRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extracted_records
		 (id, doc_id, doc_type, fund_id, investor_id, as_of_date, currency, content_hash,
		  version, restates_id, recommitment, fields, confidence, requires_review, results, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DocID, string(rec.DocType), rec.FundID, rec.InvestorID,
		rec.AsOfDate, rec.Currency, rec.ContentHash,
		rec.Version, rec.RestatesID, rec.Recommitment,
		string(fields), rec.Confidence, rec.RequiresReview, string(results), rec.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
	}
	return nil
}

const sqliteSelectRecord = `SELECT id, doc_id, doc_type, fund_id, investor_id,
	as_of_date, currency, content_hash, version, restates_id, recommitment,
	fields, confidence, requires_review, results, created_at
	FROM extracted_records `

func (s *SQLite) FindRecordByHash(ctx context.Context, contentHash string) (*model.ExtractedDocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteSelectRecord+`WHERE content_hash = ? ORDER BY version DESC LIMIT 1`,
		contentHash)
	return scanSQLiteRecord(row)
}

func (s *SQLite) LatestRecord(ctx context.Context, docID string) (*model.ExtractedDocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteSelectRecord+`WHERE doc_id = ? ORDER BY version DESC LIMIT 1`,
		docID)
	return scanSQLiteRecord(row)
}

func (s *SQLite) LatestRecordForScope(ctx context.Context, fundID, investorID string, docType model.DocType, asOf time.Time) (*model.ExtractedDocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteSelectRecord+`WHERE fund_id = ? AND investor_id = ? AND doc_type = ? AND as_of_date = ?
		ORDER BY version DESC, created_at DESC LIMIT 1`,
		fundID, investorID, string(docType), asOf)
	return scanSQLiteRecord(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*model.ExtractedDocumentRecord, error) {
	var rec model.ExtractedDocumentRecord
	var docType, fields string
	var asOf sql.NullTime
	var results sql.NullString
	err := row.Scan(&rec.ID, &rec.DocID, &docType, &rec.FundID, &rec.InvestorID,
		&asOf, &rec.Currency, &rec.ContentHash, &rec.Version, &rec.RestatesID,
		&rec.Recommitment, &fields, &rec.Confidence, &rec.RequiresReview,
		&results, &rec.CreatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: scan record")
	}
	rec.DocType = model.DocType(docType)
	if asOf.Valid {
		rec.AsOfDate = asOf.Time
	}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	if results.Valid && results.String != "" && results.String != "null" {
		if err := json.Unmarshal([]byte(results.String), &rec.Results); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal results")
		}
	}
	return &rec, nil
}

// SavePeriod stores the period with its decimal columns serialized as one
// JSON document. The period is read back whole, never filtered by amount.
func (s *SQLite) SavePeriod(ctx context.Context, p *model.CapitalAccountPeriod) error {
	amounts, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal period")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO capital_account_periods
		 (id, fund_id, investor_id, as_of_date, currency, recommitment,
		  source_record_id, restates_id, version, amounts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FundID, p.InvestorID, p.AsOfDate, p.Currency, p.Recommitment,
		p.SourceRecordID, p.RestatesID, p.Version, string(amounts), p.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert period %s", p.ID)
	}
	return nil
}

func (s *SQLite) PreviousPeriod(ctx context.Context, fundID, investorID string, before time.Time) (*model.CapitalAccountPeriod, error) {
	var amounts string
	err := s.db.QueryRowContext(ctx,
		`SELECT amounts FROM capital_account_periods
		 WHERE fund_id = ? AND investor_id = ? AND as_of_date < ?
		 ORDER BY as_of_date DESC, version DESC LIMIT 1`,
		fundID, investorID, before).Scan(&amounts)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: query previous period")
	}
	var p model.CapitalAccountPeriod
	if err := json.Unmarshal([]byte(amounts), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal period")
	}
	return &p, nil
}

func (s *SQLite) InsertCashflows(ctx context.Context, flows []model.CashflowRecord) (int64, error) {
	if len(flows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin cashflow insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cashflows (id, fund_id, investor_id, flow_date, type, amount, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare cashflow insert")
	}
	defer stmt.Close()

	for _, f := range flows {
		if _, err := stmt.ExecContext(ctx, f.ID, f.FundID, f.InvestorID,
			f.FlowDate, string(f.Type), f.Amount.String(), f.Currency, f.CreatedAt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert cashflow %s", f.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit cashflow insert")
	}
	return int64(len(flows)), nil
}

func (s *SQLite) Cashflows(ctx context.Context, fundID, investorID string, from, to time.Time) ([]model.CashflowRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fund_id, investor_id, flow_date, type, amount, currency, created_at
		 FROM cashflows
		 WHERE fund_id = ? AND (? = '' OR investor_id = ?)
		   AND flow_date >= ? AND flow_date <= ?
		 ORDER BY flow_date, created_at`,
		fundID, investorID, investorID, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query cashflows")
	}
	defer rows.Close()

	var out []model.CashflowRecord
	for rows.Next() {
		var f model.CashflowRecord
		var flowType, amount string
		if err := rows.Scan(&f.ID, &f.FundID, &f.InvestorID, &f.FlowDate,
			&flowType, &amount, &f.Currency, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cashflow")
		}
		f.Type = model.FlowType(flowType)
		f.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse cashflow amount %q", amount)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveNAVObservation(ctx context.Context, obs *model.NAVObservation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nav_observations (fund_id, investor_id, as_of_date, nav, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		obs.FundID, obs.InvestorID, obs.AsOfDate, obs.NAV.String(), string(obs.Source), time.Now().UTC())
	if err != nil {
		return eris.Wrap(err, "sqlite: insert nav observation")
	}
	return nil
}

func (s *SQLite) NAVObservations(ctx context.Context, fundID string, asOf time.Time) ([]model.NAVObservation, error) {
	// Latest row per source wins.
	rows, err := s.db.QueryContext(ctx,
		`SELECT fund_id, investor_id, as_of_date, nav, source
		 FROM nav_observations n
		 WHERE fund_id = ? AND as_of_date = ?
		   AND created_at = (SELECT MAX(created_at) FROM nav_observations
		                     WHERE fund_id = n.fund_id AND as_of_date = n.as_of_date AND source = n.source)
		 ORDER BY source`,
		fundID, asOf)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query nav observations")
	}
	defer rows.Close()

	var out []model.NAVObservation
	for rows.Next() {
		obs, err := scanSQLiteNAV(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *obs)
	}
	return out, rows.Err()
}

func (s *SQLite) PriorNAVObservation(ctx context.Context, fundID string, before time.Time) (*model.NAVObservation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fund_id, investor_id, as_of_date, nav, source
		 FROM nav_observations
		 WHERE fund_id = ? AND as_of_date < ?
		 ORDER BY as_of_date DESC, created_at DESC LIMIT 1`,
		fundID, before)
	obs, err := scanSQLiteNAV(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obs, nil
}

func scanSQLiteNAV(row rowScanner) (*model.NAVObservation, error) {
	var obs model.NAVObservation
	var nav, source string
	if err := row.Scan(&obs.FundID, &obs.InvestorID, &obs.AsOfDate, &nav, &source); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan nav observation")
	}
	d, err := decimal.NewFromString(nav)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse nav %q", nav)
	}
	obs.NAV = d
	obs.Source = model.DocType(source)
	return &obs, nil
}

func (s *SQLite) SaveReport(ctx context.Context, rep *model.ReconciliationReport) error {
	checks, err := json.Marshal(rep.Checks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checks")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recon_reports
		 (id, fund_id, investor_id, as_of_date, status, checks, requires_review, input_version, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID, rep.Scope.FundID, rep.Scope.InvestorID, rep.Scope.AsOfDate,
		string(rep.Status), string(checks), rep.RequiresReview, rep.InputVersion,
		rep.StartedAt, rep.FinishedAt)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert report %s", rep.ID)
	}
	return nil
}

func (s *SQLite) AcquireLease(ctx context.Context, scope model.ReconScope, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recon_leases (fund_id, investor_id, as_of_date, holder, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (fund_id, investor_id, as_of_date) DO UPDATE
		 SET holder = excluded.holder, expires_at = excluded.expires_at
		 WHERE recon_leases.expires_at < ? OR recon_leases.holder = excluded.holder`,
		scope.FundID, scope.InvestorID, scope.AsOfDate, holder, now.Add(ttl), now)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: acquire lease")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: acquire lease rows")
	}
	return n == 1, nil
}

func (s *SQLite) ReleaseLease(ctx context.Context, scope model.ReconScope, holder string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM recon_leases
		 WHERE fund_id = ? AND investor_id = ? AND as_of_date = ? AND holder = ?`,
		scope.FundID, scope.InvestorID, scope.AsOfDate, holder)
	if err != nil {
		return eris.Wrap(err, "sqlite: release lease")
	}
	return nil
}
