package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/db"
	"github.com/olitsch123/FOReportingv2/internal/model"
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	pool db.Pool
}

// NewPostgres connects a pool and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Tests pass a pgxmock pool.
func NewPostgresFromPool(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// schema is the append-only schema. Records, periods, observations and
// reports only ever gain rows; the lease table is the single mutable
// exception.
const schema = `
CREATE TABLE IF NOT EXISTS extracted_records (
    id              UUID PRIMARY KEY,
    doc_id          TEXT NOT NULL,
    doc_type        TEXT NOT NULL,
    fund_id         TEXT NOT NULL,
    investor_id     TEXT NOT NULL DEFAULT '',
    as_of_date      DATE,
    currency        TEXT NOT NULL DEFAULT '',
    content_hash    TEXT NOT NULL,
    version         INT NOT NULL,
    restates_id     UUID,
    recommitment    BOOLEAN NOT NULL DEFAULT FALSE,
    fields          JSONB NOT NULL,
    confidence      DOUBLE PRECISION NOT NULL,
    requires_review BOOLEAN NOT NULL,
    results         JSONB,
    created_at      TIMESTAMPTZ NOT NULL,
    UNIQUE (doc_id, version)
);
CREATE INDEX IF NOT EXISTS idx_records_hash ON extracted_records (content_hash);
CREATE INDEX IF NOT EXISTS idx_records_scope ON extracted_records (fund_id, investor_id, doc_type, as_of_date);

CREATE TABLE IF NOT EXISTS capital_account_periods (
    id                   UUID PRIMARY KEY,
    fund_id              TEXT NOT NULL,
    investor_id          TEXT NOT NULL DEFAULT '',
    as_of_date           DATE NOT NULL,
    currency             TEXT NOT NULL DEFAULT '',
    beginning_balance    NUMERIC NOT NULL,
    ending_balance       NUMERIC NOT NULL,
    contributions        NUMERIC NOT NULL,
    distributions_total  NUMERIC NOT NULL,
    distributions_roc    NUMERIC NOT NULL,
    distributions_gain   NUMERIC NOT NULL,
    distributions_income NUMERIC NOT NULL,
    distributions_tax    NUMERIC NOT NULL,
    management_fees      NUMERIC NOT NULL,
    partnership_expenses NUMERIC NOT NULL,
    realized_gl          NUMERIC NOT NULL,
    unrealized_gl        NUMERIC NOT NULL,
    total_commitment     NUMERIC NOT NULL,
    drawn_commitment     NUMERIC NOT NULL,
    unfunded_commitment  NUMERIC NOT NULL,
    recommitment         BOOLEAN NOT NULL DEFAULT FALSE,
    source_record_id     UUID,
    restates_id          UUID,
    version              INT NOT NULL,
    created_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_periods_scope ON capital_account_periods (fund_id, investor_id, as_of_date);

CREATE TABLE IF NOT EXISTS cashflows (
    id          UUID PRIMARY KEY,
    fund_id     TEXT NOT NULL,
    investor_id TEXT NOT NULL DEFAULT '',
    flow_date   DATE NOT NULL,
    type        TEXT NOT NULL,
    amount      NUMERIC NOT NULL,
    currency    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cashflows_scope ON cashflows (fund_id, investor_id, flow_date);

CREATE TABLE IF NOT EXISTS nav_observations (
    fund_id     TEXT NOT NULL,
    investor_id TEXT NOT NULL DEFAULT '',
    as_of_date  DATE NOT NULL,
    nav         NUMERIC NOT NULL,
    source      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_nav_scope ON nav_observations (fund_id, as_of_date, source);

CREATE TABLE IF NOT EXISTS recon_reports (
    id              UUID PRIMARY KEY,
    fund_id         TEXT NOT NULL,
    investor_id     TEXT NOT NULL DEFAULT '',
    as_of_date      DATE NOT NULL,
    status          TEXT NOT NULL,
    checks          JSONB NOT NULL,
    requires_review BOOLEAN NOT NULL,
    input_version   TEXT NOT NULL DEFAULT '',
    started_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_scope ON recon_reports (fund_id, investor_id, as_of_date);

CREATE TABLE IF NOT EXISTS recon_leases (
    fund_id     TEXT NOT NULL,
    investor_id TEXT NOT NULL DEFAULT '',
    as_of_date  DATE NOT NULL,
    holder      TEXT NOT NULL,
    expires_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (fund_id, investor_id, as_of_date)
);
`

// Migrate creates the schema.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	zap.L().Info("store: schema migrated")
	return nil
}

const insertRecordSQL = `INSERT INTO extracted_records
	(id, doc_id, doc_type, fund_id, investor_id, as_of_date, currency, content_hash,
	 version, restates_id, recommitment, fields, confidence, requires_review, results, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

func (s *Postgres) SaveRecord(ctx context.Context, rec *model.ExtractedDocumentRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "store: marshal fields")
	}
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return eris.Wrap(err, "store: marshal results")
	}
	_, err = s.pool.Exec(ctx, insertRecordSQL,
		rec.ID, rec.DocID, string(rec.DocType), rec.FundID, rec.InvestorID,
		nullableDate(rec.AsOfDate), rec.Currency, rec.ContentHash,
		rec.Version, nullableID(rec.RestatesID), rec.Recommitment,
		fields, rec.Confidence, rec.RequiresReview, results, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert record %s", rec.ID)
	}
	return nil
}

const selectRecordSQL = `SELECT id, doc_id, doc_type, fund_id, investor_id,
	COALESCE(as_of_date, '0001-01-01'::date), currency, content_hash, version,
	COALESCE(restates_id::text, ''), recommitment, fields, confidence,
	requires_review, results, created_at
	FROM extracted_records `

func (s *Postgres) FindRecordByHash(ctx context.Context, contentHash string) (*model.ExtractedDocumentRecord, error) {
	row := s.pool.QueryRow(ctx,
		selectRecordSQL+`WHERE content_hash = $1 ORDER BY version DESC LIMIT 1`,
		contentHash)
	return scanRecord(row)
}

func (s *Postgres) LatestRecord(ctx context.Context, docID string) (*model.ExtractedDocumentRecord, error) {
	row := s.pool.QueryRow(ctx,
		selectRecordSQL+`WHERE doc_id = $1 ORDER BY version DESC LIMIT 1`,
		docID)
	return scanRecord(row)
}

func (s *Postgres) LatestRecordForScope(ctx context.Context, fundID, investorID string, docType model.DocType, asOf time.Time) (*model.ExtractedDocumentRecord, error) {
	row := s.pool.QueryRow(ctx,
		selectRecordSQL+`WHERE fund_id = $1 AND investor_id = $2 AND doc_type = $3 AND as_of_date = $4
		ORDER BY version DESC, created_at DESC LIMIT 1`,
		fundID, investorID, string(docType), asOf)
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*model.ExtractedDocumentRecord, error) {
	var rec model.ExtractedDocumentRecord
	var docType string
	var fields, results []byte
	err := row.Scan(&rec.ID, &rec.DocID, &docType, &rec.FundID, &rec.InvestorID,
		&rec.AsOfDate, &rec.Currency, &rec.ContentHash, &rec.Version,
		&rec.RestatesID, &rec.Recommitment, &fields, &rec.Confidence,
		&rec.RequiresReview, &results, &rec.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: scan record")
	}
	rec.DocType = model.DocType(docType)
	if rec.AsOfDate.Year() == 1 {
		rec.AsOfDate = time.Time{}
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal fields")
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal results")
		}
	}
	return &rec, nil
}

const insertPeriodSQL = `INSERT INTO capital_account_periods
	(id, fund_id, investor_id, as_of_date, currency,
	 beginning_balance, ending_balance, contributions, distributions_total,
	 distributions_roc, distributions_gain, distributions_income, distributions_tax,
	 management_fees, partnership_expenses, realized_gl, unrealized_gl,
	 total_commitment, drawn_commitment, unfunded_commitment,
	 recommitment, source_record_id, restates_id, version, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`

func (s *Postgres) SavePeriod(ctx context.Context, p *model.CapitalAccountPeriod) error {
	_, err := s.pool.Exec(ctx, insertPeriodSQL,
		p.ID, p.FundID, p.InvestorID, p.AsOfDate, p.Currency,
		p.BeginningBalance.String(), p.EndingBalance.String(),
		p.Contributions.String(), p.DistributionsTotal.String(),
		p.DistributionsROC.String(), p.DistributionsGain.String(),
		p.DistributionsIncome.String(), p.DistributionsTax.String(),
		p.ManagementFees.String(), p.PartnershipExpenses.String(),
		p.RealizedGL.String(), p.UnrealizedGL.String(),
		p.TotalCommitment.String(), p.DrawnCommitment.String(),
		p.UnfundedCommitment.String(),
		p.Recommitment, nullableID(p.SourceRecordID), nullableID(p.RestatesID),
		p.Version, p.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert period %s", p.ID)
	}
	return nil
}

const selectPeriodSQL = `SELECT id, fund_id, investor_id, as_of_date, currency,
	beginning_balance::text, ending_balance::text, contributions::text, distributions_total::text,
	distributions_roc::text, distributions_gain::text, distributions_income::text, distributions_tax::text,
	management_fees::text, partnership_expenses::text, realized_gl::text, unrealized_gl::text,
	total_commitment::text, drawn_commitment::text, unfunded_commitment::text,
	recommitment, COALESCE(source_record_id::text, ''), COALESCE(restates_id::text, ''), version, created_at
	FROM capital_account_periods `

func (s *Postgres) PreviousPeriod(ctx context.Context, fundID, investorID string, before time.Time) (*model.CapitalAccountPeriod, error) {
	row := s.pool.QueryRow(ctx,
		selectPeriodSQL+`WHERE fund_id = $1 AND investor_id = $2 AND as_of_date < $3
		ORDER BY as_of_date DESC, version DESC LIMIT 1`,
		fundID, investorID, before)
	return scanPeriod(row)
}

func scanPeriod(row pgx.Row) (*model.CapitalAccountPeriod, error) {
	var p model.CapitalAccountPeriod
	amounts := make([]string, 15)
	err := row.Scan(&p.ID, &p.FundID, &p.InvestorID, &p.AsOfDate, &p.Currency,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&amounts[5], &amounts[6], &amounts[7], &amounts[8], &amounts[9],
		&amounts[10], &amounts[11], &amounts[12], &amounts[13], &amounts[14],
		&p.Recommitment, &p.SourceRecordID, &p.RestatesID, &p.Version, &p.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "store: scan period")
	}

	targets := []*decimal.Decimal{
		&p.BeginningBalance, &p.EndingBalance, &p.Contributions, &p.DistributionsTotal,
		&p.DistributionsROC, &p.DistributionsGain, &p.DistributionsIncome, &p.DistributionsTax,
		&p.ManagementFees, &p.PartnershipExpenses, &p.RealizedGL, &p.UnrealizedGL,
		&p.TotalCommitment, &p.DrawnCommitment, &p.UnfundedCommitment,
	}
	for i, t := range targets {
		d, err := decimal.NewFromString(amounts[i])
		if err != nil {
			return nil, eris.Wrapf(err, "store: parse period amount %q", amounts[i])
		}
		*t = d
	}
	return &p, nil
}

var cashflowColumns = []string{
	"id", "fund_id", "investor_id", "flow_date", "type", "amount", "currency", "created_at",
}

func (s *Postgres) InsertCashflows(ctx context.Context, flows []model.CashflowRecord) (int64, error) {
	rows := make([][]any, len(flows))
	for i, f := range flows {
		rows[i] = []any{
			f.ID, f.FundID, f.InvestorID, f.FlowDate, string(f.Type),
			f.Amount.String(), f.Currency, f.CreatedAt,
		}
	}
	return db.CopyFrom(ctx, s.pool, "cashflows", cashflowColumns, rows)
}

func (s *Postgres) Cashflows(ctx context.Context, fundID, investorID string, from, to time.Time) ([]model.CashflowRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fund_id, investor_id, flow_date, type, amount::text, currency, created_at
		 FROM cashflows
		 WHERE fund_id = $1 AND ($2 = '' OR investor_id = $2)
		   AND flow_date >= $3 AND flow_date <= $4
		 ORDER BY flow_date, created_at`,
		fundID, investorID, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "store: query cashflows")
	}
	defer rows.Close()

	var out []model.CashflowRecord
	for rows.Next() {
		var f model.CashflowRecord
		var flowType, amount string
		if err := rows.Scan(&f.ID, &f.FundID, &f.InvestorID, &f.FlowDate,
			&flowType, &amount, &f.Currency, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan cashflow")
		}
		f.Type = model.FlowType(flowType)
		f.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, eris.Wrapf(err, "store: parse cashflow amount %q", amount)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveNAVObservation(ctx context.Context, obs *model.NAVObservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nav_observations (fund_id, investor_id, as_of_date, nav, source, created_at)
		 VALUES ($1,$2,$3,$4,$5, now())`,
		obs.FundID, obs.InvestorID, obs.AsOfDate, obs.NAV.String(), string(obs.Source))
	if err != nil {
		return eris.Wrap(err, "store: insert nav observation")
	}
	return nil
}

func (s *Postgres) NAVObservations(ctx context.Context, fundID string, asOf time.Time) ([]model.NAVObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (source) fund_id, investor_id, as_of_date, nav::text, source
		 FROM nav_observations
		 WHERE fund_id = $1 AND as_of_date = $2
		 ORDER BY source, created_at DESC`,
		fundID, asOf)
	if err != nil {
		return nil, eris.Wrap(err, "store: query nav observations")
	}
	defer rows.Close()

	var out []model.NAVObservation
	for rows.Next() {
		obs, err := scanNAV(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *obs)
	}
	return out, rows.Err()
}

func (s *Postgres) PriorNAVObservation(ctx context.Context, fundID string, before time.Time) (*model.NAVObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fund_id, investor_id, as_of_date, nav::text, source
		 FROM nav_observations
		 WHERE fund_id = $1 AND as_of_date < $2
		 ORDER BY as_of_date DESC, created_at DESC LIMIT 1`,
		fundID, before)
	if err != nil {
		return nil, eris.Wrap(err, "store: query prior nav")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "store: query prior nav")
		}
		return nil, ErrNotFound
	}
	return scanNAV(rows)
}

func scanNAV(row pgx.Row) (*model.NAVObservation, error) {
	var obs model.NAVObservation
	var nav, source string
	if err := row.Scan(&obs.FundID, &obs.InvestorID, &obs.AsOfDate, &nav, &source); err != nil {
		return nil, eris.Wrap(err, "store: scan nav observation")
	}
	d, err := decimal.NewFromString(nav)
	if err != nil {
		return nil, eris.Wrapf(err, "store: parse nav %q", nav)
	}
	obs.NAV = d
	obs.Source = model.DocType(source)
	return &obs, nil
}

func (s *Postgres) SaveReport(ctx context.Context, rep *model.ReconciliationReport) error {
	checks, err := json.Marshal(rep.Checks)
	if err != nil {
		return eris.Wrap(err, "store: marshal checks")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO recon_reports
		 (id, fund_id, investor_id, as_of_date, status, checks, requires_review, input_version, started_at, finished_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rep.ID, rep.Scope.FundID, rep.Scope.InvestorID, rep.Scope.AsOfDate,
		string(rep.Status), checks, rep.RequiresReview, rep.InputVersion,
		rep.StartedAt, rep.FinishedAt)
	if err != nil {
		return eris.Wrapf(err, "store: insert report %s", rep.ID)
	}
	return nil
}

// AcquireLease takes or refreshes the scope lease. The conditional update
// only succeeds when the standing lease has expired or belongs to the same
// holder.
func (s *Postgres) AcquireLease(ctx context.Context, scope model.ReconScope, holder string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO recon_leases (fund_id, investor_id, as_of_date, holder, expires_at)
		 VALUES ($1,$2,$3,$4, now() + $5::interval)
		 ON CONFLICT (fund_id, investor_id, as_of_date) DO UPDATE
		 SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		 WHERE recon_leases.expires_at < now() OR recon_leases.holder = EXCLUDED.holder`,
		scope.FundID, scope.InvestorID, scope.AsOfDate, holder, ttl.String())
	if err != nil {
		return false, eris.Wrap(err, "store: acquire lease")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) ReleaseLease(ctx context.Context, scope model.ReconScope, holder string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM recon_leases
		 WHERE fund_id = $1 AND investor_id = $2 AND as_of_date = $3 AND holder = $4`,
		scope.FundID, scope.InvestorID, scope.AsOfDate, holder)
	if err != nil {
		return eris.Wrap(err, "store: release lease")
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// nullableDate maps the zero time to NULL.
func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// nullableID maps the empty string to NULL for UUID columns.
func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
