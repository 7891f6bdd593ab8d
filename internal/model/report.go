package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunState is the reconciliation agent's per-scope state machine.
type RunState string

const (
	RunScheduled RunState = "SCHEDULED"
	RunRunning   RunState = "RUNNING"
	RunPassed    RunState = "PASSED"
	RunFlagged   RunState = "FLAGGED"
	// RunMissingData means required source records were absent. This is not
	// a failed check and must never be conflated with one.
	RunMissingData RunState = "MISSING_DATA"
)

// CheckStatus is the outcome of a single reconciliation check.
type CheckStatus string

const (
	CheckPass    CheckStatus = "PASS"
	CheckFail    CheckStatus = "FAIL"
	CheckWarning CheckStatus = "WARNING"
	CheckMissing CheckStatus = "MISSING"
)

// ReconScope identifies one reconciliation run target.
type ReconScope struct {
	FundID     string    `json:"fund_id"`
	InvestorID string    `json:"investor_id,omitempty"`
	AsOfDate   time.Time `json:"as_of_date"`
}

// ReconCheck compares one reported value against its independently
// recomputed counterpart.
type ReconCheck struct {
	Name      string           `json:"name"`
	Status    CheckStatus      `json:"status"`
	Reported  *decimal.Decimal `json:"reported,omitempty"`
	Computed  *decimal.Decimal `json:"computed,omitempty"`
	Diff      *decimal.Decimal `json:"diff,omitempty"`
	Tolerance decimal.Decimal  `json:"tolerance"`
	Message   string           `json:"message,omitempty"`
}

// ReconciliationReport aggregates all checks for one scope and run. Reports
// are append-only; a re-run produces a new report.
type ReconciliationReport struct {
	ID             string       `json:"id"`
	Scope          ReconScope   `json:"scope"`
	Status         RunState     `json:"status"`
	Checks         []ReconCheck `json:"checks"`
	RequiresReview bool         `json:"requires_review"`
	// InputVersion fingerprints the source data the run saw; identical
	// inputs yield identical check outcomes.
	InputVersion string    `json:"input_version,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Summary counts check outcomes by status.
func (r *ReconciliationReport) Summary() (passed, failed, warnings, missing int) {
	for _, c := range r.Checks {
		switch c.Status {
		case CheckPass:
			passed++
		case CheckFail:
			failed++
		case CheckWarning:
			warnings++
		case CheckMissing:
			missing++
		}
	}
	return
}
