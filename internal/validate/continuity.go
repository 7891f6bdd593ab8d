package validate

import (
	"fmt"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// Continuity rule identifiers.
const (
	RuleBalanceContinuity = "balance_continuity"
	RuleUnfundedMonotonic = "unfunded_monotonic"
)

// ContinuityValidator compares a new record against the prior stored period
// for the same fund and investor. It reads exactly one prior period and
// never mutates it.
type ContinuityValidator struct {
	Tol Tolerance
}

// NewContinuityValidator creates a ContinuityValidator with the given
// tolerance policy.
func NewContinuityValidator(tol Tolerance) *ContinuityValidator {
	return &ContinuityValidator{Tol: tol}
}

// Validate checks the time-series invariants. A nil previous period means a
// first period, which is never flagged for discontinuity.
func (v *ContinuityValidator) Validate(rec *model.ExtractedDocumentRecord, previous *model.CapitalAccountPeriod) []model.ValidationResult {
	if previous == nil {
		return nil
	}

	var out []model.ValidationResult

	if beginning, ok := rec.Amount("beginning_balance"); ok {
		passed := v.Tol.Within(previous.EndingBalance, beginning)
		r := model.ValidationResult{
			RuleID:   RuleBalanceContinuity,
			Passed:   passed,
			Severity: model.SeverityCritical,
			Fields:   []string{"beginning_balance"},
			Computed: &previous.EndingBalance,
			Reported: &beginning,
		}
		if !passed {
			r.Message = diffMessage("prior ending vs current beginning balance",
				previous.EndingBalance, beginning)
		}
		out = append(out, r)
	}

	if unfunded, ok := rec.Amount("unfunded_commitment"); ok {
		// Unfunded commitment only shrinks as capital is drawn, unless a
		// recommitment event is flagged on the record.
		passed := rec.Recommitment || unfunded.LessThanOrEqual(previous.UnfundedCommitment)
		r := model.ValidationResult{
			RuleID:   RuleUnfundedMonotonic,
			Passed:   passed,
			Severity: model.SeverityWarning,
			Fields:   []string{"unfunded_commitment"},
			Computed: &previous.UnfundedCommitment,
			Reported: &unfunded,
		}
		if !passed {
			r.Message = fmt.Sprintf(
				"unfunded commitment rose from %s to %s without a recommitment flag",
				previous.UnfundedCommitment.String(), unfunded.String())
		}
		out = append(out, r)
	}

	return out
}
