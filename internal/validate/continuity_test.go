package validate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

func priorPeriod(ending, unfunded string) *model.CapitalAccountPeriod {
	return &model.CapitalAccountPeriod{
		FundID:             "fund-1",
		EndingBalance:      decimal.RequireFromString(ending),
		UnfundedCommitment: decimal.RequireFromString(unfunded),
	}
}

func TestContinuityFirstPeriodNeverFlagged(t *testing.T) {
	rec := recordWith(t, map[string]string{"beginning_balance": "100"})
	results := NewContinuityValidator(testTolerance()).Validate(rec, nil)
	assert.Empty(t, results)
}

func TestContinuityBalanceMatches(t *testing.T) {
	rec := recordWith(t, map[string]string{"beginning_balance": "100"})
	results := NewContinuityValidator(testTolerance()).Validate(rec, priorPeriod("100", "0"))

	r, ok := resultByRule(results, RuleBalanceContinuity)
	require.True(t, ok)
	assert.True(t, r.Passed)
}

func TestContinuityBalanceDiscontinuityIsCritical(t *testing.T) {
	rec := recordWith(t, map[string]string{"beginning_balance": "95"})
	results := NewContinuityValidator(testTolerance()).Validate(rec, priorPeriod("100", "0"))

	r, ok := resultByRule(results, RuleBalanceContinuity)
	require.True(t, ok)
	assert.False(t, r.Passed)
	assert.Equal(t, model.SeverityCritical, r.Severity)
	assert.Equal(t, "100", r.Computed.String())
	assert.Equal(t, "95", r.Reported.String())
}

func TestUnfundedMonotonicity(t *testing.T) {
	rec := recordWith(t, map[string]string{"unfunded_commitment": "14000000"})
	results := NewContinuityValidator(testTolerance()).Validate(rec, priorPeriod("0", "15000000"))
	r, ok := resultByRule(results, RuleUnfundedMonotonic)
	require.True(t, ok)
	assert.True(t, r.Passed)

	// Unfunded rose without a recommitment flag.
	rec = recordWith(t, map[string]string{"unfunded_commitment": "16000000"})
	results = NewContinuityValidator(testTolerance()).Validate(rec, priorPeriod("0", "15000000"))
	r, _ = resultByRule(results, RuleUnfundedMonotonic)
	assert.False(t, r.Passed)
	assert.Equal(t, model.SeverityWarning, r.Severity)

	// The explicit recommitment flag exempts the record.
	rec.Recommitment = true
	results = NewContinuityValidator(testTolerance()).Validate(rec, priorPeriod("0", "15000000"))
	r, _ = resultByRule(results, RuleUnfundedMonotonic)
	assert.True(t, r.Passed)
}
