package resolve

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

func moneySpec(t *testing.T, tolerance string) *model.FieldSpec {
	t.Helper()
	lib, err := model.NewFieldLibrary([]model.FieldSpec{{
		Canonical:      "ending_balance",
		Kind:           model.KindMoney,
		GroupTolerance: tolerance,
	}})
	require.NoError(t, err)
	spec, err := lib.ByName("ending_balance")
	require.NoError(t, err)
	return spec
}

func moneyCandidate(method model.Method, value string, confidence float64) model.ExtractionCandidate {
	d := decimal.RequireFromString(value)
	return model.ExtractionCandidate{
		Field:      "ending_balance",
		Method:     method,
		RawValue:   value,
		Value:      d.String(),
		Amount:     &d,
		Confidence: confidence,
	}
}

func TestResolveConsensusWins(t *testing.T) {
	// Two methods agree on 40,700,000 against a lone dissenter.
	cands := []model.ExtractionCandidate{
		moneyCandidate(model.MethodTable, "40700000", 0.9),
		moneyCandidate(model.MethodPattern, "40700000", 0.8),
		moneyCandidate(model.MethodStructured, "40000000", 0.7),
	}

	r := Resolve(moneySpec(t, ""), cands)
	assert.Equal(t, "40700000", r.Value)
	assert.InDelta(t, 2.0/3.0, r.ConsensusRatio, 1e-9)
	assert.InDelta(t, 0.85, r.Confidence, 1e-9)
	assert.Equal(t, []model.Method{model.MethodTable, model.MethodPattern}, r.Methods)
	assert.Len(t, r.Evidence, 2)

	require.Len(t, r.Alternatives, 1)
	alt := r.Alternatives[0]
	assert.Equal(t, "40000000", alt.Value)
	assert.Equal(t, 1, alt.GroupSize)
	assert.InDelta(t, 0.7/3.0, alt.Score, 1e-9)
}

func TestResolveEmptyCandidates(t *testing.T) {
	r := Resolve(moneySpec(t, ""), nil)
	assert.False(t, r.Resolved())
	assert.Equal(t, "ending_balance", r.Field)
	assert.Zero(t, r.Confidence)
	assert.Empty(t, r.Methods)
}

func TestResolveTieBreakPrefersTable(t *testing.T) {
	// Equal scores: two singleton groups at the same confidence. The group
	// containing the table method wins regardless of order.
	cands := []model.ExtractionCandidate{
		moneyCandidate(model.MethodPattern, "100", 0.8),
		moneyCandidate(model.MethodTable, "200", 0.8),
	}

	r := Resolve(moneySpec(t, ""), cands)
	assert.Equal(t, "200", r.Value)
	assert.Equal(t, []model.Method{model.MethodTable}, r.Methods)
}

func TestResolveTieBreakHigherConfidenceThenOrder(t *testing.T) {
	// Neither group has the table method and scores differ by confidence.
	cands := []model.ExtractionCandidate{
		moneyCandidate(model.MethodPositional, "100", 0.6),
		moneyCandidate(model.MethodStructured, "200", 0.7),
	}
	r := Resolve(moneySpec(t, ""), cands)
	assert.Equal(t, "200", r.Value)

	// Full tie falls back to first-seen order.
	cands = []model.ExtractionCandidate{
		moneyCandidate(model.MethodStructured, "100", 0.7),
		moneyCandidate(model.MethodStructured, "200", 0.7),
	}
	r = Resolve(moneySpec(t, ""), cands)
	assert.Equal(t, "100", r.Value)
}

func TestResolveGroupingTolerance(t *testing.T) {
	// Within a 5-unit tolerance, 100 and 103 agree; the group reports the
	// highest-confidence member's value.
	cands := []model.ExtractionCandidate{
		moneyCandidate(model.MethodPattern, "103", 0.8),
		moneyCandidate(model.MethodTable, "100", 0.9),
		moneyCandidate(model.MethodStructured, "250", 0.7),
	}

	r := Resolve(moneySpec(t, "5"), cands)
	assert.Equal(t, "100", r.Value)
	assert.InDelta(t, 2.0/3.0, r.ConsensusRatio, 1e-9)

	// Without tolerance the same candidates split three ways.
	r = Resolve(moneySpec(t, ""), cands)
	assert.InDelta(t, 1.0/3.0, r.ConsensusRatio, 1e-9)
}

func TestResolveManualOverrideSupersedes(t *testing.T) {
	d := decimal.RequireFromString("999")
	cands := []model.ExtractionCandidate{
		moneyCandidate(model.MethodTable, "100", 0.9),
		moneyCandidate(model.MethodPattern, "100", 0.8),
		{
			Field: "ending_balance", Method: model.MethodManual,
			Value: "999", Amount: &d, Confidence: 1.0,
			Evidence: model.Evidence{ReviewerID: "ops-1", Reason: "statement errata"},
		},
	}

	r := Resolve(moneySpec(t, ""), cands)
	assert.Equal(t, "999", r.Value)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Equal(t, []model.Method{model.MethodManual}, r.Methods)
	require.Len(t, r.Evidence, 1)
	assert.Equal(t, "ops-1", r.Evidence[0].ReviewerID)
}
