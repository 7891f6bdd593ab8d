package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

func anchorSpec(t *testing.T, kind model.FieldKind, anchors ...string) *model.FieldSpec {
	t.Helper()
	lib, err := model.NewFieldLibrary([]model.FieldSpec{{
		Canonical: "unfunded_commitment",
		Kind:      kind,
		Anchors:   anchors,
	}})
	require.NoError(t, err)
	spec, err := lib.ByName("unfunded_commitment")
	require.NoError(t, err)
	return spec
}

func TestPositionalExtractorSameLineExact(t *testing.T) {
	spec := anchorSpec(t, model.KindMoney, "unfunded commitment")
	doc := &model.ParsedDocument{
		Text: "Total Commitment      10,000,000.00\nUnfunded Commitment      3,250,000.00\n",
	}

	e := NewPositionalExtractor(0.75, 0.60)
	cands, err := e.Extract(context.Background(), spec, doc)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, "3250000", c.Value)
	assert.Equal(t, 0.75, c.Confidence)
	assert.Equal(t, "unfunded commitment", c.Evidence.Anchor)
	require.NotNil(t, c.Evidence.Line)
	assert.Equal(t, 1, *c.Evidence.Line)
}

func TestPositionalExtractorNextLineLoose(t *testing.T) {
	spec := anchorSpec(t, model.KindMoney, "unfunded commitment")
	doc := &model.ParsedDocument{
		Text: "Unfunded Commitment\n(1,000,000.00)\n",
	}

	e := NewPositionalExtractor(0.75, 0.60)
	cands, err := e.Extract(context.Background(), spec, doc)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "-1000000", cands[0].Value)
	assert.Equal(t, 0.60, cands[0].Confidence)
}

func TestPositionalExtractorSkipsDates(t *testing.T) {
	spec := anchorSpec(t, model.KindDate, "as of")
	doc := &model.ParsedDocument{Text: "As of 2024-03-31\n"}

	e := NewPositionalExtractor(0.75, 0.60)
	cands, err := e.Extract(context.Background(), spec, doc)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestPositionalExtractorStopsAfterFirstAnchorHit(t *testing.T) {
	spec := anchorSpec(t, model.KindMoney, "unfunded commitment", "remaining commitment")
	doc := &model.ParsedDocument{
		Text: "Unfunded Commitment 500.00\nRemaining Commitment 999.00\n",
	}

	e := NewPositionalExtractor(0.75, 0.60)
	cands, err := e.Extract(context.Background(), spec, doc)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "500", cands[0].Value)
}
