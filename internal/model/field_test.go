package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFieldLibrary_Indexing(t *testing.T) {
	lib, err := NewFieldLibrary([]FieldSpec{
		{Canonical: "ending_balance", Kind: KindMoney, Required: true,
			DocTypes: []DocType{DocTypeCapitalAccountStatement}},
		{Canonical: "as_of_date", Kind: KindDate},
	})
	require.NoError(t, err)

	s, err := lib.ByName("ending_balance")
	require.NoError(t, err)
	assert.True(t, s.Numeric())

	_, err = lib.ByName("nope")
	assert.ErrorIs(t, err, ErrUnknownField)

	// A spec without doc types applies to every type.
	cas := lib.ForDocType(DocTypeCapitalAccountStatement)
	assert.Len(t, cas, 2)
	qr := lib.ForDocType(DocTypeQuarterlyReport)
	require.Len(t, qr, 1)
	assert.Equal(t, "as_of_date", qr[0].Canonical)

	req := lib.Required(DocTypeCapitalAccountStatement)
	require.Len(t, req, 1)
	assert.Equal(t, "ending_balance", req[0].Canonical)
}

func TestNewFieldLibrary_Errors(t *testing.T) {
	cases := []struct {
		name  string
		specs []FieldSpec
	}{
		{"missing canonical", []FieldSpec{{Kind: KindMoney}}},
		{"duplicate canonical", []FieldSpec{
			{Canonical: "nav", Kind: KindMoney},
			{Canonical: "nav", Kind: KindMoney},
		}},
		{"unknown kind", []FieldSpec{{Canonical: "nav", Kind: "blob"}}},
		{"bad pattern", []FieldSpec{{Canonical: "nav", Kind: KindMoney, Patterns: []string{"("}}}},
		{"bad locale", []FieldSpec{{Canonical: "nav", Kind: KindMoney, Locale: "not a locale"}}},
		{"bad tolerance", []FieldSpec{{Canonical: "nav", Kind: KindMoney, GroupTolerance: "x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFieldLibrary(tc.specs)
			assert.Error(t, err)
		})
	}
}

func TestLoadFieldLibrary_YAML(t *testing.T) {
	data := []byte(`
fields:
  - canonical: ending_balance
    kind: money
    synonyms: ["ending balance", "closing balance"]
    patterns: ['ending\s+balance[:\s]+([\d.,()-]+)']
    doc_types: [capital_account_statement]
    required: true
  - canonical: irr_net
    kind: percent
    locale: de-DE
`)
	lib, err := LoadFieldLibrary(data)
	require.NoError(t, err)

	s, err := lib.ByName("ending_balance")
	require.NoError(t, err)
	assert.Len(t, s.Regexps(), 1)
	assert.True(t, s.Required)

	irr, err := lib.ByName("irr_net")
	require.NoError(t, err)
	assert.Equal(t, "de", irr.Lang().String()[:2])

	_, err = LoadFieldLibrary([]byte("fields: []"))
	assert.Error(t, err)
}

func TestBuiltinLibrary(t *testing.T) {
	lib, err := BuiltinLibrary()
	require.NoError(t, err)

	// Every doc type has specs, and the core balance fields are present.
	for _, dt := range []DocType{
		DocTypeCapitalAccountStatement, DocTypeQuarterlyReport,
		DocTypeCapitalCallNotice, DocTypeDistributionNotice,
	} {
		assert.NotEmpty(t, lib.ForDocType(dt), "doc type %s", dt)
	}
	for _, name := range []string{
		"beginning_balance", "ending_balance", "contributions_period",
		"distributions_period", "management_fees_period", "total_commitment",
		"unfunded_commitment", "irr_net", "tvpi", "dpi", "rvpi", "as_of_date",
	} {
		_, err := lib.ByName(name)
		assert.NoError(t, err, "field %s", name)
	}
}

func TestFieldSpec_AppliesTo(t *testing.T) {
	open := FieldSpec{Canonical: "as_of_date", Kind: KindDate}
	assert.True(t, open.AppliesTo(DocTypeQuarterlyReport))

	scoped := FieldSpec{Canonical: "call_amount", Kind: KindMoney,
		DocTypes: []DocType{DocTypeCapitalCallNotice}}
	assert.True(t, scoped.AppliesTo(DocTypeCapitalCallNotice))
	assert.False(t, scoped.AppliesTo(DocTypeQuarterlyReport))
}
