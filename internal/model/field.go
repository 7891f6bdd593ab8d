package model

import (
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// FieldKind is the semantic type of a canonical field.
type FieldKind string

const (
	KindMoney   FieldKind = "money"
	KindPercent FieldKind = "percent"
	KindDate    FieldKind = "date"
	KindRatio   FieldKind = "ratio"
	KindCount   FieldKind = "count"
)

// FieldSpec describes one canonical field: how each extraction method finds
// it and how its value is typed. Specs are loaded once and shared read-only.
type FieldSpec struct {
	Canonical string    `yaml:"canonical"`
	Kind      FieldKind `yaml:"kind"`
	// Synonyms are table header tokens matched case-insensitively.
	Synonyms []string `yaml:"synonyms,omitempty"`
	// Patterns are ordered regex families for text extraction; group 1 must
	// capture the raw value.
	Patterns []string `yaml:"patterns,omitempty"`
	// Anchors are phrases for positional extraction on layout text.
	Anchors  []string  `yaml:"anchors,omitempty"`
	DocTypes []DocType `yaml:"doc_types,omitempty"`
	// Locale is a BCP-47 hint for number/date style, e.g. "de-DE".
	Locale   string `yaml:"locale,omitempty"`
	Required bool   `yaml:"required,omitempty"`
	// GroupTolerance is the absolute tolerance under which two candidate
	// values are treated as the same during resolution. Empty means exact.
	GroupTolerance string `yaml:"group_tolerance,omitempty"`

	compiled  []*regexp.Regexp
	langTag   language.Tag
	groupTol  decimal.Decimal
	hasGrpTol bool
}

// Regexps returns the pre-compiled pattern families.
func (s *FieldSpec) Regexps() []*regexp.Regexp { return s.compiled }

// Lang returns the parsed locale tag; language.Und when no hint is set.
func (s *FieldSpec) Lang() language.Tag { return s.langTag }

// GroupingTolerance returns the resolution tolerance and whether one is set.
func (s *FieldSpec) GroupingTolerance() (decimal.Decimal, bool) {
	return s.groupTol, s.hasGrpTol
}

// Numeric reports whether the field carries a numeric value.
func (s *FieldSpec) Numeric() bool { return s.Kind != KindDate }

// AppliesTo reports whether the spec is extracted for the given doc type.
// A spec with no doc types applies to every type.
func (s *FieldSpec) AppliesTo(dt DocType) bool {
	if len(s.DocTypes) == 0 {
		return true
	}
	for _, d := range s.DocTypes {
		if d == dt {
			return true
		}
	}
	return false
}

// ErrUnknownField is returned when a requested field has no spec. This is a
// fatal configuration error: processing of the affected document must abort.
var ErrUnknownField = eris.New("model: unknown field")

// FieldLibrary is the indexed, immutable collection of field specs.
type FieldLibrary struct {
	Specs []FieldSpec

	byName map[string]*FieldSpec
	byDoc  map[DocType][]*FieldSpec
}

// NewFieldLibrary indexes and compiles the given specs. Invalid regexes,
// locales or tolerances are configuration errors and fail the whole load.
func NewFieldLibrary(specs []FieldSpec) (*FieldLibrary, error) {
	lib := &FieldLibrary{
		Specs:  specs,
		byName: make(map[string]*FieldSpec, len(specs)),
		byDoc:  make(map[DocType][]*FieldSpec),
	}
	for i := range lib.Specs {
		s := &lib.Specs[i]
		if s.Canonical == "" {
			return nil, eris.New("model: field spec without canonical name")
		}
		if _, dup := lib.byName[s.Canonical]; dup {
			return nil, eris.Errorf("model: duplicate field spec %q", s.Canonical)
		}
		switch s.Kind {
		case KindMoney, KindPercent, KindDate, KindRatio, KindCount:
		default:
			return nil, eris.Errorf("model: field %q: unknown kind %q", s.Canonical, s.Kind)
		}
		for _, p := range s.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, eris.Wrapf(err, "model: field %q: compile pattern", s.Canonical)
			}
			s.compiled = append(s.compiled, re)
		}
		s.langTag = language.Und
		if s.Locale != "" {
			tag, err := language.Parse(s.Locale)
			if err != nil {
				return nil, eris.Wrapf(err, "model: field %q: parse locale %q", s.Canonical, s.Locale)
			}
			s.langTag = tag
		}
		if s.GroupTolerance != "" {
			tol, err := decimal.NewFromString(s.GroupTolerance)
			if err != nil {
				return nil, eris.Wrapf(err, "model: field %q: parse group tolerance", s.Canonical)
			}
			s.groupTol = tol
			s.hasGrpTol = true
		}
		lib.byName[s.Canonical] = s
		if len(s.DocTypes) == 0 {
			for _, dt := range []DocType{
				DocTypeCapitalAccountStatement, DocTypeQuarterlyReport,
				DocTypeCapitalCallNotice, DocTypeDistributionNotice,
			} {
				lib.byDoc[dt] = append(lib.byDoc[dt], s)
			}
			continue
		}
		for _, dt := range s.DocTypes {
			lib.byDoc[dt] = append(lib.byDoc[dt], s)
		}
	}
	return lib, nil
}

// LoadFieldLibrary parses a YAML field library file.
func LoadFieldLibrary(data []byte) (*FieldLibrary, error) {
	var doc struct {
		Fields []FieldSpec `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "model: unmarshal field library")
	}
	if len(doc.Fields) == 0 {
		return nil, eris.New("model: field library defines no fields")
	}
	return NewFieldLibrary(doc.Fields)
}

// ByName returns the spec for a canonical field name.
func (l *FieldLibrary) ByName(name string) (*FieldSpec, error) {
	s, ok := l.byName[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownField, "%q", name)
	}
	return s, nil
}

// ForDocType returns every spec applicable to the given doc type.
func (l *FieldLibrary) ForDocType(dt DocType) []*FieldSpec {
	return l.byDoc[dt]
}

// Required returns the required specs for the given doc type.
func (l *FieldLibrary) Required(dt DocType) []*FieldSpec {
	var out []*FieldSpec
	for _, s := range l.byDoc[dt] {
		if s.Required {
			out = append(out, s)
		}
	}
	return out
}
