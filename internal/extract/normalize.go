package extract

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// ErrMalformed marks a raw value that cannot be normalized. Callers discard
// the candidate and log the reason; the field itself is not aborted.
var ErrMalformed = eris.New("extract: malformed value")

// Percentage sanity bounds, as fractions. Values outside are rejected rather
// than propagated.
var (
	percentFloor = decimal.NewFromInt(-1)
	percentCeil  = decimal.NewFromInt(10)
)

var unitMultipliers = map[string]int64{
	"k":  1_000,
	"m":  1_000_000,
	"mm": 1_000_000,
	"b":  1_000_000_000,
	"bn": 1_000_000_000,
}

// germanNumberLocales use comma as the decimal separator and dot for
// thousands grouping.
var germanNumberLocales = map[string]bool{
	"de": true, "at": true, "ch": true, "fr": true, "it": true, "es": true, "nl": true,
}

// commaDecimal reports whether the locale hint implies comma-decimal style.
func commaDecimal(lang language.Tag) bool {
	if lang == language.Und {
		return false
	}
	base, conf := lang.Base()
	if conf == language.No {
		return false
	}
	return germanNumberLocales[base.String()]
}

// ParseAmount normalizes a raw monetary/numeric token to a decimal. It
// handles parenthesized negatives, currency markers, thousands separators in
// both US and European styles, apostrophe grouping, and k/m/bn multipliers.
func ParseAmount(raw string, lang language.Tag) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return decimal.Decimal{}, eris.Wrap(ErrMalformed, "empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, cur := range []string{"usd", "eur", "gbp", "chf", "jpy", "$", "€", "£", "¥"} {
		s = strings.ReplaceAll(s, cur, "")
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = strings.TrimSpace(s[1:])
	}

	mult := int64(1)
	for _, suffix := range []string{"bn", "mm", "k", "m", "b"} {
		if strings.HasSuffix(s, suffix) {
			mult = unitMultipliers[suffix]
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "'", "")
	s = normalizeSeparators(s, lang)
	if s == "" {
		return decimal.Decimal{}, eris.Wrap(ErrMalformed, "no digits in amount")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, eris.Wrapf(ErrMalformed, "parse %q: %v", raw, err)
	}
	if mult != 1 {
		d = d.Mul(decimal.NewFromInt(mult))
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators resolves thousands/decimal separator ambiguity and
// returns a plain decimal string. When both separators appear, the last one
// seen is the decimal point. With only one kind present, the locale hint
// decides, falling back to treating a single trailing 1-2 digit group as
// decimal.
func normalizeSeparators(s string, lang language.Tag) string {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// European: 1.234.567,89
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// US: 1,234,567.89
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if commaDecimal(lang) || isDecimalGroup(s, lastComma) {
			s = strings.ReplaceAll(s[:lastComma], ",", "") + "." + s[lastComma+1:]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || (commaDecimal(lang) && !isDecimalGroup(s, lastDot)) {
			// Multiple dots, or a locale where dot groups thousands.
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// isDecimalGroup reports whether the separator at idx is followed by a
// trailing group of one or two digits, the shape of a decimal fraction
// rather than a thousands group.
func isDecimalGroup(s string, idx int) bool {
	rest := s[idx+1:]
	if len(rest) == 0 || len(rest) == 3 {
		return false
	}
	return len(rest) <= 2
}

// ParsePercent normalizes a percentage token to a fraction and enforces the
// [-1, 10] sanity range.
func ParsePercent(raw string, lang language.Tag) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	d, err := ParseAmount(s, lang)
	if err != nil {
		return decimal.Decimal{}, err
	}
	frac := d.Div(decimal.NewFromInt(100))
	if frac.LessThan(percentFloor) || frac.GreaterThan(percentCeil) {
		return decimal.Decimal{}, eris.Wrapf(ErrMalformed, "percentage %s outside sanity range", frac)
	}
	return frac, nil
}

// ParseRatio normalizes a multiple token such as "1.45x".
func ParseRatio(raw string, lang language.Tag) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimSuffix(s, "x")
	return ParseAmount(s, lang)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02-01-2006",
}

// ParseDate parses common statement date formats. Dotted and dashed
// day-first forms cover German administrator statements.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrMalformed, "unrecognized date %q", raw)
}

// Normalize converts a raw extracted token into the canonical value for the
// field's kind. Numeric kinds return the decimal and its plain string form;
// dates return an ISO 8601 string.
func Normalize(spec *model.FieldSpec, raw string) (value string, amount *decimal.Decimal, date *time.Time, err error) {
	switch spec.Kind {
	case model.KindMoney:
		d, perr := ParseAmount(raw, spec.Lang())
		if perr != nil {
			return "", nil, nil, perr
		}
		return d.String(), &d, nil, nil
	case model.KindPercent:
		d, perr := ParsePercent(raw, spec.Lang())
		if perr != nil {
			return "", nil, nil, perr
		}
		return d.String(), &d, nil, nil
	case model.KindRatio:
		d, perr := ParseRatio(raw, spec.Lang())
		if perr != nil {
			return "", nil, nil, perr
		}
		return d.String(), &d, nil, nil
	case model.KindCount:
		d, perr := ParseAmount(raw, spec.Lang())
		if perr != nil {
			return "", nil, nil, perr
		}
		if !d.IsInteger() {
			return "", nil, nil, eris.Wrapf(ErrMalformed, "non-integer count %q", raw)
		}
		return d.String(), &d, nil, nil
	case model.KindDate:
		t, perr := ParseDate(raw)
		if perr != nil {
			return "", nil, nil, perr
		}
		return t.Format("2006-01-02"), nil, &t, nil
	default:
		return "", nil, nil, eris.Errorf("extract: field %q: unhandled kind %q", spec.Canonical, spec.Kind)
	}
}
