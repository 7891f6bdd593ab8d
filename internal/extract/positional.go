package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// numericToken matches a monetary/numeric token in layout text, including
// parenthesized negatives and unit suffixes.
var numericToken = regexp.MustCompile(`(?i)\(?(?:USD|EUR|GBP|CHF|\$|€|£)?\s*-?\d[\d.,']*(?:\s*(?:k|m|mm|bn|b))?\)?%?`)

// PositionalExtractor uses line geometry relative to anchor phrases for
// documents whose tables are not machine-readable. A value on the anchor's
// own line is an exact hit; a value on the following line is a loose hit
// with lower confidence.
type PositionalExtractor struct {
	ExactConfidence float64
	LooseConfidence float64
}

// NewPositionalExtractor creates a PositionalExtractor with exact/loose
// anchor confidences.
func NewPositionalExtractor(exact, loose float64) *PositionalExtractor {
	return &PositionalExtractor{ExactConfidence: exact, LooseConfidence: loose}
}

// Method implements Extractor.
func (e *PositionalExtractor) Method() model.Method { return model.MethodPositional }

// Extract scans the text line by line for each anchor phrase. Date fields
// are left to the other methods; layout geometry is only trusted for
// numeric kinds.
func (e *PositionalExtractor) Extract(ctx context.Context, spec *model.FieldSpec, doc *model.ParsedDocument) ([]model.ExtractionCandidate, error) {
	if spec.Kind == model.KindDate || len(spec.Anchors) == 0 {
		return nil, nil
	}

	lines := strings.Split(doc.Text, "\n")
	var out []model.ExtractionCandidate

	for _, anchor := range spec.Anchors {
		if err := ctx.Err(); err != nil {
			return out, nil
		}
		a := strings.ToLower(anchor)
		for li, line := range lines {
			idx := strings.Index(strings.ToLower(line), a)
			if idx < 0 {
				continue
			}
			// Same line, after the anchor: exact hit.
			if cand, ok := e.candidate(spec, line[idx+len(a):], anchor, li, e.ExactConfidence); ok {
				out = append(out, cand)
				break
			}
			// Next line: loose hit.
			if li+1 < len(lines) {
				if cand, ok := e.candidate(spec, lines[li+1], anchor, li+1, e.LooseConfidence); ok {
					out = append(out, cand)
					break
				}
			}
		}
		if len(out) > 0 {
			// One candidate per field is enough; further anchors would
			// find the same figure.
			break
		}
	}
	return out, nil
}

func (e *PositionalExtractor) candidate(spec *model.FieldSpec, segment, anchor string, line int, confidence float64) (model.ExtractionCandidate, bool) {
	raw := numericToken.FindString(segment)
	if raw == "" {
		return model.ExtractionCandidate{}, false
	}
	value, amount, date, err := Normalize(spec, raw)
	if err != nil {
		return model.ExtractionCandidate{}, false
	}
	ln := line
	return model.ExtractionCandidate{
		Field:      spec.Canonical,
		Method:     model.MethodPositional,
		RawValue:   strings.TrimSpace(raw),
		Value:      value,
		Amount:     amount,
		Date:       date,
		Confidence: confidence,
		Evidence:   model.Evidence{Anchor: anchor, Line: &ln},
	}, true
}
