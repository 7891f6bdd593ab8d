package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// PatternExtractor applies the field's ordered regex families against the
// raw document text. The first match of each family yields one candidate.
type PatternExtractor struct {
	Confidence float64
}

// NewPatternExtractor creates a PatternExtractor with the given method
// confidence.
func NewPatternExtractor(confidence float64) *PatternExtractor {
	return &PatternExtractor{Confidence: confidence}
}

// Method implements Extractor.
func (e *PatternExtractor) Method() model.Method { return model.MethodPattern }

// Extract runs each pattern family in order. A family whose first match
// fails normalization contributes nothing; later families still run.
func (e *PatternExtractor) Extract(ctx context.Context, spec *model.FieldSpec, doc *model.ParsedDocument) ([]model.ExtractionCandidate, error) {
	var out []model.ExtractionCandidate
	seen := make(map[string]bool)

	for _, re := range spec.Regexps() {
		if err := ctx.Err(); err != nil {
			return out, nil
		}
		loc := re.FindStringSubmatchIndex(doc.Text)
		if loc == nil || len(loc) < 4 || loc[2] < 0 {
			continue
		}
		raw := doc.Text[loc[2]:loc[3]]
		value, amount, date, err := Normalize(spec, raw)
		if err != nil {
			zap.L().Debug("extract: pattern match not normalizable",
				zap.String("field", spec.Canonical),
				zap.String("raw", raw),
				zap.Error(err),
			)
			continue
		}
		// Families frequently overlap on the same token; one candidate per
		// distinct value keeps the consensus ratio meaningful.
		if seen[value] {
			continue
		}
		seen[value] = true

		start, end := loc[2], loc[3]
		out = append(out, model.ExtractionCandidate{
			Field:      spec.Canonical,
			Method:     model.MethodPattern,
			RawValue:   raw,
			Value:      value,
			Amount:     amount,
			Date:       date,
			Confidence: e.Confidence,
			Evidence:   model.Evidence{SpanStart: &start, SpanEnd: &end},
		})
	}
	return out, nil
}
