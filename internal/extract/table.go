package extract

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// TableExtractor scans table cell grids for header tokens from the field's
// synonym list and returns the aligned value cell.
type TableExtractor struct {
	Confidence float64
}

// NewTableExtractor creates a TableExtractor with the given method
// confidence.
func NewTableExtractor(confidence float64) *TableExtractor {
	return &TableExtractor{Confidence: confidence}
}

// Method implements Extractor.
func (e *TableExtractor) Method() model.Method { return model.MethodTable }

// Extract looks for a synonym header in every table. On a hit it takes the
// first normalizable cell to the right in the same row, falling back to the
// cell directly below. One candidate per table at most.
func (e *TableExtractor) Extract(ctx context.Context, spec *model.FieldSpec, doc *model.ParsedDocument) ([]model.ExtractionCandidate, error) {
	var out []model.ExtractionCandidate

	for ti := range doc.Tables {
		if err := ctx.Err(); err != nil {
			// Deadline reached: degrade to whatever was found so far.
			return out, nil
		}
		t := &doc.Tables[ti]
		cand, ok := e.scanTable(spec, t, ti)
		if ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

func (e *TableExtractor) scanTable(spec *model.FieldSpec, t *model.Table, tableIdx int) (model.ExtractionCandidate, bool) {
	for ri, row := range t.Cells {
		for ci, cell := range row {
			if !matchesSynonym(cell, spec.Synonyms) {
				continue
			}
			// Adjacent cells to the right.
			for vi := ci + 1; vi < len(row); vi++ {
				if cand, ok := e.candidate(spec, row[vi], tableIdx, ri, vi, t.Page); ok {
					return cand, true
				}
			}
			// Cell directly below the header.
			if ri+1 < len(t.Cells) && ci < len(t.Cells[ri+1]) {
				if cand, ok := e.candidate(spec, t.Cells[ri+1][ci], tableIdx, ri+1, ci, t.Page); ok {
					return cand, true
				}
			}
		}
	}
	return model.ExtractionCandidate{}, false
}

func (e *TableExtractor) candidate(spec *model.FieldSpec, raw string, table, row, col, page int) (model.ExtractionCandidate, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.ExtractionCandidate{}, false
	}
	value, amount, date, err := Normalize(spec, raw)
	if err != nil {
		zap.L().Debug("extract: table cell not normalizable",
			zap.String("field", spec.Canonical),
			zap.String("raw", raw),
			zap.Error(err),
		)
		return model.ExtractionCandidate{}, false
	}
	return model.ExtractionCandidate{
		Field:      spec.Canonical,
		Method:     model.MethodTable,
		RawValue:   raw,
		Value:      value,
		Amount:     amount,
		Date:       date,
		Confidence: e.Confidence,
		Evidence: model.Evidence{
			Table: &table, Row: &row, Col: &col, Page: page,
		},
	}, true
}

// matchesSynonym reports whether a cell text matches any synonym header,
// case-insensitively, allowing the header to appear as a prefix of a longer
// label ("Ending Balance (USD)").
func matchesSynonym(cell string, synonyms []string) bool {
	c := strings.ToLower(strings.TrimSpace(cell))
	if c == "" {
		return false
	}
	for _, syn := range synonyms {
		s := strings.ToLower(syn)
		if c == s || strings.HasPrefix(c, s+" ") || strings.HasPrefix(c, s+":") || strings.HasPrefix(c, s+" (") {
			return true
		}
	}
	return false
}
