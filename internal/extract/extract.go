// Package extract implements the field extraction methods of the ERV
// engine. Each method is a stateless strategy behind the Extractor contract:
// absence of a field yields an empty candidate list, never an error. Only
// the structured method may fail with ErrServiceUnavailable when its backend
// cannot be reached.
package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// ErrServiceUnavailable is returned by the structured method when the
// extraction backend is unreachable or times out. Callers treat it as a
// soft failure: the method contributes no candidates and processing
// continues.
var ErrServiceUnavailable = eris.New("extract: structured backend unavailable")

// Extractor is the capability contract shared by all extraction methods.
type Extractor interface {
	Method() model.Method
	Extract(ctx context.Context, spec *model.FieldSpec, doc *model.ParsedDocument) ([]model.ExtractionCandidate, error)
}
