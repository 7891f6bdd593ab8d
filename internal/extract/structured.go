package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/pkg/anthropic"
)

const structuredSystemPrompt = `You are a data extraction engine for private equity fund documents
(capital account statements, quarterly reports, capital call and distribution notices).
You will receive document text and a list of field names with their semantic kinds.
Return ONLY a JSON object mapping field names to the raw value string exactly as it
appears in the document. Omit fields that are not present. Do not compute, convert
or infer values. No prose, no markdown fences.`

// maxDocumentChars bounds the prompt payload for very large documents.
const maxDocumentChars = 60000

// docExtraction is the memoized result of the one model call made per
// document. All fields of that document share it, including its error.
type docExtraction struct {
	values     map[string]string
	promptID   string
	responseID string
	err        error
}

// StructuredExtractor asks the model for every applicable field of a
// document in a single call and serves per-field candidates from the
// memoized response. Repeated Extract calls for the same document content
// never trigger a second call, and neither does a failed one.
type StructuredExtractor struct {
	client     anthropic.Client
	library    *model.FieldLibrary
	model      string
	maxTokens  int64
	confidence float64
	timeout    time.Duration

	mu    sync.Mutex
	cache map[string]*docExtraction
}

// NewStructuredExtractor creates a StructuredExtractor. timeout bounds each
// backend call; the per-field Extract deadline from the pipeline still
// applies on top.
func NewStructuredExtractor(client anthropic.Client, library *model.FieldLibrary, modelID string, maxTokens int64, confidence float64, timeout time.Duration) *StructuredExtractor {
	return &StructuredExtractor{
		client:     client,
		library:    library,
		model:      modelID,
		maxTokens:  maxTokens,
		confidence: confidence,
		timeout:    timeout,
		cache:      make(map[string]*docExtraction),
	}
}

// Method implements Extractor.
func (e *StructuredExtractor) Method() model.Method { return model.MethodStructured }

// Extract serves the requested field from the document's memoized model
// response. A backend failure surfaces as ErrServiceUnavailable; an absent
// or non-normalizable field yields no candidates.
func (e *StructuredExtractor) Extract(ctx context.Context, spec *model.FieldSpec, doc *model.ParsedDocument) ([]model.ExtractionCandidate, error) {
	ext := e.extraction(ctx, doc)
	if ext.err != nil {
		return nil, ext.err
	}

	raw, ok := ext.values[spec.Canonical]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	value, amount, date, err := Normalize(spec, raw)
	if err != nil {
		zap.L().Debug("extract: structured value not normalizable",
			zap.String("field", spec.Canonical),
			zap.String("raw", raw),
			zap.Error(err),
		)
		return nil, nil
	}
	return []model.ExtractionCandidate{{
		Field:      spec.Canonical,
		Method:     model.MethodStructured,
		RawValue:   strings.TrimSpace(raw),
		Value:      value,
		Amount:     amount,
		Date:       date,
		Confidence: e.confidence,
		Evidence: model.Evidence{
			PromptID:   ext.promptID,
			ResponseID: ext.responseID,
		},
	}}, nil
}

// extraction returns the document's memoized extraction, issuing the single
// model call on first use. The content hash keys the cache so a re-ingested
// identical document also hits it.
func (e *StructuredExtractor) extraction(ctx context.Context, doc *model.ParsedDocument) *docExtraction {
	key := doc.ContentHash()

	e.mu.Lock()
	defer e.mu.Unlock()
	if ext, ok := e.cache[key]; ok {
		return ext
	}

	ext := e.callModel(ctx, doc)
	e.cache[key] = ext
	return ext
}

func (e *StructuredExtractor) callModel(ctx context.Context, doc *model.ParsedDocument) *docExtraction {
	specs := e.library.ForDocType(doc.DocType)
	if len(specs) == 0 {
		return &docExtraction{values: map[string]string{}}
	}

	var fields strings.Builder
	for _, s := range specs {
		fmt.Fprintf(&fields, "- %s (%s)\n", s.Canonical, s.Kind)
	}

	text := doc.Text
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}

	promptID := "structured/" + string(doc.DocType) + "/v1"
	prompt := fmt.Sprintf("Document type: %s\n\nFields to extract:\n%s\nDocument text:\n%s",
		doc.DocType, fields.String(), text)

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    []anthropic.SystemBlock{{Text: structuredSystemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("extract: structured backend call failed",
			zap.String("doc_id", doc.DocID),
			zap.Error(err),
		)
		return &docExtraction{err: eris.Wrap(ErrServiceUnavailable, eris.ToString(err, false))}
	}
	resp.Usage.LogCost(e.model, "structured_extraction")

	values, err := parseStructuredResponse(resp.Text())
	if err != nil {
		zap.L().Warn("extract: structured response not parseable",
			zap.String("doc_id", doc.DocID),
			zap.String("response_id", resp.ID),
			zap.Error(err),
		)
		// A malformed response is a no-candidate outcome, not an outage.
		return &docExtraction{values: map[string]string{}, promptID: promptID, responseID: resp.ID}
	}

	return &docExtraction{values: values, promptID: promptID, responseID: resp.ID}
}

// parseStructuredResponse decodes the model's JSON object, tolerating
// markdown fences the instruction fails to suppress.
func parseStructuredResponse(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: decode structured response")
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = fmt.Sprintf("%v", t)
		case nil:
			// Absent field, skip.
		default:
			return nil, eris.Errorf("extract: field %q has non-scalar value", k)
		}
	}
	return out, nil
}
