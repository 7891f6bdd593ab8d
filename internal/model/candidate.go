package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method identifies the extraction strategy that produced a candidate.
type Method string

const (
	MethodTable      Method = "table"
	MethodPattern    Method = "pattern"
	MethodPositional Method = "positional"
	MethodStructured Method = "structured"
	MethodManual     Method = "manual_override"
)

// Evidence locates a candidate's origin in the source document. Exactly the
// fields relevant to the producing method are set.
type Evidence struct {
	// Table method: grid coordinates.
	Table *int `json:"table,omitempty"`
	Row   *int `json:"row,omitempty"`
	Col   *int `json:"col,omitempty"`
	Page  int  `json:"page,omitempty"`
	// Pattern method: byte offsets of the match in the raw text.
	SpanStart *int `json:"span_start,omitempty"`
	SpanEnd   *int `json:"span_end,omitempty"`
	// Positional method: the anchor phrase and line number that matched.
	Anchor string `json:"anchor,omitempty"`
	Line   *int   `json:"line,omitempty"`
	// Structured method: backend call identifiers.
	PromptID   string `json:"prompt_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`
	// Manual override: who and why.
	ReviewerID string `json:"reviewer_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ExtractionCandidate is one method's proposed value for one field. It is
// created once and never mutated.
type ExtractionCandidate struct {
	Field  string `json:"field"`
	Method Method `json:"method"`
	// RawValue is the text exactly as found in the document.
	RawValue string `json:"raw_value"`
	// Value is the canonical normalized form: a plain decimal string for
	// numeric kinds, an ISO 8601 date for date kinds.
	Value string `json:"value"`
	// Amount is set for numeric kinds only.
	Amount *decimal.Decimal `json:"amount,omitempty"`
	// Date is set for date kinds only.
	Date       *time.Time `json:"date,omitempty"`
	Confidence float64    `json:"confidence"`
	Evidence   Evidence   `json:"evidence"`
}
