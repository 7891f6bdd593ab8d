package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alternative is a non-selected candidate group retained for audit.
type Alternative struct {
	Value      string           `json:"value"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Methods    []Method         `json:"methods"`
	Confidence float64          `json:"confidence"`
	Score      float64          `json:"score"`
	GroupSize  int              `json:"group_size"`
}

// ResolvedField is the single audited value for one field, produced by the
// candidate reconciler. A field that no method found has empty Value and
// zero confidence.
type ResolvedField struct {
	Field string `json:"field"`
	// Value is the normalized value string; empty when unresolved.
	Value          string           `json:"value"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Date           *time.Time       `json:"date,omitempty"`
	Confidence     float64          `json:"confidence"`
	Methods        []Method         `json:"methods"`
	Alternatives   []Alternative    `json:"alternatives,omitempty"`
	ConsensusRatio float64          `json:"consensus_ratio"`
	Evidence       []Evidence       `json:"evidence,omitempty"`
}

// Resolved reports whether any method produced a usable value.
func (f ResolvedField) Resolved() bool { return f.Value != "" }

// ExtractedDocumentRecord is the assembled, validated field set for one
// document processing run. Records are immutable once validation completes;
// reprocessing or overrides create a new version linked via RestatesID.
type ExtractedDocumentRecord struct {
	ID          string    `json:"id"`
	DocID       string    `json:"doc_id"`
	DocType     DocType   `json:"doc_type"`
	FundID      string    `json:"fund_id"`
	InvestorID  string    `json:"investor_id,omitempty"`
	AsOfDate    time.Time `json:"as_of_date"`
	Currency    string    `json:"currency,omitempty"`
	ContentHash string    `json:"content_hash"`
	Version     int       `json:"version"`
	// RestatesID references the record version this one supersedes.
	RestatesID string `json:"restates_id,omitempty"`
	// Recommitment marks an explicit recommitment event, which exempts the
	// record from the unfunded-commitment monotonicity check.
	Recommitment bool `json:"recommitment,omitempty"`

	Fields         map[string]ResolvedField `json:"fields"`
	Confidence     float64                  `json:"confidence"`
	RequiresReview bool                     `json:"requires_review"`
	Results        []ValidationResult       `json:"results,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

// Amount returns the resolved numeric value of a field, if present.
func (r *ExtractedDocumentRecord) Amount(field string) (decimal.Decimal, bool) {
	f, ok := r.Fields[field]
	if !ok || f.Amount == nil {
		return decimal.Decimal{}, false
	}
	return *f.Amount, true
}

// AmountOrZero returns the resolved numeric value of a field, or zero when
// the field is absent. Validators that sum components use this.
func (r *ExtractedDocumentRecord) AmountOrZero(field string) decimal.Decimal {
	v, ok := r.Amount(field)
	if !ok {
		return decimal.Zero
	}
	return v
}
