package model

import "github.com/shopspring/decimal"

// Severity classifies a validation finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// ValidationResult is one rule's verdict on a record. Failures are recorded,
// never raised: every rule runs regardless of earlier outcomes.
type ValidationResult struct {
	RuleID   string   `json:"rule_id"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	// Computed and Reported carry both sides of a failed equation.
	Computed *decimal.Decimal `json:"computed,omitempty"`
	Reported *decimal.Decimal `json:"reported,omitempty"`
}
