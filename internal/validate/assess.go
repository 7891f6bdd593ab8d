package validate

import (
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// Assessor folds validation outcomes into a record's aggregate confidence
// and review flag.
type Assessor struct {
	// CriticalMultiplier and WarningMultiplier shrink confidence per failed
	// check of the respective severity.
	CriticalMultiplier float64
	WarningMultiplier  float64
	// ReviewThreshold is the aggregate confidence below which a record is
	// routed to review.
	ReviewThreshold float64
}

// NewAssessor creates an Assessor from configured multipliers and threshold.
func NewAssessor(critical, warning, threshold float64) *Assessor {
	return &Assessor{
		CriticalMultiplier: critical,
		WarningMultiplier:  warning,
		ReviewThreshold:    threshold,
	}
}

// Apply attaches the results to the record, discounts its confidence for
// every failure, and decides requires_review. Any critical failure forces
// review regardless of the remaining confidence.
func (a *Assessor) Apply(rec *model.ExtractedDocumentRecord, results []model.ValidationResult) {
	rec.Results = append(rec.Results, results...)

	criticalFailed := false
	for _, r := range results {
		if r.Passed {
			continue
		}
		switch r.Severity {
		case model.SeverityCritical:
			criticalFailed = true
			rec.Confidence *= a.CriticalMultiplier
		case model.SeverityWarning:
			rec.Confidence *= a.WarningMultiplier
		}
		zap.L().Warn("validate: check failed",
			zap.String("doc_id", rec.DocID),
			zap.String("rule", r.RuleID),
			zap.String("severity", string(r.Severity)),
			zap.String("message", r.Message),
		)
	}

	if criticalFailed || rec.Confidence < a.ReviewThreshold {
		rec.RequiresReview = true
	}
}

// BaseConfidence computes the record's pre-validation confidence as the mean
// confidence of its resolved fields. A record with nothing resolved scores
// zero.
func BaseConfidence(rec *model.ExtractedDocumentRecord) float64 {
	var sum float64
	var n int
	for _, f := range rec.Fields {
		if f.Resolved() {
			sum += f.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
