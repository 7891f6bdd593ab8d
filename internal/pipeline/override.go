package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/olitsch123/FOReportingv2/internal/extract"
	"github.com/olitsch123/FOReportingv2/internal/model"
	"github.com/olitsch123/FOReportingv2/internal/resolve"
	"github.com/olitsch123/FOReportingv2/internal/validate"
)

// Override is a reviewer's correction of one field on a document's latest
// record.
type Override struct {
	DocID      string
	Field      string
	NewValue   string
	ReviewerID string
	Reason     string
}

// ApplyOverride creates a new record version carrying the corrected field
// with method manual_override and confidence 1.0, then re-runs both
// validators against the amended record. The prior version remains stored
// untouched.
func (p *Pipeline) ApplyOverride(ctx context.Context, ov Override) (*model.ExtractedDocumentRecord, error) {
	spec, err := p.library.ByName(ov.Field)
	if err != nil {
		return nil, err
	}

	prev, err := p.store.LatestRecord(ctx, ov.DocID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: override target %s", ov.DocID)
	}

	value, amount, date, err := extract.Normalize(spec, ov.NewValue)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: normalize override value %q", ov.NewValue)
	}

	candidate := model.ExtractionCandidate{
		Field:      ov.Field,
		Method:     model.MethodManual,
		RawValue:   ov.NewValue,
		Value:      value,
		Amount:     amount,
		Date:       date,
		Confidence: 1.0,
		Evidence:   model.Evidence{ReviewerID: ov.ReviewerID, Reason: ov.Reason},
	}

	rec := &model.ExtractedDocumentRecord{
		ID:           uuid.NewString(),
		DocID:        prev.DocID,
		DocType:      prev.DocType,
		FundID:       prev.FundID,
		InvestorID:   prev.InvestorID,
		AsOfDate:     prev.AsOfDate,
		Currency:     prev.Currency,
		ContentHash:  prev.ContentHash,
		Version:      prev.Version + 1,
		RestatesID:   prev.ID,
		Recommitment: prev.Recommitment,
		Fields:       make(map[string]model.ResolvedField, len(prev.Fields)),
		CreatedAt:    time.Now().UTC(),
	}
	for k, v := range prev.Fields {
		rec.Fields[k] = v
	}
	rec.Fields[ov.Field] = resolve.Resolve(spec, []model.ExtractionCandidate{candidate})
	rec.Confidence = validate.BaseConfidence(rec)

	p.assessor.Apply(rec, p.docVal.RequiredFields(rec, p.library.Required(rec.DocType)))
	p.assessor.Apply(rec, p.docVal.Validate(rec))
	previous, err := p.previousPeriod(ctx, rec)
	if err != nil {
		return nil, err
	}
	p.assessor.Apply(rec, p.contVal.Validate(rec, previous))

	if err := p.persist(ctx, rec); err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: manual override applied",
		zap.String("doc_id", ov.DocID),
		zap.String("field", ov.Field),
		zap.String("reviewer", ov.ReviewerID),
		zap.String("record_id", rec.ID),
		zap.Int("version", rec.Version),
	)
	return rec, nil
}
