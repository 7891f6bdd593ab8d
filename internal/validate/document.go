package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/olitsch123/FOReportingv2/internal/model"
)

// Rule identifiers referenced by reports and tests.
const (
	RuleBalanceEquation       = "balance_equation"
	RuleDistributionBreakdown = "distribution_breakdown"
	RuleCommitmentMath        = "commitment_math"
	RuleFeePlausibility       = "fee_plausibility"
	RuleTVPIIdentity          = "tvpi_identity"
	RuleMOICRange             = "moic_range"
	RuleIRRRange              = "irr_range"
	RuleNoticeAmount          = "notice_amount_positive"
	RuleRequiredField         = "required_field"
)

var (
	moicFloor = decimal.Zero
	moicCeil  = decimal.NewFromInt(10)
	irrFloor  = decimal.NewFromInt(-1)
	irrCeil   = decimal.NewFromInt(2)
)

// DocumentValidator checks a fully-resolved record's internal arithmetic.
// Rules whose inputs are not resolved are skipped, not failed; missing data
// is a coverage question, not an equation violation.
type DocumentValidator struct {
	// Tol applies to monetary equations. RatioTol applies to the multiple
	// identity, where a one-currency-unit absolute band would be vacuous.
	Tol      Tolerance
	RatioTol Tolerance
}

// NewDocumentValidator creates a DocumentValidator with the given monetary
// and ratio tolerance policies.
func NewDocumentValidator(tol, ratioTol Tolerance) *DocumentValidator {
	return &DocumentValidator{Tol: tol, RatioTol: ratioTol}
}

// Validate runs every applicable document-level rule.
func (v *DocumentValidator) Validate(rec *model.ExtractedDocumentRecord) []model.ValidationResult {
	var out []model.ValidationResult
	appendIf := func(r *model.ValidationResult) {
		if r != nil {
			out = append(out, *r)
		}
	}
	appendIf(v.balanceEquation(rec))
	appendIf(v.distributionBreakdown(rec))
	appendIf(v.commitmentMath(rec))
	appendIf(v.feePlausibility(rec))
	appendIf(v.tvpiIdentity(rec))
	appendIf(v.moicRange(rec))
	appendIf(v.irrRange(rec))
	appendIf(v.positiveAmount(rec, "call_amount"))
	appendIf(v.positiveAmount(rec, "distribution_amount"))
	return out
}

// RequiredFields reports a warning for each required field the record did
// not resolve. A coverage gap lowers confidence; it is not an equation
// violation.
func (v *DocumentValidator) RequiredFields(rec *model.ExtractedDocumentRecord, required []*model.FieldSpec) []model.ValidationResult {
	var out []model.ValidationResult
	for _, spec := range required {
		if f, ok := rec.Fields[spec.Canonical]; ok && f.Resolved() {
			continue
		}
		out = append(out, model.ValidationResult{
			RuleID:   RuleRequiredField,
			Passed:   false,
			Severity: model.SeverityWarning,
			Fields:   []string{spec.Canonical},
			Message:  fmt.Sprintf("required field %s was not extracted", spec.Canonical),
		})
	}
	return out
}

// balanceEquation checks the period roll-forward:
// ending = beginning + contributions - distributions - fees - expenses
// + realized + unrealized.
func (v *DocumentValidator) balanceEquation(rec *model.ExtractedDocumentRecord) *model.ValidationResult {
	beginning, okB := rec.Amount("beginning_balance")
	ending, okE := rec.Amount("ending_balance")
	if !okB || !okE {
		return nil
	}

	computed := beginning.
		Add(rec.AmountOrZero("contributions_period")).
		Sub(rec.AmountOrZero("distributions_period")).
		Sub(rec.AmountOrZero("management_fees_period")).
		Sub(rec.AmountOrZero("partnership_expenses_period")).
		Add(rec.AmountOrZero("realized_gain_loss_period")).
		Add(rec.AmountOrZero("unrealized_gain_loss_period"))

	fields := []string{
		"beginning_balance", "ending_balance", "contributions_period",
		"distributions_period", "management_fees_period",
		"partnership_expenses_period", "realized_gain_loss_period",
		"unrealized_gain_loss_period",
	}
	return v.equationResult(RuleBalanceEquation, model.SeverityCritical,
		"balance roll-forward", computed, ending, fields)
}

// distributionBreakdown checks that the distribution subtypes sum to the
// reported total. Requires the total plus at least one subtype.
func (v *DocumentValidator) distributionBreakdown(rec *model.ExtractedDocumentRecord) *model.ValidationResult {
	total, ok := rec.Amount("distributions_period")
	if !ok {
		return nil
	}
	subtypes := []string{
		"distributions_roc_period", "distributions_gain_period",
		"distributions_income_period", "distributions_tax_period",
	}
	any := false
	sum := decimal.Zero
	for _, f := range subtypes {
		if d, ok := rec.Amount(f); ok {
			any = true
			sum = sum.Add(d)
		}
	}
	if !any {
		return nil
	}
	fields := append([]string{"distributions_period"}, subtypes...)
	return v.equationResult(RuleDistributionBreakdown, model.SeverityCritical,
		"distribution breakdown", sum, total, fields)
}

// commitmentMath checks drawn + unfunded = total commitment.
func (v *DocumentValidator) commitmentMath(rec *model.ExtractedDocumentRecord) *model.ValidationResult {
	total, okT := rec.Amount("total_commitment")
	drawn, okD := rec.Amount("drawn_commitment")
	unfunded, okU := rec.Amount("unfunded_commitment")
	if !okT || !okD || !okU {
		return nil
	}
	fields := []string{"total_commitment", "drawn_commitment", "unfunded_commitment"}
	return v.equationResult(RuleCommitmentMath, model.SeverityCritical,
		"commitment arithmetic", drawn.Add(unfunded), total, fields)
}

// feePlausibility compares the reported management fee against
// fee base * fee rate. The rate may be stepped down or prorated, so a miss
// is only a warning.
func (v *DocumentValidator) feePlausibility(rec *model.ExtractedDocumentRecord) *model.ValidationResult {
	fee, okF := rec.Amount("management_fees_period")
	rate, okR := rec.Amount("management_fee_rate")
	base, okB := rec.Amount("total_commitment")
	if !okF || !okR || !okB {
		return nil
	}
	expected := base.Mul(rate)
	fields := []string{"management_fees_period", "management_fee_rate", "total_commitment"}
	r := v.equationResult(RuleFeePlausibility, model.SeverityWarning,
		"management fee plausibility", expected, fee, fields)
	return r
}

// tvpiIdentity checks TVPI = DPI + RVPI.
func (v *DocumentValidator) tvpiIdentity(rec *model.ExtractedDocumentRecord) *model.ValidationResult {
	tvpi, okT := rec.Amount("tvpi")
	dpi, okD := rec.Amount("dpi")
	rvpi, okR := rec.Amount("rvpi")
	if !okT || !okD || !okR {
		return nil
	}
	fields := []string{"tvpi", "dpi", "rvpi"}
	return equationResult(v.RatioTol, RuleTVPIIdentity, model.SeverityCritical,
		"TVPI identity", dpi.Add(rvpi), tvpi, fields)
}

func (v *DocumentValidator) moicRange(rec *model.ExtractedDocumentRecord) *model.ValidationResult {
	moic, ok := rec.Amount("moic_net")
	if !ok {
		return nil
	}
	passed := moic.GreaterThanOrEqual(moicFloor) && moic.LessThanOrEqual(moicCeil)
	r := &model.ValidationResult{
		RuleID:   RuleMOICRange,
		Passed:   passed,
		Severity: model.SeverityWarning,
		Fields:   []string{"moic_net"},
		Reported: &moic,
	}
	if !passed {
		r.Message = fmt.Sprintf("MOIC %s outside [0, 10]", moic.String())
	}
	return r
}

func (v *DocumentValidator) irrRange(rec *model.ExtractedDocumentRecord) *model.ValidationResult {
	irr, ok := rec.Amount("irr_net")
	if !ok {
		return nil
	}
	passed := irr.GreaterThanOrEqual(irrFloor) && irr.LessThanOrEqual(irrCeil)
	r := &model.ValidationResult{
		RuleID:   RuleIRRRange,
		Passed:   passed,
		Severity: model.SeverityWarning,
		Fields:   []string{"irr_net"},
		Reported: &irr,
	}
	if !passed {
		r.Message = fmt.Sprintf("IRR %s outside [-1, 2]", irr.String())
	}
	return r
}

// positiveAmount checks a notice amount's sign. A non-positive call or
// distribution amount means the sign handling misparsed, which would corrupt
// the cashflow ledger downstream.
func (v *DocumentValidator) positiveAmount(rec *model.ExtractedDocumentRecord, field string) *model.ValidationResult {
	amt, ok := rec.Amount(field)
	if !ok {
		return nil
	}
	passed := amt.IsPositive()
	r := &model.ValidationResult{
		RuleID:   RuleNoticeAmount,
		Passed:   passed,
		Severity: model.SeverityCritical,
		Fields:   []string{field},
		Reported: &amt,
	}
	if !passed {
		r.Message = fmt.Sprintf("%s %s is not positive", field, amt.String())
	}
	return r
}

func (v *DocumentValidator) equationResult(ruleID string, severity model.Severity, what string, computed, reported decimal.Decimal, fields []string) *model.ValidationResult {
	return equationResult(v.Tol, ruleID, severity, what, computed, reported, fields)
}

func equationResult(tol Tolerance, ruleID string, severity model.Severity, what string, computed, reported decimal.Decimal, fields []string) *model.ValidationResult {
	passed := tol.Within(computed, reported)
	r := &model.ValidationResult{
		RuleID:   ruleID,
		Passed:   passed,
		Severity: severity,
		Fields:   fields,
		Computed: &computed,
		Reported: &reported,
	}
	if !passed {
		r.Message = diffMessage(what, computed, reported)
	}
	return r
}
