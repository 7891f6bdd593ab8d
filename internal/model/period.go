package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapitalAccountPeriod is the persisted time-series unit for one fund and
// investor at one as-of date. Restatements append a new row referencing the
// prior one; rows are never deleted or updated.
type CapitalAccountPeriod struct {
	ID         string    `json:"id"`
	FundID     string    `json:"fund_id"`
	InvestorID string    `json:"investor_id,omitempty"`
	AsOfDate   time.Time `json:"as_of_date"`
	Currency   string    `json:"currency,omitempty"`

	BeginningBalance    decimal.Decimal `json:"beginning_balance"`
	EndingBalance       decimal.Decimal `json:"ending_balance"`
	Contributions       decimal.Decimal `json:"contributions"`
	DistributionsTotal  decimal.Decimal `json:"distributions_total"`
	DistributionsROC    decimal.Decimal `json:"distributions_roc"`
	DistributionsGain   decimal.Decimal `json:"distributions_gain"`
	DistributionsIncome decimal.Decimal `json:"distributions_income"`
	DistributionsTax    decimal.Decimal `json:"distributions_tax"`
	ManagementFees      decimal.Decimal `json:"management_fees"`
	PartnershipExpenses decimal.Decimal `json:"partnership_expenses"`
	RealizedGL          decimal.Decimal `json:"realized_gl"`
	UnrealizedGL        decimal.Decimal `json:"unrealized_gl"`
	TotalCommitment     decimal.Decimal `json:"total_commitment"`
	DrawnCommitment     decimal.Decimal `json:"drawn_commitment"`
	UnfundedCommitment  decimal.Decimal `json:"unfunded_commitment"`

	Recommitment bool `json:"recommitment,omitempty"`
	// SourceRecordID links back to the extracted document record version
	// the period was created from.
	SourceRecordID string `json:"source_record_id,omitempty"`
	// RestatesID references the period row this one restates.
	RestatesID string    `json:"restates_id,omitempty"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// FlowType classifies a cashflow ledger entry.
type FlowType string

const (
	FlowCall  FlowType = "CALL"
	FlowDist  FlowType = "DIST"
	FlowFee   FlowType = "FEE"
	FlowTax   FlowType = "TAX"
	FlowOther FlowType = "OTHER"
)

// ValidFlowType reports whether t is a known ledger entry type.
func ValidFlowType(t FlowType) bool {
	switch t {
	case FlowCall, FlowDist, FlowFee, FlowTax, FlowOther:
		return true
	}
	return false
}

// CashflowRecord is one atomic capital call or distribution. The ledger is
// append-only and is the source of truth for independent KPI recomputation.
type CashflowRecord struct {
	ID         string          `json:"id"`
	FundID     string          `json:"fund_id"`
	InvestorID string          `json:"investor_id,omitempty"`
	FlowDate   time.Time       `json:"flow_date"`
	Type       FlowType        `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NAVObservation is one dated NAV reading for a fund, keyed by the document
// type it came from.
type NAVObservation struct {
	FundID     string          `json:"fund_id"`
	InvestorID string          `json:"investor_id,omitempty"`
	AsOfDate   time.Time       `json:"as_of_date"`
	NAV        decimal.Decimal `json:"nav"`
	Source     DocType         `json:"source"`
}
