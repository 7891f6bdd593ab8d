package model

// Shared sub-patterns for the builtin library. The amount pattern captures
// optional parentheses, currency markers and k/m/bn suffixes; normalization
// strips them before numeric parsing.
const (
	amt = `((?:\()?\s*(?:USD|EUR|GBP|CHF|\$|€|£)?\s*-?\d[\d.,']*(?:\s*(?:k|m|mm|bn|b))?\s*(?:\))?)`
	pct = `(\(?-?\d+(?:[.,]\d+)?\)?)\s*%`
	dat = `(\d{1,2}[./-]\d{1,2}[./-]\d{2,4}|\d{4}-\d{1,2}-\d{1,2}|(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2},?\s+\d{4})`
)

var casQR = []DocType{DocTypeCapitalAccountStatement, DocTypeQuarterlyReport}

// builtinSpecs is the default field library, assembled from the header and
// phrase variants seen across administrator capital account statements and
// quarterly reports. A YAML file can replace it entirely.
var builtinSpecs = []FieldSpec{
	{
		Canonical: "beginning_balance", Kind: KindMoney, DocTypes: casQR, Required: true,
		Synonyms: []string{"Beginning Balance", "Opening Balance", "Balance, Beginning", "Prior Balance", "Balance at Beginning of Period"},
		Patterns: []string{
			`beginning\s+balance[\s():]*` + amt,
			`opening\s+balance[\s:]*` + amt,
			`balance[,\s]+beginning[\s:]*` + amt,
			`balance\s+at\s+beginning\s+of\s+period[\s:]*` + amt,
			`prior\s+period\s+ending\s+balance[\s:]*` + amt,
		},
		Anchors: []string{"beginning balance", "opening balance"},
	},
	{
		Canonical: "ending_balance", Kind: KindMoney, DocTypes: casQR, Required: true,
		Synonyms: []string{"Ending Balance", "Closing Balance", "Balance, Ending", "NAV", "Net Asset Value", "Partner Capital"},
		Patterns: []string{
			`ending\s+balance[\s:]*` + amt,
			`closing\s+balance[\s:]*` + amt,
			`balance[,\s]+ending[\s:]*` + amt,
			`net\s+asset\s+value[\s:]*` + amt,
			`partner'?s?\s+capital[\s:]*` + amt,
		},
		Anchors: []string{"ending balance", "closing balance", "net asset value"},
	},
	{
		Canonical: "contributions_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Contributions", "Capital Calls", "Paid-in Capital", "Capital Contributions"},
		Patterns: []string{
			`total\s+contributions\s+this\s+period[\s:]*` + amt,
			`contributions\s+this\s+period[\s:]*` + amt,
			`capital\s+calls?[\s:]*` + amt,
			`contributions?[\s:]*` + amt,
		},
		Anchors: []string{"contributions", "capital calls"},
	},
	{
		Canonical: "distributions_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Distributions", "Cash Distributions", "Total Distributions", "Proceeds"},
		Patterns: []string{
			`total\s+distributions\s+this\s+period[\s:]*` + amt,
			`distributions\s+this\s+period[\s:]*` + amt,
			`cash\s+distributions?[\s:]*` + amt,
			`distributions?[\s:]*` + amt,
		},
		Anchors: []string{"distributions", "total distributions"},
	},
	{
		Canonical: "distributions_roc_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Return of Capital", "ROC", "Capital Return"},
		Patterns: []string{
			`return\s+of\s+capital[\s:]*` + amt,
			`capital\s+return[\s:]*` + amt,
		},
		Anchors: []string{"return of capital"},
	},
	{
		Canonical: "distributions_gain_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Realized Gains", "Gain Distributions", "Capital Gains"},
		Patterns: []string{
			`realized\s+gains?\s+distribut\w*[\s:]*` + amt,
			`gains?\s+distributions?[\s:]*` + amt,
			`capital\s+gains?[\s:]*` + amt,
		},
		Anchors: []string{"gain distributions"},
	},
	{
		Canonical: "distributions_income_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Income", "Dividends", "Interest", "Income Distributions"},
		Patterns: []string{
			`income\s+distributions?[\s:]*` + amt,
			`dividends?[\s:]*` + amt,
			`interest\s+income[\s:]*` + amt,
		},
		Anchors: []string{"income distributions"},
	},
	{
		Canonical: "distributions_tax_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Tax Distributions", "Withholding Tax"},
		Patterns: []string{
			`tax\s+distributions?[\s:]*` + amt,
			`withholding\s+tax[\s:]*` + amt,
		},
		Anchors: []string{"tax distributions"},
	},
	{
		Canonical: "management_fees_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Management Fees", "Mgmt Fees", "Advisory Fees"},
		Patterns: []string{
			`management\s+fees?[\s:]*` + amt,
			`mgmt\s+fees?[\s:]*` + amt,
			`advisory\s+fees?[\s:]*` + amt,
		},
		Anchors: []string{"management fee"},
	},
	{
		Canonical: "partnership_expenses_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Partnership Expenses", "Fund Expenses", "Operating Expenses"},
		Patterns: []string{
			`(?:total\s+)?partnership\s+expenses?[\s:]*` + amt,
			`fund\s+expenses?[\s:]*` + amt,
			`operating\s+expenses?[\s:]*` + amt,
		},
		Anchors: []string{"partnership expenses", "fund expenses"},
	},
	{
		Canonical: "realized_gain_loss_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Realized Gain/(Loss)", "Realized G/(L)", "Net Realized"},
		Patterns: []string{
			`realized\s+gain/?\(?loss\)?[\s:]*` + amt,
			`net\s+realized[\s:]*` + amt,
		},
		Anchors: []string{"realized gain"},
	},
	{
		Canonical: "unrealized_gain_loss_period", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Unrealized Gain/(Loss)", "Unrealized G/(L)", "Change in Unrealized"},
		Patterns: []string{
			`unrealized\s+gain/?\(?loss\)?[\s:]*` + amt,
			`change\s+in\s+unrealized[\s:]*` + amt,
		},
		Anchors: []string{"unrealized gain", "change in unrealized"},
	},
	{
		Canonical: "total_commitment", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Total Commitment", "Committed Capital", "Commitment"},
		Patterns: []string{
			`total\s+commitment[\s:]*` + amt,
			`committed\s+capital[\s:]*` + amt,
			`commitment\s+amount[\s:]*` + amt,
		},
		Anchors: []string{"total commitment", "committed capital"},
	},
	{
		Canonical: "drawn_commitment", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Drawn Commitment", "Called Commitment", "Paid-In Capital", "Cumulative Contributions"},
		Patterns: []string{
			`drawn\s+commitment[\s:]*` + amt,
			`called\s+commitment[\s:]*` + amt,
			`cumulative\s+contributions[\s:]*` + amt,
		},
		Anchors: []string{"drawn commitment", "called commitment"},
	},
	{
		Canonical: "unfunded_commitment", Kind: KindMoney, DocTypes: casQR,
		Synonyms: []string{"Unfunded Commitment", "Remaining Commitment", "Undrawn"},
		Patterns: []string{
			`unfunded\s+commitment[\s:]*` + amt,
			`remaining\s+commitment[\s:]*` + amt,
			`undrawn\s+commitment[\s:]*` + amt,
		},
		Anchors: []string{"unfunded commitment", "remaining commitment"},
	},
	{
		Canonical: "ownership_pct", Kind: KindPercent, DocTypes: casQR,
		Synonyms: []string{"Ownership %", "Interest %", "Percentage Interest"},
		Patterns: []string{
			`ownership(?:\s+percentage)?[\s:]*` + pct,
			`percentage\s+interest[\s:]*` + pct,
		},
		Anchors: []string{"ownership percentage"},
	},
	{
		Canonical: "management_fee_rate", Kind: KindPercent, DocTypes: casQR,
		Synonyms: []string{"Management Fee Rate", "Fee Rate"},
		Patterns: []string{
			`management\s+fee\s+rate[\s:]*` + pct,
			`fee\s+rate[\s:]*` + pct,
		},
	},
	{
		Canonical: "as_of_date", Kind: KindDate, Required: true,
		Synonyms: []string{"As of Date", "Statement Date", "Reporting Date", "Period End", "Date"},
		Patterns: []string{
			`as\s+of[\s:]*` + dat,
			`statement\s+date[\s:]*` + dat,
			`reporting\s+date[\s:]*` + dat,
			`period\s+end(?:ing)?[\s:]*` + dat,
			`quarter\s+end(?:ing)?[\s:]*` + dat,
		},
		Anchors: []string{"as of", "statement date"},
	},
	{
		Canonical: "irr_net", Kind: KindPercent, DocTypes: []DocType{DocTypeQuarterlyReport},
		Synonyms: []string{"Net IRR", "IRR (Net)", "IRR"},
		Patterns: []string{
			`net\s+irr[\s:]*` + pct,
			`irr\s*\(net\)[\s:]*` + pct,
			`irr[\s:]*` + pct,
		},
	},
	{
		Canonical: "moic_net", Kind: KindRatio, DocTypes: []DocType{DocTypeQuarterlyReport},
		Synonyms: []string{"Net MOIC", "MOIC", "Multiple on Invested Capital"},
		Patterns: []string{
			`(?:net\s+)?moic[\s:]*(\d+(?:[.,]\d+)?)\s*x?`,
			`multiple\s+on\s+invested\s+capital[\s:]*(\d+(?:[.,]\d+)?)\s*x?`,
		},
	},
	{
		Canonical: "tvpi", Kind: KindRatio, DocTypes: []DocType{DocTypeQuarterlyReport},
		Synonyms: []string{"TVPI", "Total Value to Paid-In"},
		Patterns: []string{`tvpi[\s:]*(\d+(?:[.,]\d+)?)\s*x?`},
	},
	{
		Canonical: "dpi", Kind: KindRatio, DocTypes: []DocType{DocTypeQuarterlyReport},
		Synonyms: []string{"DPI", "Distributed to Paid-In"},
		Patterns: []string{`dpi[\s:]*(\d+(?:[.,]\d+)?)\s*x?`},
	},
	{
		Canonical: "rvpi", Kind: KindRatio, DocTypes: []DocType{DocTypeQuarterlyReport},
		Synonyms: []string{"RVPI", "Residual Value to Paid-In"},
		Patterns: []string{`rvpi[\s:]*(\d+(?:[.,]\d+)?)\s*x?`},
	},
	{
		Canonical: "call_amount", Kind: KindMoney, DocTypes: []DocType{DocTypeCapitalCallNotice}, Required: true,
		Synonyms: []string{"Call Amount", "Amount Due", "Capital Call"},
		Patterns: []string{
			`call\s+amount[\s:]*` + amt,
			`amount\s+due[\s:]*` + amt,
			`capital\s+call(?:\s+#?\d+)?[\s:]*` + amt,
		},
		Anchors: []string{"amount due", "call amount"},
	},
	{
		Canonical: "due_date", Kind: KindDate, DocTypes: []DocType{DocTypeCapitalCallNotice}, Required: true,
		Synonyms: []string{"Due Date", "Payment Due"},
		Patterns: []string{
			`due\s+date[\s:]*` + dat,
			`payment\s+due(?:\s+by)?[\s:]*` + dat,
		},
	},
	{
		Canonical: "distribution_amount", Kind: KindMoney, DocTypes: []DocType{DocTypeDistributionNotice}, Required: true,
		Synonyms: []string{"Distribution Amount", "Total Distribution", "Amount Payable"},
		Patterns: []string{
			`distribution\s+amount[\s:]*` + amt,
			`total\s+distribution[\s:]*` + amt,
			`amount\s+payable[\s:]*` + amt,
		},
		Anchors: []string{"distribution amount"},
	},
	{
		Canonical: "payment_date", Kind: KindDate, DocTypes: []DocType{DocTypeDistributionNotice}, Required: true,
		Synonyms: []string{"Payment Date", "Value Date"},
		Patterns: []string{
			`payment\s+date[\s:]*` + dat,
			`value\s+date[\s:]*` + dat,
		},
	},
}

// BuiltinLibrary returns the compiled default field library.
func BuiltinLibrary() (*FieldLibrary, error) {
	specs := make([]FieldSpec, len(builtinSpecs))
	copy(specs, builtinSpecs)
	return NewFieldLibrary(specs)
}
