package tax

// Summary is the derived, never-stored report for one owner and window.
// JSON tags match the shapes the reporting API serves.
type Summary struct {
	CategoryBreakdown map[string]float64 `json:"categoryBreakdown"`
	LineBreakdown     map[string]float64 `json:"lineBreakdown"`

	GrossIncome   float64 `json:"grossIncome"`
	TotalExpenses float64 `json:"totalExpenses"`
	NetProfit     float64 `json:"netProfit"`

	SelfEmployment SelfEmploymentTax `json:"selfEmployment"`

	// EstimatedTax is the tax computed over the requested window as-is.
	// EstimatedAnnualTax annualizes it when a quarter filter is active;
	// the two are equal for a full-year summary.
	EstimatedTax              float64 `json:"estimatedTax"`
	EstimatedAnnualTax        float64 `json:"estimatedAnnualTax"`
	EstimatedQuarterlyPayment float64 `json:"estimatedQuarterlyPayment"`
	EffectiveTaxRate          float64 `json:"effectiveTaxRate"`

	// Quarter is 0 for a full-year summary, 1-4 otherwise.
	Quarter int `json:"quarter,omitempty"`
}

// SelfEmploymentTax breaks the SE computation into its IRS components.
// All zero when net profit is not positive.
type SelfEmploymentTax struct {
	NetEarnings    float64 `json:"netEarnings"`
	SocialSecurity float64 `json:"socialSecurity"`
	Medicare       float64 `json:"medicare"`
	Total          float64 `json:"total"`
	DeductibleHalf float64 `json:"deductibleHalf"`
}
