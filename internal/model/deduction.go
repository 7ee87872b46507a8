package model

import "time"

// Deduction is a calculator-originated entry (QBI, mileage, home office)
// independent of any imported transaction but folded into tax summaries.
// Deductions are annual by nature and never quarter-filtered.
type Deduction struct {
	CreatedAt  time.Time
	ID         string
	OwnerID    string
	Type       string // e.g. "mileage", "home_office", "qbi"
	Metadata   map[string]string
	Amount     float64
	TaxSavings float64
	TaxYear    int
}
