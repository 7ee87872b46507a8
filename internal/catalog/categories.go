// Package catalog holds the static reference table mapping expense categories
// to IRS Schedule C lines. This table is the only tax-law knowledge the
// system encodes; everything downstream treats it as opaque reference data.
package catalog

import "strings"

// Category is one row of the Schedule C reference table.
type Category struct {
	Name          string
	ScheduleCLine string
	Description   string
	IsMeal        bool
	IsTravel      bool
}

// categories is ordered the way Schedule C lays out its lines.
var categories = []Category{
	{Name: "Advertising", ScheduleCLine: "8", Description: "Marketing, ads, promotional materials"},
	{Name: "Car & Truck", ScheduleCLine: "9", Description: "Vehicle expenses for business use"},
	{Name: "Commissions & Fees", ScheduleCLine: "10", Description: "Sales commissions and referral fees"},
	{Name: "Contract Labor", ScheduleCLine: "11", Description: "Payments to independent contractors"},
	{Name: "Depreciation", ScheduleCLine: "13", Description: "Depreciation and section 179 deductions"},
	{Name: "Insurance", ScheduleCLine: "15", Description: "Business insurance other than health"},
	{Name: "Interest", ScheduleCLine: "16b", Description: "Business loan and credit card interest"},
	{Name: "Legal & Professional", ScheduleCLine: "17", Description: "Lawyers, accountants, consultants"},
	{Name: "Office Expense", ScheduleCLine: "18", Description: "General office costs and postage"},
	{Name: "Rent & Lease", ScheduleCLine: "20b", Description: "Rent on business property or equipment"},
	{Name: "Repairs & Maintenance", ScheduleCLine: "21", Description: "Repairs to business property"},
	{Name: "Supplies", ScheduleCLine: "22", Description: "Consumable supplies and materials"},
	{Name: "Taxes & Licenses", ScheduleCLine: "23", Description: "Business taxes, permits, licenses"},
	{Name: "Travel", ScheduleCLine: "24a", Description: "Business travel away from home", IsTravel: true},
	{Name: "Meals", ScheduleCLine: "24b", Description: "Business meals with clients or while traveling", IsMeal: true},
	{Name: "Utilities", ScheduleCLine: "25", Description: "Phone, internet, electricity for business"},
	{Name: "Wages", ScheduleCLine: "26", Description: "Employee wages and salaries"},
	{Name: "Software & Subscriptions", ScheduleCLine: "27a", Description: "Business software and online services"},
	{Name: "Education", ScheduleCLine: "27a", Description: "Courses, books, professional development"},
	{Name: "Other Expenses", ScheduleCLine: "27a", Description: "Deductible expenses not listed elsewhere"},
}

var byName = func() map[string]Category {
	m := make(map[string]Category, len(categories))
	for _, c := range categories {
		m[strings.ToLower(c.Name)] = c
	}
	return m
}()

// All returns the full category table in Schedule C order.
func All() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Lookup finds a category by name, case-insensitively.
func Lookup(name string) (Category, bool) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Names returns the category names in table order, for prompt construction.
func Names() []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names
}

// LineFor resolves a category name to its Schedule C line. Unknown categories
// land on the catch-all "27a" line rather than failing: the classifier is
// constrained to table names, but user edits are free text.
func LineFor(name string) string {
	if c, ok := Lookup(name); ok {
		return c.ScheduleCLine
	}
	return "27a"
}
