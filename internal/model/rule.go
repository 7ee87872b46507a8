package model

import "time"

// AutoSortRule records a user decision keyed by vendor fingerprint so it can
// be bulk-applied to matching pending transactions. There is exactly one
// logical rule per (owner, fingerprint); a later decision overwrites the
// earlier one.
type AutoSortRule struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	OwnerID           string
	VendorFingerprint string
	QuickLabel        string
	BusinessPurpose   string
	Category          string
	DeductionPct      *float64 // nil means "leave the transaction's percent alone"
	UseCount          int
}
