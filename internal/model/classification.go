package model

// ClassificationResult is the engine's structured output for one transaction.
// It is ephemeral: the engine persists it by copying fields onto the
// Transaction record.
type ClassificationResult struct {
	Category      string
	ScheduleCLine string
	Reasoning     string
	QuickLabels   []string // 3-4 one-click label suggestions
	Confidence    float64  // 0-1
	IsMeal        bool
	IsTravel      bool
}

// DefaultDeductionPct returns the deduction percent the engine writes when a
// transaction has no explicit percent yet: 50 for meals outside of travel,
// 100 otherwise.
func (r *ClassificationResult) DefaultDeductionPct() float64 {
	if r.IsMeal && !r.IsTravel {
		return 50
	}
	return 100
}
