// Package tax folds finalized transactions and calculator-originated
// deductions into Schedule C-oriented summary figures: per-category and
// per-line breakdowns, self-employment tax, and estimated payments.
//
// All money arithmetic runs through shopspring/decimal; float64 crosses the
// boundary only at the edges (storage rows in, JSON summary out).
package tax

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/model"
)

// IRS self-employment tax constants. These are statutory rates, not yearly
// figures; the Social Security wage base changes yearly and comes from Config.
var (
	netEarningsFactor  = decimal.NewFromFloat(0.9235)
	socialSecurityRate = decimal.NewFromFloat(0.124)
	medicareRate       = decimal.NewFromFloat(0.029)
)

// Config carries the yearly figures the engine must not hardcode.
type Config struct {
	// WageBase is the Social Security wage base for the tax year
	// (e.g. 176100 for 2025). Zero or negative is a configuration error.
	WageBase float64
}

// Engine computes tax summaries. It holds no transaction state; every
// Summarize call recomputes from the rows it is handed so edits are always
// reflected.
type Engine struct {
	logger   *slog.Logger
	wageBase decimal.Decimal
}

// NewEngine validates the yearly configuration and returns an aggregation
// engine. A zero wage base fails here rather than producing silently wrong
// Social Security figures later.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.WageBase <= 0 {
		return nil, fmt.Errorf("%w: wage base must be positive, got %v", common.ErrInvalidConfig, cfg.WageBase)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:   logger,
		wageBase: decimal.NewFromFloat(cfg.WageBase),
	}, nil
}

// Summarize computes the TaxSummary for the given rows. Quarter 0 means the
// whole year; 1-4 restricts transactions to that calendar quarter, while
// deductions always count annually. A negative taxRate is a caller
// configuration error.
func (e *Engine) Summarize(transactions []model.Transaction, deductions []model.Deduction, taxRate float64, quarter int) (*Summary, error) {
	if taxRate < 0 {
		return nil, fmt.Errorf("%w: tax rate must not be negative, got %v", common.ErrInvalidConfig, taxRate)
	}
	if quarter < 0 || quarter > 4 {
		return nil, fmt.Errorf("%w: quarter must be 0-4, got %d", common.ErrInvalidConfig, quarter)
	}

	grossIncome := decimal.Zero
	transactionExpenses := decimal.Zero
	categoryBreakdown := map[string]decimal.Decimal{}
	lineBreakdown := map[string]decimal.Decimal{}

	for i := range transactions {
		txn := &transactions[i]
		if !txn.IsFinalized() {
			continue
		}
		if quarter != 0 && txn.Quarter() != quarter {
			continue
		}

		if txn.Kind == model.KindIncome {
			// Signed: a refund or clawback row carries a negative
			// amount and reduces gross income.
			grossIncome = grossIncome.Add(decimal.NewFromFloat(txn.Amount))
			continue
		}

		deductible := DeductibleAmount(txn)
		if deductible.IsZero() {
			continue
		}

		transactionExpenses = transactionExpenses.Add(deductible)
		if txn.Category != "" {
			categoryBreakdown[txn.Category] = categoryBreakdown[txn.Category].Add(deductible)
		}
		if txn.ScheduleCLine != "" {
			lineBreakdown[txn.ScheduleCLine] = lineBreakdown[txn.ScheduleCLine].Add(deductible)
		}
	}

	// Calculator deductions (mileage, home office, QBI) are annual by
	// nature and never quarter-filtered. They show up in the category
	// breakdown under their type, but carry no Schedule C line.
	deductionTotal := decimal.Zero
	for i := range deductions {
		d := &deductions[i]
		amount := decimal.NewFromFloat(d.Amount)
		deductionTotal = deductionTotal.Add(amount)
		categoryBreakdown[d.Type] = categoryBreakdown[d.Type].Add(amount)
	}

	totalExpenses := transactionExpenses.Add(deductionTotal)
	netProfit := grossIncome.Sub(totalExpenses)

	se := e.selfEmploymentTax(netProfit)

	// Income tax applies to net profit less the deductible half of SE tax.
	rate := decimal.NewFromFloat(taxRate)
	taxableIncome := netProfit.Sub(decimal.NewFromFloat(se.DeductibleHalf))
	if taxableIncome.IsNegative() {
		taxableIncome = decimal.Zero
	}
	windowTax := taxableIncome.Mul(rate).Add(decimal.NewFromFloat(se.Total)).Round(2)

	// With a quarter filter the window already covers one quarter, so the
	// window figure IS the quarterly payment; annualizing multiplies back
	// up. Over a full year the payment is a quarter of the annual tax.
	var annualTax, quarterlyPayment decimal.Decimal
	if quarter == 0 {
		annualTax = windowTax
		quarterlyPayment = windowTax.Div(decimal.NewFromInt(4)).Round(2)
	} else {
		annualTax = windowTax.Mul(decimal.NewFromInt(4))
		quarterlyPayment = windowTax
	}

	effectiveRate := decimal.Zero
	if grossIncome.IsPositive() {
		effectiveRate = windowTax.Div(grossIncome).Round(4)
	}

	summary := &Summary{
		CategoryBreakdown:         roundedMap(categoryBreakdown),
		LineBreakdown:             roundedMap(lineBreakdown),
		GrossIncome:               round2(grossIncome),
		TotalExpenses:             round2(totalExpenses),
		NetProfit:                 round2(netProfit),
		SelfEmployment:            se,
		EstimatedTax:              windowTax.InexactFloat64(),
		EstimatedAnnualTax:        round2(annualTax),
		EstimatedQuarterlyPayment: quarterlyPayment.InexactFloat64(),
		EffectiveTaxRate:          effectiveRate.InexactFloat64(),
		Quarter:                   quarter,
	}

	e.logger.Debug("computed tax summary",
		"quarter", quarter,
		"gross_income", summary.GrossIncome,
		"total_expenses", summary.TotalExpenses,
		"net_profit", summary.NetProfit,
		"se_tax", summary.SelfEmployment.Total)

	return summary, nil
}

// DeductibleAmount applies the Schedule C deductibility rules to one
// transaction: travel counts in full, meals at half after the business
// percent, everything else at the business percent. Personal rows and rows
// with a non-positive percent contribute nothing.
func DeductibleAmount(txn *model.Transaction) decimal.Decimal {
	if txn.Status == model.StatusPersonal || txn.DeductionPct <= 0 {
		return decimal.Zero
	}

	amount := decimal.NewFromFloat(txn.Amount).Abs()
	if txn.IsTravel {
		return amount
	}

	pct := decimal.NewFromFloat(txn.DeductionPct).Div(decimal.NewFromInt(100))
	if txn.IsMeal {
		return amount.Mul(pct).Div(decimal.NewFromInt(2))
	}
	return amount.Mul(pct)
}

func (e *Engine) selfEmploymentTax(netProfit decimal.Decimal) SelfEmploymentTax {
	if !netProfit.IsPositive() {
		return SelfEmploymentTax{}
	}

	netEarnings := netProfit.Mul(netEarningsFactor)

	ssBase := netEarnings
	if ssBase.GreaterThan(e.wageBase) {
		ssBase = e.wageBase
	}
	socialSecurity := ssBase.Mul(socialSecurityRate).Round(2)
	medicare := netEarnings.Mul(medicareRate).Round(2)
	total := socialSecurity.Add(medicare)

	return SelfEmploymentTax{
		NetEarnings:    round2(netEarnings),
		SocialSecurity: socialSecurity.InexactFloat64(),
		Medicare:       medicare.InexactFloat64(),
		Total:          total.InexactFloat64(),
		DeductibleHalf: round2(total.Div(decimal.NewFromInt(2))),
	}
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func roundedMap(in map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = round2(v)
	}
	return out
}
