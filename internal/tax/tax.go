// Package tax computes India GST splits for invoice line amounts.
//
// Intrastate supply splits the rate into equal CGST and SGST halves, each
// amount rounded independently. Interstate supply carries the full rate as
// IGST. All amounts are rounded half-up to two decimal places immediately
// after each multiplication so invoice totals reproduce statutory figures
// cent for cent.
package tax

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Breakdown is the result of a GST calculation. Zero components are
// present with zero values so callers can persist every column.
type Breakdown struct {
	CGSTRate    decimal.Decimal
	CGSTAmount  decimal.Decimal
	SGSTRate    decimal.Decimal
	SGSTAmount  decimal.Decimal
	IGSTRate    decimal.Decimal
	IGSTAmount  decimal.Decimal
	TotalTax    decimal.Decimal
	TotalAmount decimal.Decimal
}

// Calculate splits GST for a base amount at the given percentage rate.
// It is a pure function with no I/O.
func Calculate(base, rate decimal.Decimal, interstate bool) Breakdown {
	zero := decimal.Zero
	if interstate {
		igst := roundMoney(base.Mul(rate).Div(hundred))
		return Breakdown{
			CGSTRate:    zero,
			CGSTAmount:  zero,
			SGSTRate:    zero,
			SGSTAmount:  zero,
			IGSTRate:    rate,
			IGSTAmount:  igst,
			TotalTax:    igst,
			TotalAmount: roundMoney(base.Add(igst)),
		}
	}
	halfRate := rate.Div(two)
	// Each half is computed and rounded on its own, not derived from a
	// single combined tax figure.
	cgst := roundMoney(base.Mul(halfRate).Div(hundred))
	sgst := roundMoney(base.Mul(halfRate).Div(hundred))
	total := cgst.Add(sgst)
	return Breakdown{
		CGSTRate:    halfRate,
		CGSTAmount:  cgst,
		SGSTRate:    halfRate,
		SGSTAmount:  sgst,
		IGSTRate:    zero,
		IGSTAmount:  zero,
		TotalTax:    total,
		TotalAmount: roundMoney(base.Add(total)),
	}
}

// IsInterstateSupply reports whether buyer and seller sit in different GST
// states. Missing state codes default to intrastate.
func IsInterstateSupply(branchStateCode, customerStateCode string) bool {
	b := strings.TrimSpace(branchStateCode)
	c := strings.TrimSpace(customerStateCode)
	if b == "" || c == "" {
		return false
	}
	return b != c
}

// roundMoney rounds half-up to two decimal places. decimal.Round rounds
// half away from zero, which matches half-up for the non-negative amounts
// handled here.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
