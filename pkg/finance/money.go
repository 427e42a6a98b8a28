// Package finance builds revenue-share settlements for copied trades.
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// USDScale is the number of decimal places settled USD amounts carry.
const USDScale = 2

// RoundUSD rounds half away from zero to cents.
func RoundUSD(d decimal.Decimal) decimal.Decimal {
	return d.Round(USDScale)
}

// ParseUSD parses a decimal string and rounds it to cents.
func ParseUSD(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid USD amount %q: %w", s, err)
	}
	return RoundUSD(d), nil
}

// SumUSD adds amounts after rounding each one, so the total matches what a
// reader re-adding the stored values gets.
func SumUSD(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(RoundUSD(a))
	}
	return total
}
