package executor

import (
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Fill synthesis is part of the hashed contract; changing any constant
// here changes every decision hash.
const (
	QuantityScale = 8
	SlippageScale = 4
)

var (
	firstFillShare = decimal.RequireFromString("0.6")
	bpsPerUnit     = decimal.NewFromInt(10000)

	buyMultipliers  = [2]decimal.Decimal{decimal.RequireFromString("1.0005"), decimal.RequireFromString("1.0010")}
	sellMultipliers = [2]decimal.Decimal{decimal.RequireFromString("0.9995"), decimal.RequireFromString("0.9990")}

	// DefaultMaxSlippageBps applies when a compiled policy carries no cap.
	DefaultMaxSlippageBps = decimal.NewFromInt(25)
)

// SynthesizeFills splits notional/priceRef into a 60/40 pair of fills
// priced progressively away from priceRef in the trade's direction.
func SynthesizeFills(side contracts.Side, notional, priceRef decimal.Decimal) []contracts.Fill {
	qty := notional.Div(priceRef).Round(QuantityScale)
	first := qty.Mul(firstFillShare).Round(QuantityScale)
	second := qty.Sub(first)

	mult := buyMultipliers
	if side == contracts.SideSell {
		mult = sellMultipliers
	}
	return []contracts.Fill{
		{Quantity: first, Price: priceRef.Mul(mult[0])},
		{Quantity: second, Price: priceRef.Mul(mult[1])},
	}
}

// VWAP returns the volume-weighted average fill price.
func VWAP(fills []contracts.Fill) decimal.Decimal {
	qty, value := decimal.Zero, decimal.Zero
	for _, f := range fills {
		qty = qty.Add(f.Quantity)
		value = value.Add(f.Quantity.Mul(f.Price))
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return value.Div(qty)
}

// RealizedSlippageBps is |VWAP - priceRef| / priceRef in basis points,
// rounded to SlippageScale places.
func RealizedSlippageBps(fills []contracts.Fill, priceRef decimal.Decimal) decimal.Decimal {
	if !priceRef.IsPositive() {
		return decimal.Zero
	}
	return VWAP(fills).Sub(priceRef).Abs().Div(priceRef).Mul(bpsPerUnit).Round(SlippageScale)
}
