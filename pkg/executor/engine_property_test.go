//go:build property
// +build property

package executor_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
)

// Property: identical requests give identical decision hashes and the fills
// always sum to the rounded quantity.
func TestDecisionHashDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	eng := newEngine(executor.Config{})

	properties.Property("decision hash is stable", prop.ForAll(
		func(notionalCents, priceCents int64, sell bool) bool {
			req := baseRequest()
			req.Notional = decimal.New(notionalCents, -2)
			req.PriceRef = decimal.New(priceCents, -2)
			if sell {
				req.Side = "sell"
			}
			a, err1 := eng.Execute(context.Background(), req, executor.ExecutionContext{})
			b, err2 := eng.Execute(context.Background(), req, executor.ExecutionContext{})
			if err1 != nil || err2 != nil {
				// Dust orders are rejected the same way both times.
				return err1 != nil && err2 != nil && executor.KindOf(err1) == executor.KindOf(err2)
			}
			want := req.Notional.Div(req.PriceRef).Round(executor.QuantityScale)
			return a.DecisionHash == b.DecisionHash && a.TotalQuantity().Equal(want)
		},
		gen.Int64Range(1, 100_000_000),
		gen.Int64Range(1, 10_000_000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
