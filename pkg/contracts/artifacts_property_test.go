//go:build property
// +build property

package contracts_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts/contractstest"
)

// Property: Hash(r) == Hash(r) for any receipt, and any notional change
// changes the hash.
func TestReceiptHashDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("receipt hash is stable and notional-sensitive", prop.ForAll(
		func(cents int64, symbol string) bool {
			r := contractstest.Receipt()
			r.Notional = decimal.New(cents, -2)
			r.Symbol = symbol
			h1, err1 := r.Hash()
			h2, err2 := r.Hash()
			if err1 != nil || err2 != nil || h1 != h2 {
				return false
			}
			r.Notional = r.Notional.Add(decimal.New(1, -2))
			h3, err := r.Hash()
			return err == nil && h3 != h1
		},
		gen.Int64Range(1, 1_000_000_000),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

// Property: the chain hash depends on the signal hash.
func TestChainHashSignalSensitivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("distinct signal hashes give distinct chain hashes", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			ra := contractstest.AuditRecord(nil)
			ra.SignalHash = contractstest.Digest(a)
			rb := ra
			rb.SignalHash = contractstest.Digest(b)
			ha, err1 := ra.ComputeChainHash()
			hb, err2 := rb.ComputeChainHash()
			return err1 == nil && err2 == nil && ha != hb
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
