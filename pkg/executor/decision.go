package executor

import (
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// decisionSeed is every input that can change an execution's economic
// outcome. Timestamps and the live submission ref are not part of it.
type decisionSeed struct {
	IntentID              string           `json:"intent_id"`
	Mode                  string           `json:"mode"`
	Symbol                string           `json:"symbol"`
	Side                  string           `json:"side"`
	Notional              decimal.Decimal  `json:"notional"`
	PriceRef              decimal.Decimal  `json:"price_ref"`
	Leverage              decimal.Decimal  `json:"leverage"`
	MarketContextHash     string           `json:"market_context_hash"`
	RiskLimits            map[string]any   `json:"risk_limits"`
	SourceSignalHash      string           `json:"source_signal_hash"`
	WalletAttestationHash string           `json:"wallet_attestation_hash"`
	PolicyHash            string           `json:"policy_hash"`
	Fills                 []contracts.Fill `json:"fills"`
}

// decisionHash hashes the seed for a validated request.
func decisionHash(v validated, signalHash, attestationHash, policyHash string, fills []contracts.Fill) (string, error) {
	limits := v.riskLimits
	if limits == nil {
		limits = map[string]any{}
	}
	s := decisionSeed{
		IntentID:              v.intentID,
		Mode:                  string(v.mode),
		Symbol:                v.symbol,
		Side:                  string(v.side),
		Notional:              v.notional,
		PriceRef:              v.priceRef,
		Leverage:              v.leverage,
		MarketContextHash:     v.marketContextHash,
		RiskLimits:            limits,
		SourceSignalHash:      signalHash,
		WalletAttestationHash: attestationHash,
		PolicyHash:            policyHash,
		Fills:                 fills,
	}
	h, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return "", &contracts.SerializationError{Artifact: "decision_seed", Err: err}
	}
	return h, nil
}
