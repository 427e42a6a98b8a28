package executor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Request is a single execution request as it arrives from the tool
// boundary. Enumerations are strings here and are parsed once by the engine.
type Request struct {
	IntentID              string                                      `json:"intent_id"`
	Mode                  string                                      `json:"mode,omitempty"`
	PaperLivePolicy       string                                      `json:"paper_live_policy,omitempty"`
	LivePolicyGate        *bool                                       `json:"live_policy_gate,omitempty"`
	Symbol                string                                      `json:"symbol"`
	Side                  string                                      `json:"side"`
	Notional              decimal.Decimal                             `json:"notional"`
	PriceRef              decimal.Decimal                             `json:"price_ref"`
	Leverage              decimal.NullDecimal                         `json:"leverage,omitempty"`
	MarketContextHash     string                                      `json:"market_context_hash,omitempty"`
	RiskLimits            map[string]any                              `json:"risk_limits,omitempty"`
	TradingEndpoint       string                                      `json:"trading_endpoint,omitempty"`
	VerificationEndpoint  string                                      `json:"verification_endpoint,omitempty"`
	SourceSignalHash      string                                      `json:"source_signal_hash,omitempty"`
	WalletAttestationHash string                                      `json:"wallet_attestation_hash,omitempty"`
	NaturalLanguagePolicy string                                      `json:"natural_language_policy,omitempty"`
	CopytradingProfile    *contracts.CopyTradingInitializationProfile `json:"copytrading_profile,omitempty"`
}

// ExecutionContext carries caller-level defaults that an explicit request
// field overrides.
type ExecutionContext struct {
	PaperLivePolicy string
	LivePolicyGate  bool
	UserID          string
	SessionID       string
}

// Order is what the engine hands a live venue after the decision hash is
// fixed.
type Order struct {
	ReceiptID    string
	DecisionHash string
	Symbol       string
	Side         contracts.Side
	Quantity     decimal.Decimal
	LimitPrice   decimal.Decimal
	Leverage     decimal.Decimal
	Endpoint     string
}

// Definitive venue outcomes. A Submit error wrapping neither is treated as
// ambiguous: the order may have reached the venue.
var (
	ErrOrderRejected = errors.New("order rejected by venue")
	ErrOrderNotSent  = errors.New("order not sent to venue")
)

// Venue submits live orders. The returned reference is recorded as the
// receipt's live submission ref.
type Venue interface {
	Submit(ctx context.Context, order Order) (string, error)
}
