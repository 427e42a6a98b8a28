// Package contractstest builds valid trade artifacts for tests in other
// packages.
package contractstest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Epoch is the fixed clock used by fixtures.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Digest returns a deterministic 64-hex digest derived from label.
func Digest(label string) string {
	return canonicalize.HashBytes([]byte(label))
}

// Intent returns a valid intent with a fixed identifier.
func Intent() contracts.Intent {
	return contracts.Intent{
		IntentID:          uuid.MustParse("7b0c2a52-3f1e-4d55-9a43-0f3d0c7f1a10"),
		AgentID:           "agent-1",
		UserID:            "user-1",
		Strategy:          map[string]any{"name": "momentum", "window": 14},
		RiskLimits:        map[string]any{"max_drawdown_pct": 5},
		MarketContextHash: Digest("market-context"),
		CreatedAt:         Epoch,
	}
}

// Receipt returns a valid paper receipt bound to Intent().
func Receipt() contracts.ExecutionReceipt {
	decision := Digest("decision")
	return contracts.ExecutionReceipt{
		ReceiptID: contracts.ReceiptIDFromDecisionHash(decision),
		IntentID:  Intent().IntentID.String(),
		Mode:      contracts.ModePaper,
		Symbol:    "BTC-USD",
		Side:      contracts.SideBuy,
		Notional:  decimal.RequireFromString("1000"),
		PriceRef:  decimal.RequireFromString("50000"),
		Leverage:  decimal.NewFromInt(1),
		SimulatedFills: []contracts.Fill{
			{Quantity: decimal.RequireFromString("0.012"), Price: decimal.RequireFromString("50025")},
			{Quantity: decimal.RequireFromString("0.008"), Price: decimal.RequireFromString("50050")},
		},
		DecisionHash:     decision,
		SourceSignalHash: Digest("signal"),
		CreatedAt:        Epoch,
	}
}

// Verification returns a record for Receipt() with the given status.
func Verification(status contracts.VerificationStatus, at time.Time) contracts.VerificationRecord {
	return contracts.VerificationRecord{
		VerificationID: uuid.New(),
		ReceiptID:      Receipt().ReceiptID,
		Backend:        contracts.BackendEigenCloudPrimary,
		ProofRef:       "proof-" + string(status),
		Status:         status,
		VerifiedAt:     at.UTC(),
	}
}

// Settlement returns a valid two-provider settlement for Receipt().
func Settlement() contracts.RevenueShareSettlementReceipt {
	return contracts.RevenueShareSettlementReceipt{
		SettlementID: uuid.MustParse("0d6f6d4e-8a7b-4c1e-b2a9-3e5f7c9d1b20"),
		IntentID:     Intent().IntentID.String(),
		ReceiptID:    Receipt().ReceiptID,
		ProviderSplits: []contracts.ProviderSplit{
			{ProviderID: "provider-a", GrossFeeUSD: decimal.RequireFromString("1.50"), PnLShareUSD: decimal.RequireFromString("12.25")},
			{ProviderID: "provider-b", GrossFeeUSD: decimal.RequireFromString("0.75"), PnLShareUSD: decimal.RequireFromString("6.10")},
		},
		TotalPnLUSD: decimal.RequireFromString("18.35"),
		TotalFeeUSD: decimal.RequireFromString("2.25"),
		SettledAt:   Epoch.Add(time.Hour),
	}
}

// Profile returns a valid copytrading profile.
func Profile() contracts.CopyTradingInitializationProfile {
	return contracts.CopyTradingInitializationProfile{
		MaxAllocationUSD:        decimal.NewFromInt(10000),
		PerTradeNotionalCapUSD:  decimal.NewFromInt(2000),
		MaxLeverage:             decimal.NewFromInt(3),
		SymbolAllowlist:         []string{"BTC-USD", "ETH-USD"},
		SymbolDenylist:          []string{"DOGE-USD"},
		MaxSlippageBps:          decimal.NewFromInt(25),
		InformationSharingScope: contracts.ScopeSignalsOnly,
	}
}

// AuditRecord returns a record built from Intent(), Receipt() and the
// optional verification.
func AuditRecord(v *contracts.VerificationRecord) contracts.IntentAuditRecord {
	rec, err := contracts.NewIntentAuditRecord(Intent(), Receipt(), v, "workspace/"+Intent().IntentID.String(), Epoch)
	if err != nil {
		panic(err)
	}
	return rec
}
