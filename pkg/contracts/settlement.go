package contracts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProviderSplit attributes part of a copied trade's outcome to one signal
// provider.
type ProviderSplit struct {
	ProviderID  string          `json:"provider_id"`
	GrossFeeUSD decimal.Decimal `json:"gross_fee_usd"`
	PnLShareUSD decimal.Decimal `json:"pnl_share_usd"`
}

// RevenueShareSettlementReceipt records how a copied trade's PnL and fees
// were split across providers.
type RevenueShareSettlementReceipt struct {
	SettlementID   uuid.UUID       `json:"settlement_id"`
	IntentID       string          `json:"intent_id"`
	ReceiptID      string          `json:"receipt_id"`
	ProviderSplits []ProviderSplit `json:"provider_splits"`
	TotalPnLUSD    decimal.Decimal `json:"total_pnl_usd"`
	TotalFeeUSD    decimal.Decimal `json:"total_fee_usd"`
	SettledAt      time.Time       `json:"settled_at"`
}

func (s RevenueShareSettlementReceipt) Validate() error {
	if s.SettlementID == uuid.Nil {
		return nilIdentifier("settlement_id")
	}
	if strings.TrimSpace(s.IntentID) == "" {
		return emptyField("intent_id")
	}
	if strings.TrimSpace(s.ReceiptID) == "" {
		return emptyField("receipt_id")
	}
	if len(s.ProviderSplits) == 0 {
		return emptyField("provider_splits")
	}
	fees := decimal.Zero
	for i, p := range s.ProviderSplits {
		if strings.TrimSpace(p.ProviderID) == "" {
			return emptyField(fmt.Sprintf("provider_splits[%d].provider_id", i))
		}
		if p.GrossFeeUSD.IsNegative() {
			return invalidValue(fmt.Sprintf("provider_splits[%d].gross_fee_usd", i), "must not be negative")
		}
		fees = fees.Add(p.GrossFeeUSD)
	}
	if s.TotalFeeUSD.IsNegative() {
		return invalidValue("total_fee_usd", "must not be negative")
	}
	if !s.TotalFeeUSD.Equal(fees) {
		return invalidValue("total_fee_usd", fmt.Sprintf("must equal the sum of provider fees (%s)", fees))
	}
	if s.SettledAt.IsZero() {
		return emptyField("settled_at")
	}
	return nil
}

func (s RevenueShareSettlementReceipt) Hash() (string, error) {
	c := s
	c.SettledAt = c.SettledAt.UTC()
	return hashArtifact("settlement_receipt", c)
}
