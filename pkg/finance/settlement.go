package finance

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// MaxFeeBps caps the revenue-share fee rate at 100%.
const MaxFeeBps = 10000

var bpsDenominator = decimal.NewFromInt(MaxFeeBps)

// BuildSettlement normalizes each split to cents, totals them and returns
// a validated settlement receipt with a fresh settlement id.
func BuildSettlement(intentID, receiptID string, splits []contracts.ProviderSplit, settledAt time.Time) (contracts.RevenueShareSettlementReceipt, error) {
	normalized := make([]contracts.ProviderSplit, len(splits))
	pnl := decimal.Zero
	fees := decimal.Zero
	for i, s := range splits {
		normalized[i] = contracts.ProviderSplit{
			ProviderID:  s.ProviderID,
			GrossFeeUSD: RoundUSD(s.GrossFeeUSD),
			PnLShareUSD: RoundUSD(s.PnLShareUSD),
		}
		pnl = pnl.Add(normalized[i].PnLShareUSD)
		fees = fees.Add(normalized[i].GrossFeeUSD)
	}

	settlement := contracts.RevenueShareSettlementReceipt{
		SettlementID:   uuid.New(),
		IntentID:       intentID,
		ReceiptID:      receiptID,
		ProviderSplits: normalized,
		TotalPnLUSD:    pnl,
		TotalFeeUSD:    fees,
		SettledAt:      settledAt.UTC(),
	}
	if err := settlement.Validate(); err != nil {
		return contracts.RevenueShareSettlementReceipt{}, err
	}
	return settlement, nil
}

// Allocation is one provider's weight in a copied trade.
type Allocation struct {
	ProviderID string
	Weight     decimal.Decimal
}

// AllocateRevenueShare splits mirrored PnL across providers by weight and
// charges feeBps on each positive share. Rounding residue goes to the
// provider with the largest weight so the shares sum to the rounded PnL.
func AllocateRevenueShare(mirroredPnLUSD decimal.Decimal, feeBps int64, allocations []Allocation) ([]contracts.ProviderSplit, error) {
	if len(allocations) == 0 {
		return nil, errors.New("at least one allocation is required")
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return nil, fmt.Errorf("fee bps %d out of range [0, %d]", feeBps, MaxFeeBps)
	}

	totalWeight := decimal.Zero
	seen := make(map[string]struct{}, len(allocations))
	for i, a := range allocations {
		if a.ProviderID == "" {
			return nil, fmt.Errorf("allocations[%d]: provider id is required", i)
		}
		if _, dup := seen[a.ProviderID]; dup {
			return nil, fmt.Errorf("allocations[%d]: duplicate provider %s", i, a.ProviderID)
		}
		seen[a.ProviderID] = struct{}{}
		if !a.Weight.IsPositive() {
			return nil, fmt.Errorf("allocations[%d]: weight must be positive", i)
		}
		totalWeight = totalWeight.Add(a.Weight)
	}

	ordered := append([]Allocation(nil), allocations...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Weight.GreaterThan(ordered[j].Weight)
	})

	pnl := RoundUSD(mirroredPnLUSD)
	rate := decimal.NewFromInt(feeBps).Div(bpsDenominator)
	splits := make([]contracts.ProviderSplit, len(ordered))
	assigned := decimal.Zero
	for i, a := range ordered {
		share := RoundUSD(pnl.Mul(a.Weight).Div(totalWeight))
		splits[i] = contracts.ProviderSplit{ProviderID: a.ProviderID, PnLShareUSD: share}
		assigned = assigned.Add(share)
	}
	splits[0].PnLShareUSD = splits[0].PnLShareUSD.Add(pnl.Sub(assigned))

	for i := range splits {
		fee := decimal.Zero
		if splits[i].PnLShareUSD.IsPositive() {
			fee = RoundUSD(splits[i].PnLShareUSD.Mul(rate))
		}
		splits[i].GrossFeeUSD = fee
	}
	return splits, nil
}
