package contracts

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CopyTradingInitializationProfile is the fixed numeric envelope a follower
// agrees to before any copied trade runs. A compiled policy may tighten it
// but never loosen it.
type CopyTradingInitializationProfile struct {
	MaxAllocationUSD        decimal.Decimal `json:"max_allocation_usd"`
	PerTradeNotionalCapUSD  decimal.Decimal `json:"per_trade_notional_cap_usd"`
	MaxLeverage             decimal.Decimal `json:"max_leverage"`
	SymbolAllowlist         []string        `json:"symbol_allowlist"`
	SymbolDenylist          []string        `json:"symbol_denylist"`
	MaxSlippageBps          decimal.Decimal `json:"max_slippage_bps"`
	InformationSharingScope SharingScope    `json:"information_sharing_scope"`
}

func (p CopyTradingInitializationProfile) Validate() error {
	if !p.MaxAllocationUSD.IsPositive() {
		return nonPositive("max_allocation_usd")
	}
	if !p.PerTradeNotionalCapUSD.IsPositive() {
		return nonPositive("per_trade_notional_cap_usd")
	}
	if !p.MaxLeverage.IsPositive() {
		return nonPositive("max_leverage")
	}
	for i, s := range p.SymbolAllowlist {
		if strings.TrimSpace(s) == "" {
			return emptyField(fmt.Sprintf("symbol_allowlist[%d]", i))
		}
	}
	for i, s := range p.SymbolDenylist {
		if strings.TrimSpace(s) == "" {
			return emptyField(fmt.Sprintf("symbol_denylist[%d]", i))
		}
	}
	if !p.MaxSlippageBps.IsPositive() {
		return nonPositive("max_slippage_bps")
	}
	if _, err := ParseSharingScope(string(p.InformationSharingScope)); err != nil {
		return invalidValue("information_sharing_scope", err.Error())
	}
	return nil
}

func (p CopyTradingInitializationProfile) Hash() (string, error) {
	c := p
	if c.SymbolAllowlist == nil {
		c.SymbolAllowlist = []string{}
	}
	if c.SymbolDenylist == nil {
		c.SymbolDenylist = []string{}
	}
	return hashArtifact("copytrading_profile", c)
}
