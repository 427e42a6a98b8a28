// Package policy compiles a natural-language copytrading policy and a
// follower's fixed profile into deterministic runtime bounds.
//
// Text can only tighten the profile. Numeric overrides that ask for more
// than the profile allows are clamped to the profile cap and reported in
// CompiledPolicy.Clamped.
package policy

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Fixed substring triggers, matched against the normalized text.
var (
	skipAttestationTriggers = []string{"skip attestation", "without attestation"}
	skipSignalHashTriggers  = []string{"skip signal hash", "without signal hash"}
	anySymbolTriggers       = []string{"allow any symbol"}
	ignoreDenylistTriggers  = []string{"ignore denylist"}
	noSharingTriggers       = []string{"disable sharing", "no sharing"}
)

var (
	notionalPattern = regexp.MustCompile(`notional(?: cap)?(?: of)? \$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
	leveragePattern = regexp.MustCompile(`(?:^|[^0-9.])([0-9]+(?:\.[0-9]+)?)x\b`)
	slippagePattern = regexp.MustCompile(`(?:^|[^0-9.])([0-9]+(?:\.[0-9]+)?) ?bps\b`)
)

// Bound names used in Clamped and in policy rejections.
const (
	BoundNotional = "max_notional_usd"
	BoundLeverage = "max_leverage"
	BoundSlippage = "max_slippage_bps"
)

// ClampedBound records a text override that asked for more than the
// profile allows.
type ClampedBound struct {
	Bound     string          `json:"bound"`
	Requested decimal.Decimal `json:"requested"`
	Applied   decimal.Decimal `json:"applied"`
}

// CompiledPolicy is the deterministic form of a policy text under a profile.
type CompiledPolicy struct {
	NormalizedPolicy          string          `json:"normalized_policy"`
	RequiresWalletAttestation bool            `json:"requires_wallet_attestation"`
	RequiresSignalHash        bool            `json:"requires_signal_hash"`
	EnforceSymbolAllowlist    bool            `json:"enforce_symbol_allowlist"`
	EnforceSymbolDenylist     bool            `json:"enforce_symbol_denylist"`
	AllowInformationSharing   bool            `json:"allow_information_sharing"`
	MaxNotionalUSD            decimal.Decimal `json:"max_notional_usd"`
	MaxLeverage               decimal.Decimal `json:"max_leverage"`
	MaxSlippageBps            decimal.Decimal `json:"max_slippage_bps"`
	SymbolAllowlist           []string        `json:"symbol_allowlist"`
	SymbolDenylist            []string        `json:"symbol_denylist"`
	PolicyHash                string          `json:"policy_hash"`
	Clamped                   []ClampedBound  `json:"clamped,omitempty"`
}

// seed is everything the policy hash covers. Clamped is derivable from the
// text and profile so it is left out.
type seed struct {
	NormalizedPolicy string   `json:"normalized_policy"`
	Gates            gates    `json:"gates"`
	Caps             caps     `json:"caps"`
	SymbolAllowlist  []string `json:"symbol_allowlist"`
	SymbolDenylist   []string `json:"symbol_denylist"`
}

type gates struct {
	RequiresWalletAttestation bool `json:"requires_wallet_attestation"`
	RequiresSignalHash        bool `json:"requires_signal_hash"`
	EnforceSymbolAllowlist    bool `json:"enforce_symbol_allowlist"`
	EnforceSymbolDenylist     bool `json:"enforce_symbol_denylist"`
	AllowInformationSharing   bool `json:"allow_information_sharing"`
}

type caps struct {
	MaxNotionalUSD decimal.Decimal `json:"max_notional_usd"`
	MaxLeverage    decimal.Decimal `json:"max_leverage"`
	MaxSlippageBps decimal.Decimal `json:"max_slippage_bps"`
}

// Compiler compiles policies. The zero value is not usable; use NewCompiler.
type Compiler struct {
	logger *slog.Logger
}

// NewCompiler returns a compiler logging through logger, or through the
// default logger when nil.
func NewCompiler(logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{logger: logger.With("component", "policy_compiler")}
}

var defaultCompiler = NewCompiler(nil)

// Compile compiles text under profile with the default compiler.
func Compile(text string, profile contracts.CopyTradingInitializationProfile) (*CompiledPolicy, error) {
	return defaultCompiler.Compile(context.Background(), text, profile)
}

// Compile validates the inputs, derives gates and caps, and hashes the
// result. The same (text, profile) pair always yields the same PolicyHash.
func (c *Compiler) Compile(ctx context.Context, text string, profile contracts.CopyTradingInitializationProfile) (*CompiledPolicy, error) {
	if strings.TrimSpace(text) == "" {
		return nil, contracts.NewValidationError(contracts.KindEmptyField, "natural_language_policy", "")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	normalized := Normalize(text)
	allow := upperAll(profile.SymbolAllowlist)
	deny := upperAll(profile.SymbolDenylist)

	cp := &CompiledPolicy{
		NormalizedPolicy:          normalized,
		RequiresWalletAttestation: !containsAny(normalized, skipAttestationTriggers),
		RequiresSignalHash:        !containsAny(normalized, skipSignalHashTriggers),
		EnforceSymbolAllowlist:    len(allow) > 0 && !containsAny(normalized, anySymbolTriggers),
		EnforceSymbolDenylist:     len(deny) > 0 && !containsAny(normalized, ignoreDenylistTriggers),
		AllowInformationSharing:   profile.InformationSharingScope != contracts.ScopeNone && !containsAny(normalized, noSharingTriggers),
		SymbolAllowlist:           allow,
		SymbolDenylist:            deny,
	}

	cp.MaxNotionalUSD = cp.tighten(BoundNotional, profile.PerTradeNotionalCapUSD, extract(notionalPattern, normalized))
	cp.MaxLeverage = cp.tighten(BoundLeverage, profile.MaxLeverage, extract(leveragePattern, normalized))
	cp.MaxSlippageBps = cp.tighten(BoundSlippage, profile.MaxSlippageBps, extract(slippagePattern, normalized))

	for _, cb := range cp.Clamped {
		c.logger.WarnContext(ctx, "policy override clamped to profile cap",
			"bound", cb.Bound,
			"requested", cb.Requested.String(),
			"applied", cb.Applied.String(),
		)
	}

	h, err := cp.Hash()
	if err != nil {
		return nil, err
	}
	cp.PolicyHash = h
	return cp, nil
}

// Hash recomputes the policy hash from the compiled fields.
func (cp *CompiledPolicy) Hash() (string, error) {
	s := seed{
		NormalizedPolicy: cp.NormalizedPolicy,
		Gates: gates{
			RequiresWalletAttestation: cp.RequiresWalletAttestation,
			RequiresSignalHash:        cp.RequiresSignalHash,
			EnforceSymbolAllowlist:    cp.EnforceSymbolAllowlist,
			EnforceSymbolDenylist:     cp.EnforceSymbolDenylist,
			AllowInformationSharing:   cp.AllowInformationSharing,
		},
		Caps: caps{
			MaxNotionalUSD: cp.MaxNotionalUSD,
			MaxLeverage:    cp.MaxLeverage,
			MaxSlippageBps: cp.MaxSlippageBps,
		},
		SymbolAllowlist: nonNil(cp.SymbolAllowlist),
		SymbolDenylist:  nonNil(cp.SymbolDenylist),
	}
	h, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return "", &contracts.SerializationError{Artifact: "compiled_policy", Err: err}
	}
	return h, nil
}

// Validate checks that the stored hash matches the compiled fields.
func (cp *CompiledPolicy) Validate() error {
	if err := contracts.ValidateDigest("policy_hash", cp.PolicyHash); err != nil {
		return err
	}
	want, err := cp.Hash()
	if err != nil {
		return err
	}
	if want != cp.PolicyHash {
		return contracts.NewValidationError(contracts.KindInvalidValue, "policy_hash", "does not match compiled bounds")
	}
	return nil
}

// SymbolAllowed reports whether symbol passes the enforced lists. symbol
// must already be upper-cased.
func (cp *CompiledPolicy) SymbolAllowed(symbol string) (bool, string) {
	if cp.EnforceSymbolAllowlist && !contains(cp.SymbolAllowlist, symbol) {
		return false, "symbol is not in the allowlist"
	}
	if cp.EnforceSymbolDenylist && contains(cp.SymbolDenylist, symbol) {
		return false, "symbol is in the denylist"
	}
	return true, ""
}

// Checks snapshots the compiled bounds for a receipt.
func (cp *CompiledPolicy) Checks(realizedSlippageBps decimal.Decimal) contracts.CopytradeChecks {
	return contracts.CopytradeChecks{
		PolicyHash:                cp.PolicyHash,
		RequiresWalletAttestation: cp.RequiresWalletAttestation,
		RequiresSignalHash:        cp.RequiresSignalHash,
		EnforceSymbolAllowlist:    cp.EnforceSymbolAllowlist,
		EnforceSymbolDenylist:     cp.EnforceSymbolDenylist,
		AllowInformationSharing:   cp.AllowInformationSharing,
		MaxNotionalUSD:            cp.MaxNotionalUSD,
		MaxLeverage:               cp.MaxLeverage,
		MaxSlippageBps:            cp.MaxSlippageBps,
		RealizedSlippageBps:       realizedSlippageBps,
	}
}

// Normalize applies NFC, lower-cases, and collapses whitespace to single
// spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(text))), " ")
}

// tighten combines an optional override with the profile cap by min().
// Non-positive overrides are ignored.
func (cp *CompiledPolicy) tighten(bound string, profileCap decimal.Decimal, override *decimal.Decimal) decimal.Decimal {
	if override == nil || !override.IsPositive() {
		return profileCap
	}
	if override.GreaterThan(profileCap) {
		cp.Clamped = append(cp.Clamped, ClampedBound{Bound: bound, Requested: *override, Applied: profileCap})
		return profileCap
	}
	return *override
}

// extract returns the smallest positive value any match of re names, so a
// text mentioning several caps resolves to the tightest one.
func extract(re *regexp.Regexp, text string) *decimal.Decimal {
	var smallest *decimal.Decimal
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
		if err != nil || !d.IsPositive() {
			continue
		}
		if smallest == nil || d.LessThan(*smallest) {
			smallest = &d
		}
	}
	return smallest
}

func containsAny(text string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
