package policy_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts/contractstest"
	"github.com/Mindburn-Labs/tradetrust/pkg/policy"
)

func TestCompile_RejectsEmptyText(t *testing.T) {
	_, err := policy.Compile(" \n\t ", contractstest.Profile())
	var verr *contracts.ArtifactValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, contracts.KindEmptyField, verr.Kind)
	assert.Equal(t, "natural_language_policy", verr.Field)
}

func TestCompile_RejectsInvalidProfile(t *testing.T) {
	p := contractstest.Profile()
	p.MaxSlippageBps = decimal.Zero
	_, err := policy.Compile("follow the leader", p)
	var verr *contracts.ArtifactValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_slippage_bps", verr.Field)
}

func TestCompile_DefaultsToProfile(t *testing.T) {
	cp, err := policy.Compile("Follow   the\tLeader", contractstest.Profile())
	require.NoError(t, err)

	assert.Equal(t, "follow the leader", cp.NormalizedPolicy)
	assert.True(t, cp.RequiresWalletAttestation)
	assert.True(t, cp.RequiresSignalHash)
	assert.True(t, cp.EnforceSymbolAllowlist)
	assert.True(t, cp.EnforceSymbolDenylist)
	assert.True(t, cp.AllowInformationSharing)
	assert.True(t, cp.MaxNotionalUSD.Equal(decimal.NewFromInt(2000)))
	assert.True(t, cp.MaxLeverage.Equal(decimal.NewFromInt(3)))
	assert.True(t, cp.MaxSlippageBps.Equal(decimal.NewFromInt(25)))
	assert.Empty(t, cp.Clamped)
	assert.True(t, canonicalize.IsDigest(cp.PolicyHash))
	require.NoError(t, cp.Validate())
}

func TestCompile_Gates(t *testing.T) {
	tests := []struct {
		text  string
		check func(*testing.T, *policy.CompiledPolicy)
	}{
		{"skip attestation please", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.RequiresWalletAttestation) }},
		{"trade WITHOUT attestation", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.RequiresWalletAttestation) }},
		{"skip signal hash", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.RequiresSignalHash) }},
		{"without  signal   hash", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.RequiresSignalHash) }},
		{"allow any symbol", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.EnforceSymbolAllowlist) }},
		{"ignore denylist", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.EnforceSymbolDenylist) }},
		{"disable sharing", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.AllowInformationSharing) }},
		{"no sharing at all", func(t *testing.T, cp *policy.CompiledPolicy) { assert.False(t, cp.AllowInformationSharing) }},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cp, err := policy.Compile(tt.text, contractstest.Profile())
			require.NoError(t, err)
			tt.check(t, cp)
		})
	}
}

func TestCompile_ProfileDrivenGates(t *testing.T) {
	p := contractstest.Profile()
	p.SymbolAllowlist = nil
	p.SymbolDenylist = nil
	p.InformationSharingScope = contracts.ScopeNone

	cp, err := policy.Compile("share everything", p)
	require.NoError(t, err)
	assert.False(t, cp.EnforceSymbolAllowlist)
	assert.False(t, cp.EnforceSymbolDenylist)
	assert.False(t, cp.AllowInformationSharing)
}

func TestCompile_OverridesTighten(t *testing.T) {
	cp, err := policy.Compile("Notional cap of $1,500; max leverage 2x and slippage 10 bps", contractstest.Profile())
	require.NoError(t, err)
	assert.Equal(t, "1500", cp.MaxNotionalUSD.String())
	assert.Equal(t, "2", cp.MaxLeverage.String())
	assert.Equal(t, "10", cp.MaxSlippageBps.String())
	assert.Empty(t, cp.Clamped)
}

func TestCompile_LooserOverridesAreClampedAndLogged(t *testing.T) {
	var buf bytes.Buffer
	c := policy.NewCompiler(slog.New(slog.NewJSONHandler(&buf, nil)))

	cp, err := c.Compile(context.Background(), "notional $50000 leverage 10x slippage 100bps", contractstest.Profile())
	require.NoError(t, err)

	assert.True(t, cp.MaxNotionalUSD.Equal(decimal.NewFromInt(2000)))
	assert.True(t, cp.MaxLeverage.Equal(decimal.NewFromInt(3)))
	assert.True(t, cp.MaxSlippageBps.Equal(decimal.NewFromInt(25)))
	require.Len(t, cp.Clamped, 3)
	assert.Equal(t, policy.BoundNotional, cp.Clamped[0].Bound)
	assert.Equal(t, "50000", cp.Clamped[0].Requested.String())
	assert.Contains(t, buf.String(), "policy override clamped to profile cap")
	assert.Contains(t, buf.String(), `"bound":"max_leverage"`)
}

func TestCompile_NonPositiveOverridesIgnored(t *testing.T) {
	cp, err := policy.Compile("leverage 0x notional $0 slippage 0 bps", contractstest.Profile())
	require.NoError(t, err)
	assert.True(t, cp.MaxLeverage.Equal(decimal.NewFromInt(3)))
	assert.True(t, cp.MaxNotionalUSD.Equal(decimal.NewFromInt(2000)))
	assert.True(t, cp.MaxSlippageBps.Equal(decimal.NewFromInt(25)))
}

func TestCompile_SeveralMentionsResolveToTightest(t *testing.T) {
	text := "usually 10x but max leverage 2x; slippage 50 bps, 15 bps on thin books; notional $1,800 and notional cap of $900"
	cp, err := policy.Compile(text, contractstest.Profile())
	require.NoError(t, err)
	assert.Equal(t, "2", cp.MaxLeverage.String())
	assert.Equal(t, "15", cp.MaxSlippageBps.String())
	assert.Equal(t, "900", cp.MaxNotionalUSD.String())
	assert.Empty(t, cp.Clamped)

	cp, err = policy.Compile("leverage 0x then 2x", contractstest.Profile())
	require.NoError(t, err)
	assert.Equal(t, "2", cp.MaxLeverage.String())
}

func TestCompile_HashDeterministic(t *testing.T) {
	a, err := policy.Compile("max leverage 2x", contractstest.Profile())
	require.NoError(t, err)
	b, err := policy.Compile("  MAX   leverage 2x ", contractstest.Profile())
	require.NoError(t, err)
	assert.Equal(t, a.PolicyHash, b.PolicyHash)

	p := contractstest.Profile()
	p.SymbolDenylist = []string{"doge-usd"}
	c, err := policy.Compile("max leverage 2x", p)
	require.NoError(t, err)
	assert.Equal(t, a.PolicyHash, c.PolicyHash, "list entries are upper-cased before hashing")

	d, err := policy.Compile("max leverage 1x", contractstest.Profile())
	require.NoError(t, err)
	assert.NotEqual(t, a.PolicyHash, d.PolicyHash)
}

func TestCompile_NFCNormalization(t *testing.T) {
	// "é" precomposed vs decomposed.
	a, err := policy.Compile("caf\u00e9 strategy", contractstest.Profile())
	require.NoError(t, err)
	b, err := policy.Compile("cafe\u0301 strategy", contractstest.Profile())
	require.NoError(t, err)
	assert.Equal(t, a.PolicyHash, b.PolicyHash)
}

func TestCompiledPolicy_ValidateDetectsTamper(t *testing.T) {
	cp, err := policy.Compile("max leverage 2x", contractstest.Profile())
	require.NoError(t, err)
	cp.MaxLeverage = decimal.NewFromInt(3)
	var verr *contracts.ArtifactValidationError
	require.ErrorAs(t, cp.Validate(), &verr)
	assert.Equal(t, "policy_hash", verr.Field)
}

func TestCompiledPolicy_SymbolAllowed(t *testing.T) {
	cp, err := policy.Compile("copy", contractstest.Profile())
	require.NoError(t, err)

	ok, _ := cp.SymbolAllowed("BTC-USD")
	assert.True(t, ok)
	ok, reason := cp.SymbolAllowed("SOL-USD")
	assert.False(t, ok)
	assert.Contains(t, reason, "allowlist")

	cp, err = policy.Compile("allow any symbol", contractstest.Profile())
	require.NoError(t, err)
	ok, _ = cp.SymbolAllowed("SOL-USD")
	assert.True(t, ok)
	ok, reason = cp.SymbolAllowed("DOGE-USD")
	assert.False(t, ok)
	assert.Contains(t, reason, "denylist")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", policy.Normalize("  A\n\tB   c "))
	assert.Equal(t, "", policy.Normalize("   "))
}
