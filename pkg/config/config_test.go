package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradetrust/pkg/config"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

var envKeys = []string{
	"TRADETRUST_CONFIG", "TRADETRUST_NETWORK", "TRADETRUST_STORAGE_DRIVER", "TRADETRUST_STORAGE_DSN",
	"DATABASE_URL", "LOG_LEVEL", "TRADETRUST_LOG_LEVEL", "TRADETRUST_VERIFICATION_BACKEND",
	"TRADETRUST_KILL_SWITCH", "TRADETRUST_MAX_LEVERAGE", "TRADETRUST_EIGENCLOUD_TIMEOUT",
	"TRADETRUST_SIGNING_KEY_SEED", "TRADETRUST_CUSTODY_MODE",
}

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

// System must boot with safe defaults.
func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.Mainnet, cfg.Network)
	assert.Equal(t, config.MainnetTradingURL, cfg.TradingURL())
	assert.Equal(t, "paper_first", cfg.Execution.PaperLivePolicy)
	assert.False(t, cfg.Execution.KillSwitch.Enabled)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)

	vc := cfg.VerificationBackendConfig()
	assert.Equal(t, verification.KindEigenCloudPrimary, vc.Backend)
	assert.Equal(t, config.DefaultVerifyURL, vc.EigenCloud.Endpoint)
	assert.Equal(t, verification.DefaultTimeout, vc.EigenCloud.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TRADETRUST_NETWORK", "testnet")
	t.Setenv("DATABASE_URL", "postgres://db:5432/tradetrust")
	t.Setenv("TRADETRUST_STORAGE_DRIVER", "postgres")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TRADETRUST_KILL_SWITCH", "true")
	t.Setenv("TRADETRUST_MAX_LEVERAGE", "5")
	t.Setenv("TRADETRUST_EIGENCLOUD_TIMEOUT", "3s")
	t.Setenv("TRADETRUST_VERIFICATION_BACKEND", "fallback_only")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.TestnetTradingURL, cfg.TradingURL())
	assert.Equal(t, "postgres://db:5432/tradetrust", cfg.Storage.DSN)
	assert.Equal(t, "DEBUG", cfg.LogLevel)

	ec := cfg.ExecutorConfig()
	assert.True(t, ec.KillSwitchEnabled)
	assert.Equal(t, executor.BlockAll, ec.KillSwitchBehavior)
	assert.Equal(t, "5", ec.MaxLeverage.String())

	vc := cfg.VerificationBackendConfig()
	assert.Equal(t, verification.KindFallbackOnly, vc.Backend)
	assert.Equal(t, 3*time.Second, vc.EigenCloud.Timeout)
	assert.Equal(t, config.DefaultChainPath, vc.Fallback.ChainPath)
}

func TestLoad_YAMLFile(t *testing.T) {
	cleanEnv(t)
	path := filepath.Join(t.TempDir(), "tradetrust.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network: testnet
execution:
  timeout: 4s
  max_position_usd: "25000"
  kill_switch:
    enabled: true
    behavior: block_live
verification:
  backend: fallback_only
  fallback:
    chain_path: /var/lib/tradetrust/chain.jsonl
    signing_key_id: chain-2026
    signing_key_seed: "4242424242424242424242424242424242424242424242424242424242424242"
    require_signed_receipts: true
storage:
  driver: memory
  workspace:
    type: s3
    bucket: audit-artifacts
`), 0o600))
	t.Setenv("TRADETRUST_CONFIG", path)
	t.Setenv("TRADETRUST_NETWORK", "mainnet")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.Mainnet, cfg.Network, "environment wins over file")
	assert.Equal(t, 4*time.Second, cfg.Execution.Timeout)
	assert.Equal(t, "25000", cfg.Execution.MaxPositionUSD.String())
	assert.Equal(t, executor.BlockLive, cfg.ExecutorConfig().KillSwitchBehavior)

	vc := cfg.VerificationBackendConfig()
	assert.Equal(t, "/var/lib/tradetrust/chain.jsonl", vc.Fallback.ChainPath)
	assert.Len(t, vc.Fallback.SigningKeySeed, 32)
	assert.True(t, vc.Fallback.RequireSignedReceipts)

	assert.Equal(t, "audit-artifacts", cfg.WorkspaceConfig().Bucket)
}

func TestLoad_FailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"bad network", map[string]string{"TRADETRUST_NETWORK": "devnet"}, "network"},
		{"bad backend", map[string]string{"TRADETRUST_VERIFICATION_BACKEND": "none"}, "verification.backend"},
		{"bad seed", map[string]string{"TRADETRUST_SIGNING_KEY_SEED": "not-hex"}, "verification.fallback.signing_key_seed"},
		{"bad leverage", map[string]string{"TRADETRUST_MAX_LEVERAGE": "-2"}, "execution.max_leverage"},
		{"agent wallet missing", map[string]string{"TRADETRUST_CUSTODY_MODE": "agent_wallet"}, "execution.agent_wallet"},
		{"bad driver", map[string]string{"TRADETRUST_STORAGE_DRIVER": "mongo"}, "storage.driver"},
		{"bad duration", map[string]string{"TRADETRUST_EIGENCLOUD_TIMEOUT": "soon"}, "TRADETRUST_EIGENCLOUD_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config "+tt.field+":")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TRADETRUST_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := config.Load()
	assert.Error(t, err)
}
