package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// applyEnv overlays environment variables. Unset or empty variables keep
// the current value. LOG_LEVEL and DATABASE_URL are honored for
// compatibility with generic deployment tooling.
func (c *Config) applyEnv() error {
	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"TRADETRUST_TRADING_ENDPOINT"}, &c.TradingEndpoint},
		{[]string{"TRADETRUST_PAPER_LIVE_POLICY"}, &c.Execution.PaperLivePolicy},
		{[]string{"TRADETRUST_AGENT_WALLET"}, &c.Execution.AgentWallet},
		{[]string{"TRADETRUST_KILL_SWITCH_BEHAVIOR"}, &c.Execution.KillSwitch.Behavior},
		{[]string{"TRADETRUST_VERIFICATION_BACKEND"}, &c.Verification.Backend},
		{[]string{"TRADETRUST_EIGENCLOUD_ENDPOINT"}, &c.Verification.EigenCloud.Endpoint},
		{[]string{"TRADETRUST_EIGENCLOUD_AUTH_SCHEME"}, &c.Verification.EigenCloud.AuthScheme},
		{[]string{"TRADETRUST_EIGENCLOUD_TOKEN"}, &c.Verification.EigenCloud.Token},
		{[]string{"TRADETRUST_CHAIN_PATH"}, &c.Verification.Fallback.ChainPath},
		{[]string{"TRADETRUST_SIGNING_KEY_ID"}, &c.Verification.Fallback.SigningKeyID},
		{[]string{"TRADETRUST_SIGNING_KEY_SEED"}, &c.Verification.Fallback.SigningKeySeed},
		{[]string{"TRADETRUST_STORAGE_DRIVER"}, &c.Storage.Driver},
		{[]string{"TRADETRUST_STORAGE_DSN", "DATABASE_URL"}, &c.Storage.DSN},
		{[]string{"TRADETRUST_WORKSPACE_TYPE"}, &c.Storage.Workspace.Type},
		{[]string{"TRADETRUST_WORKSPACE_DIR"}, &c.Storage.Workspace.Dir},
		{[]string{"TRADETRUST_WORKSPACE_BUCKET"}, &c.Storage.Workspace.Bucket},
		{[]string{"TRADETRUST_WORKSPACE_PREFIX"}, &c.Storage.Workspace.Prefix},
		{[]string{"TRADETRUST_WORKSPACE_REGION"}, &c.Storage.Workspace.Region},
		{[]string{"TRADETRUST_WORKSPACE_ENDPOINT"}, &c.Storage.Workspace.Endpoint},
		{[]string{"TRADETRUST_REDIS_ADDR"}, &c.Storage.Redis.Addr},
		{[]string{"TRADETRUST_REDIS_PASSWORD"}, &c.Storage.Redis.Password},
		{[]string{"TRADETRUST_POLICY_DIR"}, &c.Policy.PresetDir},
		{[]string{"TRADETRUST_LOG_LEVEL", "LOG_LEVEL"}, &c.LogLevel},
		{[]string{"TRADETRUST_LOG_FORMAT"}, &c.LogFormat},
		{[]string{"TRADETRUST_OTLP_ENDPOINT"}, &c.Telemetry.OTLPEndpoint},
	}
	for _, s := range strs {
		if v, ok := lookup(s.keys...); ok {
			*s.dst = v
		}
	}

	if v, ok := lookup("TRADETRUST_NETWORK"); ok {
		c.Network = Network(v)
	}
	if v, ok := lookup("TRADETRUST_CUSTODY_MODE"); ok {
		c.Execution.CustodyMode = CustodyMode(v)
	}

	durations := map[string]*time.Duration{
		"TRADETRUST_EXECUTION_TIMEOUT":  &c.Execution.Timeout,
		"TRADETRUST_EXECUTION_BACKOFF":  &c.Execution.Backoff,
		"TRADETRUST_EIGENCLOUD_TIMEOUT": &c.Verification.EigenCloud.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return &FieldError{Field: key, Reason: err.Error()}
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"TRADETRUST_KILL_SWITCH":             &c.Execution.KillSwitch.Enabled,
		"TRADETRUST_LIVE_POLICY_GATE":        &c.Execution.LivePolicyGate,
		"TRADETRUST_REQUIRE_SIGNED_RECEIPTS": &c.Verification.Fallback.RequireSignedReceipts,
		"TRADETRUST_TELEMETRY":               &c.Telemetry.Enabled,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return &FieldError{Field: key, Reason: fmt.Sprintf("invalid boolean %q", v)}
			}
			*dst = b
		}
	}

	decimals := map[string]*decimal.Decimal{
		"TRADETRUST_MAX_POSITION_USD": &c.Execution.MaxPositionUSD,
		"TRADETRUST_MAX_LEVERAGE":     &c.Execution.MaxLeverage,
	}
	for key, dst := range decimals {
		if v, ok := lookup(key); ok {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return &FieldError{Field: key, Reason: fmt.Sprintf("invalid decimal %q", v)}
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"TRADETRUST_MAX_RETRIES": &c.Execution.MaxRetries,
		"TRADETRUST_REDIS_DB":    &c.Storage.Redis.DB,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &FieldError{Field: key, Reason: fmt.Sprintf("invalid integer %q", v)}
			}
			*dst = n
		}
	}
	return nil
}

func lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v, true
		}
	}
	return "", false
}
