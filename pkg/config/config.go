// Package config loads tradetrust configuration. Sources apply in order:
// built-in defaults, an optional YAML file named by TRADETRUST_CONFIG, then
// environment overrides. Load fails closed when the result does not
// validate.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/tradetrust/pkg/artifacts"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/venue"
	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

// Network selects the exchange environment.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Default endpoints per network.
const (
	MainnetTradingURL   = "https://api.hyperliquid.xyz"
	TestnetTradingURL   = "https://api.hyperliquid-testnet.xyz"
	DefaultVerifyURL    = "https://verify.eigencloud.xyz"
	DefaultChainPath    = "data/verification/chain.jsonl"
	DefaultWorkspaceDir = "data/workspace"
)

// CustodyMode names who holds trading keys.
type CustodyMode string

const (
	CustodyNone        CustodyMode = "none"
	CustodyAgentWallet CustodyMode = "agent_wallet"
)

// Config is the complete runtime configuration.
type Config struct {
	Network         Network            `yaml:"network"`
	TradingEndpoint string             `yaml:"trading_endpoint"`
	Execution       ExecutionConfig    `yaml:"execution"`
	Verification    VerificationConfig `yaml:"verification"`
	Storage         StorageConfig      `yaml:"storage"`
	Policy          PolicyConfig       `yaml:"policy"`
	LogLevel        string             `yaml:"log_level"`
	LogFormat       string             `yaml:"log_format"`
	Telemetry       TelemetryConfig    `yaml:"telemetry"`
}

type ExecutionConfig struct {
	Timeout         time.Duration    `yaml:"timeout"`
	MaxRetries      int              `yaml:"max_retries"`
	Backoff         time.Duration    `yaml:"backoff"`
	PaperLivePolicy string           `yaml:"paper_live_policy"`
	CustodyMode     CustodyMode      `yaml:"custody_mode"`
	AgentWallet     string           `yaml:"agent_wallet"`
	MaxPositionUSD  decimal.Decimal  `yaml:"max_position_usd"`
	MaxLeverage     decimal.Decimal  `yaml:"max_leverage"`
	KillSwitch      KillSwitchConfig `yaml:"kill_switch"`
	LivePolicyGate  bool             `yaml:"live_policy_gate"`
	RequestsPerSec  float64          `yaml:"requests_per_second"`
}

type KillSwitchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Behavior string `yaml:"behavior"`
}

type VerificationConfig struct {
	Backend    string           `yaml:"backend"`
	EigenCloud EigenCloudConfig `yaml:"eigencloud"`
	Fallback   FallbackConfig   `yaml:"fallback"`
}

type EigenCloudConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	AuthScheme string        `yaml:"auth_scheme"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
}

type FallbackConfig struct {
	ChainPath             string `yaml:"chain_path"`
	SigningKeyID          string `yaml:"signing_key_id"`
	SigningKeySeed        string `yaml:"signing_key_seed"` // hex
	RequireSignedReceipts bool   `yaml:"require_signed_receipts"`
}

type StorageConfig struct {
	Driver    string          `yaml:"driver"`
	DSN       string          `yaml:"dsn"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Redis     RedisConfig     `yaml:"redis"`
}

type WorkspaceConfig struct {
	Type     string `yaml:"type"`
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// RedisConfig enables the cross-process lineage lock when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PolicyConfig struct {
	PresetDir string `yaml:"preset_dir"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// FieldError names the configuration field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Network: Mainnet,
		Execution: ExecutionConfig{
			Timeout:         10 * time.Second,
			MaxRetries:      0,
			Backoff:         500 * time.Millisecond,
			PaperLivePolicy: string(contracts.DefaultPaperLivePolicy),
			CustodyMode:     CustodyNone,
			KillSwitch:      KillSwitchConfig{Behavior: string(executor.BlockAll)},
			RequestsPerSec:  5,
		},
		Verification: VerificationConfig{
			Backend: string(verification.KindEigenCloudPrimary),
			EigenCloud: EigenCloudConfig{
				Endpoint:   DefaultVerifyURL,
				AuthScheme: string(verification.AuthBearer),
				Timeout:    verification.DefaultTimeout,
			},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "data/tradetrust.db",
			Workspace: WorkspaceConfig{
				Type: string(artifacts.StoreTypeFS),
				Dir:  DefaultWorkspaceDir,
			},
		},
		LogLevel:  "INFO",
		LogFormat: "json",
		Telemetry: TelemetryConfig{ServiceName: "tradetrust"},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, then validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("TRADETRUST_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// TradingURL returns the explicit trading endpoint or the network default.
func (c *Config) TradingURL() string {
	if c.TradingEndpoint != "" {
		return c.TradingEndpoint
	}
	if c.Network == Testnet {
		return TestnetTradingURL
	}
	return MainnetTradingURL
}

// Validate checks every field and reports all failures at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	c.Network = Network(strings.ToLower(strings.TrimSpace(string(c.Network))))
	if c.Network != Mainnet && c.Network != Testnet {
		fail("network", "must be mainnet or testnet, got %q", c.Network)
	}

	x := &c.Execution
	if x.Timeout <= 0 {
		fail("execution.timeout", "must be positive")
	}
	if x.MaxRetries < 0 {
		fail("execution.max_retries", "must not be negative")
	}
	if x.Backoff <= 0 {
		fail("execution.backoff", "must be positive")
	}
	if _, err := contracts.ParsePaperLivePolicy(x.PaperLivePolicy); err != nil {
		fail("execution.paper_live_policy", "%v", err)
	}
	x.CustodyMode = CustodyMode(strings.ToLower(strings.TrimSpace(string(x.CustodyMode))))
	switch x.CustodyMode {
	case CustodyNone:
	case CustodyAgentWallet:
		if x.AgentWallet == "" {
			fail("execution.agent_wallet", "required when custody_mode is agent_wallet")
		}
	default:
		fail("execution.custody_mode", "must be none or agent_wallet, got %q", x.CustodyMode)
	}
	if x.MaxPositionUSD.IsNegative() {
		fail("execution.max_position_usd", "must not be negative")
	}
	if !x.MaxLeverage.IsZero() && !x.MaxLeverage.IsPositive() {
		fail("execution.max_leverage", "must be positive")
	}
	if _, err := executor.ParseKillSwitchBehavior(x.KillSwitch.Behavior); err != nil {
		fail("execution.kill_switch.behavior", "%v", err)
	}
	if x.RequestsPerSec <= 0 {
		fail("execution.requests_per_second", "must be positive")
	}

	v := c.Verification
	if _, err := verification.ParseKind(v.Backend); err != nil {
		fail("verification.backend", "%v", err)
	}
	if _, err := verification.ParseAuthScheme(v.EigenCloud.AuthScheme); err != nil {
		fail("verification.eigencloud.auth_scheme", "%v", err)
	}
	if v.EigenCloud.Timeout < 0 {
		fail("verification.eigencloud.timeout", "must not be negative")
	}
	if v.Fallback.SigningKeySeed != "" {
		if _, err := hex.DecodeString(v.Fallback.SigningKeySeed); err != nil {
			fail("verification.fallback.signing_key_seed", "must be hex")
		}
	}

	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		fail("storage.driver", "must be memory, sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "memory" && c.Storage.DSN == "" {
		fail("storage.dsn", "required for driver %s", c.Storage.Driver)
	}
	switch artifacts.StoreType(c.Storage.Workspace.Type) {
	case artifacts.StoreTypeFS:
	case artifacts.StoreTypeS3, artifacts.StoreTypeGCS:
		if c.Storage.Workspace.Bucket == "" {
			fail("storage.workspace.bucket", "required for %s", c.Storage.Workspace.Type)
		}
	default:
		fail("storage.workspace.type", "must be fs, s3 or gcs, got %q", c.Storage.Workspace.Type)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		fail("log_format", "must be json or text, got %q", c.LogFormat)
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		fail("telemetry.otlp_endpoint", "required when telemetry is enabled")
	}

	return errors.Join(errs...)
}

// ExecutorConfig maps the execution section onto the engine.
func (c *Config) ExecutorConfig() executor.Config {
	behavior, _ := executor.ParseKillSwitchBehavior(c.Execution.KillSwitch.Behavior)
	return executor.Config{
		TradingEndpoint:      c.TradingURL(),
		VerificationEndpoint: c.Verification.EigenCloud.Endpoint,
		MaxPositionUSD:       c.Execution.MaxPositionUSD,
		MaxLeverage:          c.Execution.MaxLeverage,
		KillSwitchEnabled:    c.Execution.KillSwitch.Enabled,
		KillSwitchBehavior:   behavior,
	}
}

// ExecutionContext returns caller defaults for the engine.
func (c *Config) ExecutionContext(userID, sessionID string) executor.ExecutionContext {
	return executor.ExecutionContext{
		PaperLivePolicy: c.Execution.PaperLivePolicy,
		LivePolicyGate:  c.Execution.LivePolicyGate,
		UserID:          userID,
		SessionID:       sessionID,
	}
}

// VenueConfig returns the Hyperliquid client configuration.
func (c *Config) VenueConfig() venue.Config {
	vc := venue.Config{
		Endpoint:          c.TradingURL(),
		Timeout:           c.Execution.Timeout,
		RequestsPerSecond: c.Execution.RequestsPerSec,
	}
	if c.Execution.CustodyMode == CustodyAgentWallet {
		vc.AgentWallet = c.Execution.AgentWallet
	}
	return vc
}

// VerificationBackendConfig converts the verification section. Enum and
// seed errors were reported by Validate.
func (c *Config) VerificationBackendConfig() verification.Config {
	v := c.Verification
	kind, _ := verification.ParseKind(v.Backend)
	scheme, _ := verification.ParseAuthScheme(v.EigenCloud.AuthScheme)
	seed, _ := hex.DecodeString(v.Fallback.SigningKeySeed)
	chainPath := v.Fallback.ChainPath
	if kind == verification.KindFallbackOnly && chainPath == "" {
		chainPath = DefaultChainPath
	}
	return verification.Config{
		Backend: kind,
		EigenCloud: verification.EigenCloudConfig{
			Endpoint:   v.EigenCloud.Endpoint,
			AuthScheme: scheme,
			Token:      v.EigenCloud.Token,
			Timeout:    v.EigenCloud.Timeout,
		},
		Fallback: verification.FallbackConfig{
			ChainPath:             chainPath,
			SigningKeyID:          v.Fallback.SigningKeyID,
			SigningKeySeed:        seed,
			RequireSignedReceipts: v.Fallback.RequireSignedReceipts,
		},
	}
}

// WorkspaceConfig returns the artifact store configuration.
func (c *Config) WorkspaceConfig() artifacts.Config {
	w := c.Storage.Workspace
	return artifacts.Config{
		Type:     artifacts.StoreType(w.Type),
		Dir:      w.Dir,
		Bucket:   w.Bucket,
		Prefix:   w.Prefix,
		Region:   w.Region,
		Endpoint: w.Endpoint,
	}
}
