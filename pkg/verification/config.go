// Package verification attaches verification outcomes to execution receipts.
//
// A backend is selected once from configuration: the EigenCloud oracle with
// an optional signed local chain behind it, or the signed local chain alone.
// Misconfiguration fails closed at selection time; verification is never
// silently skipped.
package verification

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names the configured verification backend.
type Kind string

const (
	KindEigenCloudPrimary Kind = "eigencloud_primary"
	KindFallbackOnly      Kind = "fallback_only"
)

// ParseKind parses a backend kind case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindEigenCloudPrimary, KindFallbackOnly:
		return k, nil
	default:
		return "", fmt.Errorf("unknown verification backend %q", s)
	}
}

// AuthScheme selects how the EigenCloud token is presented.
type AuthScheme string

const (
	AuthBearer AuthScheme = "bearer"
	AuthAPIKey AuthScheme = "api_key"
)

// ParseAuthScheme parses an auth scheme case-insensitively.
func ParseAuthScheme(s string) (AuthScheme, error) {
	switch a := AuthScheme(strings.ToLower(strings.TrimSpace(s))); a {
	case AuthBearer, AuthAPIKey:
		return a, nil
	default:
		return "", fmt.Errorf("unknown auth scheme %q", s)
	}
}

// DefaultTimeout bounds a single oracle call when none is configured.
const DefaultTimeout = 10 * time.Second

// EigenCloudConfig configures the remote verification oracle.
type EigenCloudConfig struct {
	Endpoint   string
	AuthScheme AuthScheme
	Token      string
	Timeout    time.Duration
}

// FallbackConfig configures the local signed chain.
type FallbackConfig struct {
	ChainPath             string
	SigningKeyID          string
	SigningKeySeed        []byte
	RequireSignedReceipts bool
}

// Enabled reports whether a chain path is configured.
func (f FallbackConfig) Enabled() bool {
	return strings.TrimSpace(f.ChainPath) != ""
}

// Config is the complete backend selection input.
type Config struct {
	Backend    Kind
	EigenCloud EigenCloudConfig
	Fallback   FallbackConfig
}

// ErrUnavailable is returned when no attempt for a receipt produced a
// usable outcome.
var ErrUnavailable = errors.New("verification backend unavailable")

// ErrUnsignedEntry is returned when signed receipts are required but the
// chain has no signing key.
var ErrUnsignedEntry = errors.New("unsigned fallback entry rejected")

// ConfigError reports an invalid backend configuration. It is fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("verification config %s: %s", e.Field, e.Reason)
}
