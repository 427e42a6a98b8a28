package firewall

import (
	"fmt"
	"net/url"
	"strings"
)

// Fixed host allowlists. Exposed only as copies.
var (
	tradingHosts      = [...]string{"api.hyperliquid.xyz", "api.hyperliquid-testnet.xyz"}
	verificationHosts = [...]string{"verify.eigencloud.xyz", "verify.eigencloud.example", "localhost", "127.0.0.1"}
	httpsOnly         = [...]string{"https"}
)

// TradingHosts returns the hosts the engine may submit orders to.
func TradingHosts() []string { return append([]string(nil), tradingHosts[:]...) }

// VerificationHosts returns the hosts the verification client may call.
func VerificationHosts() []string { return append([]string(nil), verificationHosts[:]...) }

// HTTPSOnly returns the scheme allowlist every caller in this module passes.
func HTTPSOnly() []string { return append([]string(nil), httpsOnly[:]...) }

// EndpointError explains why a URL was refused. URL has any credentials
// redacted.
type EndpointError struct {
	URL    string
	Reason string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("endpoint %q rejected: %s", e.URL, e.Reason)
}

// ValidateEndpoint checks rawURL against the host and scheme allowlists.
// Host entries match exactly, or as "*.suffix" which matches strict
// subdomains of suffix but never suffix itself.
func ValidateEndpoint(rawURL string, hostAllowlist, schemeAllowlist []string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &EndpointError{URL: "<unparsable>", Reason: "unparsable url"}
	}
	if u.Opaque != "" {
		return &EndpointError{URL: u.Redacted(), Reason: "opaque url"}
	}
	if u.User != nil {
		return &EndpointError{URL: u.Redacted(), Reason: "embedded credentials are not allowed"}
	}
	scheme := strings.ToLower(u.Scheme)
	if !schemeAllowed(scheme, schemeAllowlist) {
		return &EndpointError{URL: u.Redacted(), Reason: fmt.Sprintf("scheme %q is not allowed", scheme)}
	}
	host := normalizeHost(u.Hostname())
	if host == "" {
		return &EndpointError{URL: u.Redacted(), Reason: "missing host"}
	}
	for _, entry := range hostAllowlist {
		if hostMatches(host, normalizeHost(entry)) {
			return nil
		}
	}
	return &EndpointError{URL: u.Redacted(), Reason: fmt.Sprintf("host %q is not allowlisted", host)}
}

// ValidateTradingEndpoint applies the trading allowlist, https only.
func ValidateTradingEndpoint(rawURL string) error {
	return ValidateEndpoint(rawURL, tradingHosts[:], httpsOnly[:])
}

// ValidateVerificationEndpoint applies the verification allowlist, https only.
func ValidateVerificationEndpoint(rawURL string) error {
	return ValidateEndpoint(rawURL, verificationHosts[:], httpsOnly[:])
}

func schemeAllowed(scheme string, allowlist []string) bool {
	if scheme == "" {
		return false
	}
	for _, s := range allowlist {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "[")
	h = strings.TrimSuffix(h, "]")
	return strings.TrimSuffix(h, ".")
}

func hostMatches(host, entry string) bool {
	if entry == "" {
		return false
	}
	if suffix, ok := strings.CutPrefix(entry, "*."); ok {
		if suffix == "" {
			return false
		}
		return strings.HasSuffix(host, "."+suffix) && len(host) > len(suffix)+1
	}
	return host == entry
}
