// Package tls builds the client TLS configuration used for every outbound
// venue and verification call.
package tls

import (
	"crypto/tls"
)

// HybridPQCConfig returns a TLS 1.3 config preferring the X25519MLKEM768
// hybrid key exchange, with classical X25519 as fallback.
func HybridPQCConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{
			tls.X25519MLKEM768,
			tls.X25519,
		},
	}
}

// ClientConfig returns a client config with certificate verification on.
// An empty serverName lets net/http fill it from the request host.
func ClientConfig(serverName string) *tls.Config {
	config := HybridPQCConfig()
	config.ServerName = serverName
	return config
}
