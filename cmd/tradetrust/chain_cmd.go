package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Mindburn-Labs/tradetrust/pkg/config"
	"github.com/Mindburn-Labs/tradetrust/pkg/crypto"
	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

// runChainCmd implements `tradetrust chain verify`.
//
// Exit codes:
//
//	0 = chain intact
//	1 = chain read but not intact
//	2 = runtime error
func runChainCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "verify" {
		_, _ = fmt.Fprintln(stderr, "Usage: tradetrust chain verify [--path <chain.jsonl>] [--key <id>=<hex>] [--require-signed] [--json]")
		return 2
	}

	cmd := flag.NewFlagSet("chain verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		path          string
		jsonOutput    bool
		requireSigned bool
	)
	keyring := crypto.NewKeyRing()
	pinned := false
	cmd.StringVar(&path, "path", "", "Chain file (defaults to the configured chain path)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.BoolVar(&requireSigned, "require-signed", false, "Fail on any unsigned entry (implied by a pinned key or require_signed_receipts)")
	cmd.Func("key", "Trusted public key as <key id>=<hex> (repeatable)", func(v string) error {
		id, pub, ok := strings.Cut(v, "=")
		if !ok || id == "" {
			return fmt.Errorf("expected <key id>=<hex>, got %q", v)
		}
		if _, err := hex.DecodeString(pub); err != nil {
			return fmt.Errorf("key %s: %w", id, err)
		}
		keyring.AddPublicKey(id, pub)
		pinned = true
		return nil
	})

	if err := cmd.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	if path == "" {
		path = cfg.Verification.Fallback.ChainPath
	}
	if path == "" {
		path = config.DefaultChainPath
	}

	// The configured seed pins the local signing key when no key was given.
	if !pinned {
		if signer := configuredSigner(cfg); signer != nil {
			keyring.AddKey(signer)
			pinned = true
		}
	}
	var kr *crypto.KeyRing
	if pinned {
		kr = keyring
	}

	requireSigned = requireSigned || cfg.Verification.Fallback.RequireSignedReceipts
	report, err := verification.VerifyChainFile(path, kr, verification.RequireSigned(requireSigned))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		if code := writeJSON(stdout, report); code != 0 {
			return code
		}
	} else if report.Verified {
		_, _ = fmt.Fprintf(stdout, "%sChain verification PASSED%s\n", colorGreen, colorReset)
		_, _ = fmt.Fprintf(stdout, "Chain: %s\n", path)
		_, _ = fmt.Fprintf(stdout, "Entries: %d\n", report.Entries)
		_, _ = fmt.Fprintf(stdout, "Checks: %s\n", report.Summary)
	} else {
		_, _ = fmt.Fprintf(stdout, "%sChain verification FAILED%s\n", colorRed, colorReset)
		_, _ = fmt.Fprintf(stdout, "Chain: %s\n", path)
		for _, c := range report.Checks {
			if !c.Pass {
				_, _ = fmt.Fprintf(stdout, "  - %s: %s\n", c.Name, c.Reason)
			}
		}
	}

	if !report.Verified {
		return 1
	}
	return 0
}

func configuredSigner(cfg *config.Config) *crypto.Ed25519Signer {
	vc := cfg.VerificationBackendConfig().Fallback
	if len(vc.SigningKeySeed) == 0 || vc.SigningKeyID == "" {
		return nil
	}
	signer, err := crypto.DeriveEd25519Signer(vc.SigningKeySeed, vc.SigningKeyID)
	if err != nil {
		return nil
	}
	return signer
}
