package verification_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts/contractstest"
	"github.com/Mindburn-Labs/tradetrust/pkg/crypto"
	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

func writeChain(t *testing.T, n int) (string, *verification.Chain) {
	t.Helper()
	cfg := signedChainConfig(t)
	chain, err := verification.NewChain(cfg)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := chain.Append(context.Background(), contractstest.Receipt())
		require.NoError(t, err)
	}
	return cfg.ChainPath, chain
}

func rewriteEntries(t *testing.T, path string, mutate func([]verification.ChainEntry)) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []verification.ChainEntry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var e verification.ChainEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	mutate(entries)
	var out strings.Builder
	for _, e := range entries {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		out.Write(b)
		out.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(out.String()), 0o600))
}

func failedCheck(report *verification.ChainReport) string {
	for _, c := range report.Checks {
		if !c.Pass {
			return c.Name
		}
	}
	return ""
}

func TestVerifyChainFile_Intact(t *testing.T) {
	path, chain := writeChain(t, 3)

	kr := crypto.NewKeyRing()
	kr.AddKey(chain.Signer())

	report, err := verification.VerifyChainFile(path, kr)
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)
	assert.Equal(t, 3, report.Entries)
	assert.Equal(t, 0, report.IssueCount)
	assert.Equal(t, "PASS: 5/5 checks passed", report.Summary)
}

func TestVerifyChainFile_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]verification.ChainEntry)
		check  string
	}{
		{"sequence gap", func(e []verification.ChainEntry) { e[1].Sequence = 7 }, "sequence"},
		{"broken link", func(e []verification.ChainEntry) { e[2].PrevHash = contractstest.Digest("other") }, "linkage"},
		{"edited receipt hash", func(e []verification.ChainEntry) { e[0].ReceiptHash = contractstest.Digest("forged") }, "entry_hash"},
		{"forged signature", func(e []verification.ChainEntry) {
			e[1].Signature = e[0].Signature
		}, "signatures"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, _ := writeChain(t, 3)
			rewriteEntries(t, path, tt.mutate)

			report, err := verification.VerifyChainFile(path, nil)
			require.NoError(t, err)
			assert.False(t, report.Verified)
			assert.Equal(t, tt.check, failedCheck(report))
		})
	}
}

func TestVerifyChainFile_UnknownKey(t *testing.T) {
	path, _ := writeChain(t, 1)
	report, err := verification.VerifyChainFile(path, crypto.NewKeyRing())
	require.NoError(t, err)
	assert.False(t, report.Verified)
	assert.Equal(t, "signatures", failedCheck(report))
}

func TestVerifyChainFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json\n"), 0o600))

	report, err := verification.VerifyChainFile(path, nil)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	assert.Equal(t, "structure", failedCheck(report))

	_, err = verification.VerifyChainFile(filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	require.Error(t, err)
}

func stripAndRehash(t *testing.T, e *verification.ChainEntry) {
	t.Helper()
	e.ReceiptHash = contractstest.Digest("forged")
	e.Signature = ""
	e.SignatureType = ""
	e.PublicKey = ""
	h, err := e.ComputeHash()
	require.NoError(t, err)
	e.EntryHash = h
}

func TestVerifyChainFile_StrippedTailSignature(t *testing.T) {
	path, chain := writeChain(t, 3)
	rewriteEntries(t, path, func(e []verification.ChainEntry) { stripAndRehash(t, &e[2]) })

	kr := crypto.NewKeyRing()
	kr.AddKey(chain.Signer())
	pinned, err := verification.VerifyChainFile(path, kr)
	require.NoError(t, err)
	assert.False(t, pinned.Verified, pinned.Summary)
	assert.Equal(t, "signatures", failedCheck(pinned))

	// Even without a pinned key, signing cannot stop partway through.
	embedded, err := verification.VerifyChainFile(path, nil)
	require.NoError(t, err)
	assert.False(t, embedded.Verified, embedded.Summary)
	assert.Equal(t, "signatures", failedCheck(embedded))
}

func TestVerifyChainFile_StrippedSignatureKeepingKey(t *testing.T) {
	path, _ := writeChain(t, 1)
	rewriteEntries(t, path, func(e []verification.ChainEntry) { e[0].Signature = "" })

	report, err := verification.VerifyChainFile(path, nil)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	assert.Equal(t, "signatures", failedCheck(report))
}

func TestVerifyChainFile_UnsignedChain(t *testing.T) {
	chain, err := verification.NewChain(verification.FallbackConfig{
		ChainPath: filepath.Join(t.TempDir(), "unsigned.jsonl"),
	})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := chain.Append(context.Background(), contractstest.Receipt())
		require.NoError(t, err)
	}

	report, err := verification.VerifyChainFile(chain.Path(), nil)
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)

	strict, err := verification.VerifyChainFile(chain.Path(), nil, verification.RequireSigned(true))
	require.NoError(t, err)
	assert.False(t, strict.Verified)
	assert.Equal(t, "signatures", failedCheck(strict))

	pinned, err := verification.VerifyChainFile(chain.Path(), crypto.NewKeyRing())
	require.NoError(t, err)
	assert.False(t, pinned.Verified)
}
