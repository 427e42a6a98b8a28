package verification_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts/contractstest"
	"github.com/Mindburn-Labs/tradetrust/pkg/crypto"
	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

var testSeed = bytes.Repeat([]byte{0x5a}, crypto.MinSeedLength)

func signedChainConfig(t *testing.T) verification.FallbackConfig {
	t.Helper()
	return verification.FallbackConfig{
		ChainPath:             filepath.Join(t.TempDir(), "chain", "fallback.jsonl"),
		SigningKeyID:          "fallback-2026",
		SigningKeySeed:        testSeed,
		RequireSignedReceipts: true,
	}
}

func TestChain_SignedAppendAndVerify(t *testing.T) {
	cfg := signedChainConfig(t)
	chain, err := verification.NewChain(cfg, verification.WithClock(fixedClock))
	require.NoError(t, err)

	receipt := contractstest.Receipt()
	rec, err := chain.Verify(context.Background(), receipt)
	require.NoError(t, err)
	require.NoError(t, rec.Validate())
	assert.Equal(t, contracts.BackendSignedFallback, rec.Backend)
	assert.Equal(t, contracts.StatusVerified, rec.Status)
	assert.True(t, strings.HasPrefix(rec.ProofRef, "fallback:1:"))

	second := contractstest.Receipt()
	second.Symbol = "ETH-USD"
	_, err = chain.Verify(context.Background(), second)
	require.NoError(t, err)

	entries, err := chain.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, verification.GenesisHash, entries[0].PrevHash)
	assert.Equal(t, entries[0].EntryHash, entries[1].PrevHash)
	assert.Equal(t, "ed25519:fallback-2026", entries[1].SignatureType)

	ok, err := crypto.Verify(chain.Signer().PublicKey(), entries[1].Signature, []byte(entries[1].EntryHash))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChain_ContinuesExistingFile(t *testing.T) {
	cfg := signedChainConfig(t)
	first, err := verification.NewChain(cfg)
	require.NoError(t, err)
	_, err = first.Append(context.Background(), contractstest.Receipt())
	require.NoError(t, err)

	// A restarted process derives the same key and links onto the tail.
	reopened, err := verification.NewChain(cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Signer().PublicKey(), reopened.Signer().PublicKey())
	entry, err := reopened.Append(context.Background(), contractstest.Receipt())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.Sequence)

	report, err := verification.VerifyChainFile(cfg.ChainPath, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)
}

func TestChain_SharedFileDoesNotFork(t *testing.T) {
	cfg := signedChainConfig(t)
	a, err := verification.NewChain(cfg)
	require.NoError(t, err)
	b, err := verification.NewChain(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	// Interleaved writers each see the other's appends.
	_, err = a.Append(ctx, contractstest.Receipt())
	require.NoError(t, err)
	entry, err := b.Append(ctx, contractstest.Receipt())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.Sequence)
	entry, err = a.Append(ctx, contractstest.Receipt())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), entry.Sequence)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(c *verification.Chain) {
			defer wg.Done()
			_, err := c.Append(ctx, contractstest.Receipt())
			assert.NoError(t, err)
		}([]*verification.Chain{a, b}[i%2])
	}
	wg.Wait()

	report, err := verification.VerifyChainFile(cfg.ChainPath, nil, verification.RequireSigned(true))
	require.NoError(t, err)
	assert.True(t, report.Verified, report.Summary)
	assert.Equal(t, 11, report.Entries)
}

func TestChain_CorruptTailRefusesAppend(t *testing.T) {
	cfg := signedChainConfig(t)
	chain, err := verification.NewChain(cfg)
	require.NoError(t, err)
	_, err = chain.Append(context.Background(), contractstest.Receipt())
	require.NoError(t, err)

	f, err := os.OpenFile(cfg.ChainPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{truncated\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = chain.Append(context.Background(), contractstest.Receipt())
	require.ErrorContains(t, err, "last entry")
}

func TestChain_RequireSignedRejectsUnsigned(t *testing.T) {
	cfg := verification.FallbackConfig{
		ChainPath:             filepath.Join(t.TempDir(), "fallback.jsonl"),
		RequireSignedReceipts: true,
	}
	chain, err := verification.NewChain(cfg)
	require.NoError(t, err)

	_, err = chain.Verify(context.Background(), contractstest.Receipt())
	require.ErrorIs(t, err, verification.ErrUnsignedEntry)
	_, statErr := os.Stat(cfg.ChainPath)
	assert.True(t, os.IsNotExist(statErr), "no entry may be written")
}

func TestChain_UnsignedEntryStaysPending(t *testing.T) {
	chain, err := verification.NewChain(verification.FallbackConfig{
		ChainPath: filepath.Join(t.TempDir(), "fallback.jsonl"),
	})
	require.NoError(t, err)

	rec, err := chain.Verify(context.Background(), contractstest.Receipt())
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPending, rec.Status)
}

func TestNewChain_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	tests := []struct {
		name  string
		cfg   verification.FallbackConfig
		field string
	}{
		{"missing path", verification.FallbackConfig{}, "fallback.chain_path"},
		{"parent is a file", verification.FallbackConfig{ChainPath: filepath.Join(blocker, "chain.jsonl")}, "fallback.chain_path"},
		{"key id without seed", verification.FallbackConfig{ChainPath: filepath.Join(dir, "c.jsonl"), SigningKeyID: "k"}, "fallback.signing_key_seed"},
		{"seed without key id", verification.FallbackConfig{ChainPath: filepath.Join(dir, "c.jsonl"), SigningKeySeed: testSeed}, "fallback.signing_key_id"},
		{"short seed", verification.FallbackConfig{ChainPath: filepath.Join(dir, "c.jsonl"), SigningKeyID: "k", SigningKeySeed: []byte("short")}, "fallback.signing_key_seed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verification.NewChain(tt.cfg)
			var cerr *verification.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}
