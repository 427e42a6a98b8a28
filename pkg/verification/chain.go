package verification

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/crypto"
)

// GenesisHash is the prev_hash of the first chain entry.
var GenesisHash = strings.Repeat("0", canonicalize.DigestLength)

// ChainEntry is one line of the fallback chain file.
type ChainEntry struct {
	Sequence      uint64    `json:"sequence"`
	ReceiptID     string    `json:"receipt_id"`
	ReceiptHash   string    `json:"receipt_hash"`
	DecisionHash  string    `json:"decision_hash"`
	PrevHash      string    `json:"prev_hash"`
	Timestamp     time.Time `json:"timestamp"`
	EntryHash     string    `json:"entry_hash"`
	SignatureType string    `json:"signature_type,omitempty"`
	PublicKey     string    `json:"public_key,omitempty"`
	Signature     string    `json:"signature,omitempty"`
}

// Signed reports whether the entry carries a signature.
func (e ChainEntry) Signed() bool { return e.Signature != "" }

type entrySeed struct {
	Sequence     uint64    `json:"sequence"`
	ReceiptID    string    `json:"receipt_id"`
	ReceiptHash  string    `json:"receipt_hash"`
	DecisionHash string    `json:"decision_hash"`
	PrevHash     string    `json:"prev_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

// ComputeHash hashes every field except the hash and signature fields.
func (e ChainEntry) ComputeHash() (string, error) {
	return canonicalize.CanonicalHash(entrySeed{
		Sequence:     e.Sequence,
		ReceiptID:    e.ReceiptID,
		ReceiptHash:  e.ReceiptHash,
		DecisionHash: e.DecisionHash,
		PrevHash:     e.PrevHash,
		Timestamp:    e.Timestamp.UTC(),
	})
}

// ProofRef is the reference stored on the verification record.
func (e ChainEntry) ProofRef() string {
	return fmt.Sprintf("fallback:%d:%s", e.Sequence, e.EntryHash)
}

// Chain is the local append-only, hash-linked and optionally signed
// verification log.
type Chain struct {
	mu            sync.Mutex
	path          string
	signer        *crypto.Ed25519Signer
	requireSigned bool
	logger        *slog.Logger
	now           func() time.Time
}

// NewChain checks that the chain file can be created and derives the
// signing key when one is configured.
func NewChain(cfg FallbackConfig, opts ...Option) (*Chain, error) {
	o := buildOptions(opts)

	path := strings.TrimSpace(cfg.ChainPath)
	if path == "" {
		return nil, &ConfigError{Field: "fallback.chain_path", Reason: "required"}
	}
	if err := ensureWritableDir(filepath.Dir(path)); err != nil {
		return nil, &ConfigError{Field: "fallback.chain_path", Reason: err.Error()}
	}

	var signer *crypto.Ed25519Signer
	keyID := strings.TrimSpace(cfg.SigningKeyID)
	switch {
	case keyID != "" && len(cfg.SigningKeySeed) > 0:
		s, err := crypto.DeriveEd25519Signer(cfg.SigningKeySeed, keyID)
		if err != nil {
			return nil, &ConfigError{Field: "fallback.signing_key_seed", Reason: err.Error()}
		}
		signer = s
	case keyID != "":
		return nil, &ConfigError{Field: "fallback.signing_key_seed", Reason: "required when signing_key_id is set"}
	case len(cfg.SigningKeySeed) > 0:
		return nil, &ConfigError{Field: "fallback.signing_key_id", Reason: "required when signing_key_seed is set"}
	}

	return &Chain{
		path:          path,
		signer:        signer,
		requireSigned: cfg.RequireSignedReceipts,
		logger:        o.logger.With("backend", string(contracts.BackendSignedFallback)),
		now:           o.now,
	}, nil
}

// ensureWritableDir creates dir if needed and proves it accepts new files.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".chain-writable-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	_ = os.Remove(name)
	return nil
}

// Path returns the chain file location.
func (c *Chain) Path() string { return c.path }

// Signer returns the signing key, or nil for an unsigned chain.
func (c *Chain) Signer() *crypto.Ed25519Signer { return c.signer }

// Append links a new entry for the receipt onto the chain.
func (c *Chain) Append(ctx context.Context, receipt contracts.ExecutionReceipt) (ChainEntry, error) {
	if c.signer == nil && c.requireSigned {
		return ChainEntry{}, ErrUnsignedEntry
	}
	receiptHash, err := receipt.Hash()
	if err != nil {
		return ChainEntry{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600) //nolint:gosec // path is operator configured
	if err != nil {
		return ChainEntry{}, fmt.Errorf("fallback chain: open: %w", err)
	}
	defer func() { _ = f.Close() }()
	// Other processes may append to the same file; the tail is only
	// trusted while the lock is held.
	if err := lockFile(f); err != nil {
		return ChainEntry{}, fmt.Errorf("fallback chain: lock: %w", err)
	}
	defer func() { _ = unlockFile(f) }()

	lastSeq, lastHash, err := readTail(f)
	if err != nil {
		return ChainEntry{}, err
	}

	entry := ChainEntry{
		Sequence:     lastSeq + 1,
		ReceiptID:    receipt.ReceiptID,
		ReceiptHash:  receiptHash,
		DecisionHash: receipt.DecisionHash,
		PrevHash:     lastHash,
		Timestamp:    c.now().UTC(),
	}
	entry.EntryHash, err = entry.ComputeHash()
	if err != nil {
		return ChainEntry{}, fmt.Errorf("fallback chain: hash entry: %w", err)
	}
	if c.signer != nil {
		sig, err := c.signer.Sign([]byte(entry.EntryHash))
		if err != nil {
			return ChainEntry{}, fmt.Errorf("fallback chain: sign entry: %w", err)
		}
		entry.Signature = sig
		entry.SignatureType = c.signer.SignatureType()
		entry.PublicKey = c.signer.PublicKey()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return ChainEntry{}, fmt.Errorf("fallback chain: marshal entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return ChainEntry{}, fmt.Errorf("fallback chain: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return ChainEntry{}, fmt.Errorf("fallback chain: sync: %w", err)
	}

	c.logger.InfoContext(ctx, "fallback chain entry appended",
		"receipt_id", entry.ReceiptID, "sequence", entry.Sequence, "signed", entry.Signed())
	return entry, nil
}

// Verify appends the receipt and returns the resulting record. Signed
// entries are verified; an unsigned entry only proves linkage and stays
// pending.
func (c *Chain) Verify(ctx context.Context, receipt contracts.ExecutionReceipt) (contracts.VerificationRecord, error) {
	entry, err := c.Append(ctx, receipt)
	if err != nil {
		return contracts.VerificationRecord{}, err
	}
	status := contracts.StatusPending
	if entry.Signed() {
		status = contracts.StatusVerified
	}
	return contracts.NewVerificationRecord(receipt.ReceiptID, contracts.BackendSignedFallback, entry.ProofRef(), status, entry.Timestamp), nil
}

// Entries reads the whole chain.
func (c *Chain) Entries() ([]ChainEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return readEntries(c.path)
}

// maxEntryBytes bounds a single chain line, matching the reader's buffer.
const maxEntryBytes = 1 << 20

// readTail returns the sequence and hash of the last entry in f, or the
// genesis values for an empty file.
func readTail(f *os.File) (uint64, string, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, "", fmt.Errorf("fallback chain: stat: %w", err)
	}
	size := info.Size()
	window := size
	if window > maxEntryBytes+1 {
		window = maxEntryBytes + 1
	}
	buf := make([]byte, window)
	if _, err := f.ReadAt(buf, size-window); err != nil && !errors.Is(err, io.EOF) {
		return 0, "", fmt.Errorf("fallback chain: read tail: %w", err)
	}

	text := bytes.TrimRight(buf, " \t\r\n")
	if len(text) == 0 {
		return 0, GenesisHash, nil
	}
	if i := bytes.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else if window < size {
		return 0, "", errors.New("fallback chain: last entry exceeds size limit")
	}
	var last ChainEntry
	if err := json.Unmarshal(bytes.TrimSpace(text), &last); err != nil {
		return 0, "", fmt.Errorf("fallback chain: last entry: %w", err)
	}
	return last.Sequence, last.EntryHash, nil
}

func readEntries(path string) ([]ChainEntry, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator configured
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fallback chain: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []ChainEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntryBytes)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e ChainEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("fallback chain: line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fallback chain: read: %w", err)
	}
	return entries, nil
}
