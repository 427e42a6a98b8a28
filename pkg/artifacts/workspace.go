package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/crypto"
)

// Workspace file names.
const (
	FileIntent     = "intent.json"
	FileReceipt    = "receipt.json"
	FileSettlement = "settlement.json"
	FileManifest   = "manifest.json"
)

// VerificationFile names the n-th (1-based) verification attempt.
func VerificationFile(n int) string {
	return fmt.Sprintf("verification-%d.json", n)
}

// Manifest lists the content hash of every file in an intent workspace.
type Manifest struct {
	IntentID      string            `json:"intent_id"`
	HashAlgorithm string            `json:"hash_algorithm"`
	Files         map[string]string `json:"files"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SignatureType string            `json:"signature_type,omitempty"`
	PublicKey     string            `json:"public_key,omitempty"`
	Signature     string            `json:"signature,omitempty"`
}

// Workspace writes and checks per-intent artifact directories.
type Workspace struct {
	store  Store
	signer crypto.Signer
	now    func() time.Time
}

// WorkspaceOption customizes a Workspace.
type WorkspaceOption func(*Workspace)

// WithManifestSigner signs every manifest written.
func WithManifestSigner(s crypto.Signer) WorkspaceOption {
	return func(w *Workspace) { w.signer = s }
}

// WithWorkspaceClock sets the manifest timestamp source.
func WithWorkspaceClock(now func() time.Time) WorkspaceOption {
	return func(w *Workspace) { w.now = now }
}

func NewWorkspace(store Store, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{store: store, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path is the workspace location recorded on the audit record.
func (w *Workspace) Path(intentID string) string {
	return w.store.Location(intentID)
}

// WriteExecution writes the intent, receipt and every verification attempt,
// then the manifest. It returns the workspace path.
func (w *Workspace) WriteExecution(ctx context.Context, intent contracts.Intent, receipt contracts.ExecutionReceipt, verifications []contracts.VerificationRecord) (string, error) {
	intentID := intent.IntentID.String()
	files := map[string]any{
		FileIntent:  intent,
		FileReceipt: receipt,
	}
	for i, v := range verifications {
		files[VerificationFile(i+1)] = v
	}
	if err := w.writeFiles(ctx, intentID, files); err != nil {
		return "", err
	}
	return w.Path(intentID), nil
}

// WriteSettlement adds the settlement to an existing workspace.
func (w *Workspace) WriteSettlement(ctx context.Context, settlement contracts.RevenueShareSettlementReceipt) error {
	return w.writeFiles(ctx, settlement.IntentID, map[string]any{FileSettlement: settlement})
}

func (w *Workspace) writeFiles(ctx context.Context, intentID string, files map[string]any) error {
	if strings.TrimSpace(intentID) == "" {
		return errors.New("workspace: intent id is empty")
	}
	manifest, err := w.ReadManifest(ctx, intentID)
	if errors.Is(err, ErrNotFound) {
		manifest = &Manifest{IntentID: intentID, HashAlgorithm: canonicalize.HashAlgorithm, Files: map[string]string{}}
	} else if err != nil {
		return err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := canonicalize.JCS(files[name])
		if err != nil {
			return fmt.Errorf("workspace: canonicalize %s: %w", name, err)
		}
		if err := w.store.Put(ctx, intentID+"/"+name, data); err != nil {
			return fmt.Errorf("workspace: write %s: %w", name, err)
		}
		manifest.Files[name] = canonicalize.HashBytes(data)
	}

	manifest.UpdatedAt = w.now().UTC()
	if err := SignManifest(manifest, w.signer); err != nil && !errors.Is(err, ErrSignerNotConfigured) {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("workspace: marshal manifest: %w", err)
	}
	if err := w.store.Put(ctx, intentID+"/"+FileManifest, data); err != nil {
		return fmt.Errorf("workspace: write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads an intent's manifest.
func (w *Workspace) ReadManifest(ctx context.Context, intentID string) (*Manifest, error) {
	data, err := w.store.Get(ctx, intentID+"/"+FileManifest)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("workspace: corrupt manifest: %w", err)
	}
	if m.Files == nil {
		m.Files = map[string]string{}
	}
	return &m, nil
}

// Verify recomputes every listed file hash and checks the manifest
// signature. With a manifest signer configured the manifest must be signed
// by that key; otherwise a present signature is checked against its
// embedded key. It returns the names of files that failed.
func (w *Workspace) Verify(ctx context.Context, intentID string) ([]string, error) {
	m, err := w.ReadManifest(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if w.signer != nil && (m.Signature == "" || m.PublicKey != w.signer.PublicKey()) {
		return []string{FileManifest}, nil
	}
	if m.Signature != "" {
		ok, err := VerifyManifest(m)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []string{FileManifest}, nil
		}
	}

	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	var bad []string
	for _, name := range names {
		data, err := w.store.Get(ctx, intentID+"/"+name)
		if err != nil || canonicalize.HashBytes(data) != m.Files[name] {
			bad = append(bad, name)
		}
	}
	return bad, nil
}
