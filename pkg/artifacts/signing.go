package artifacts

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/crypto"
)

var (
	ErrSignerNotConfigured = errors.New("artifacts: signer not configured (fail-closed)")
)

type manifestSeed struct {
	IntentID      string            `json:"intent_id"`
	HashAlgorithm string            `json:"hash_algorithm"`
	Files         map[string]string `json:"files"`
	UpdatedAt     string            `json:"updated_at"`
}

func manifestDigest(m *Manifest) (string, error) {
	return canonicalize.CanonicalHash(manifestSeed{
		IntentID:      m.IntentID,
		HashAlgorithm: m.HashAlgorithm,
		Files:         m.Files,
		UpdatedAt:     m.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
	})
}

// SignManifest signs the canonical digest of the manifest body and stamps
// signature metadata. Any previous signature is cleared first.
func SignManifest(m *Manifest, signer crypto.Signer) error {
	if m == nil {
		return errors.New("artifacts: nil manifest")
	}
	m.Signature, m.SignatureType, m.PublicKey = "", "", ""
	if signer == nil {
		return ErrSignerNotConfigured
	}

	digest, err := manifestDigest(m)
	if err != nil {
		return fmt.Errorf("artifacts: digest manifest: %w", err)
	}
	sig, err := signer.Sign([]byte(digest))
	if err != nil {
		return fmt.Errorf("artifacts: sign failed: %w", err)
	}
	m.Signature = sig
	m.SignatureType = crypto.SigPrefixEd25519 + crypto.SigSeparator + signer.KeyID()
	m.PublicKey = signer.PublicKey()
	return nil
}

// VerifyManifest checks the embedded signature against the embedded key.
func VerifyManifest(m *Manifest) (bool, error) {
	if m.Signature == "" {
		return false, errors.New("artifacts: manifest is unsigned")
	}
	digest, err := manifestDigest(m)
	if err != nil {
		return false, fmt.Errorf("artifacts: digest manifest: %w", err)
	}
	return crypto.Verify(m.PublicKey, m.Signature, []byte(digest))
}
