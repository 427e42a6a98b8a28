package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSeedLength is the shortest seed accepted for key derivation.
const MinSeedLength = 32

var chainKDFSalt = []byte("tradetrust-chain-kdf")

// DeriveEd25519Signer derives a deterministic Ed25519 key for keyID from a
// root seed using HKDF-SHA256. The same seed and key id always yield the
// same key, so a chain can be re-verified after restart.
func DeriveEd25519Signer(seed []byte, keyID string) (*Ed25519Signer, error) {
	if len(seed) < MinSeedLength {
		return nil, fmt.Errorf("signing seed must be at least %d bytes", MinSeedLength)
	}
	if keyID == "" {
		return nil, errors.New("key id is required")
	}

	kdf := hkdf.New(sha256.New, seed, chainKDFSalt, []byte(keyID))
	keySeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, keySeed); err != nil {
		return nil, fmt.Errorf("derive key %s: %w", keyID, err)
	}
	return NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(keySeed), keyID), nil
}
