package crypto

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// KeyRing holds public keys by key id so chain entries signed under rotated
// keys stay verifiable.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]string // keyID -> public key hex
}

// NewKeyRing creates a new empty KeyRing.
func NewKeyRing() *KeyRing {
	return &KeyRing{
		keys: make(map[string]string),
	}
}

// AddKey registers the public half of a signer.
func (k *KeyRing) AddKey(s Signer) {
	k.AddPublicKey(s.KeyID(), s.PublicKey())
}

// AddPublicKey registers a hex-encoded Ed25519 public key under keyID.
func (k *KeyRing) AddPublicKey(keyID, pubKeyHex string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[keyID] = strings.ToLower(pubKeyHex)
}

// RevokeKey removes a key from the keyring by ID.
func (k *KeyRing) RevokeKey(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, keyID)
}

// KeyIDs lists registered key ids in sorted order.
func (k *KeyRing) KeyIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PublicKey returns the registered key for keyID.
func (k *KeyRing) PublicKey(keyID string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pub, ok := k.keys[keyID]
	return pub, ok
}

// VerifyKey verifies a hex signature for a specific key.
func (k *KeyRing) VerifyKey(keyID string, message []byte, sigHex string) (bool, error) {
	pub, ok := k.PublicKey(keyID)
	if !ok {
		return false, fmt.Errorf("unknown or revoked key: %s", keyID)
	}
	return Verify(pub, sigHex, message)
}

// VerifySignatureType parses an "ed25519:<key id>" tag and verifies against
// the named key.
func (k *KeyRing) VerifySignatureType(sigType string, message []byte, sigHex string) (bool, error) {
	prefix, keyID, ok := strings.Cut(sigType, SigSeparator)
	if !ok || prefix != SigPrefixEd25519 || keyID == "" {
		return false, fmt.Errorf("invalid signature type format: %s", sigType)
	}
	return k.VerifyKey(keyID, message, sigHex)
}
