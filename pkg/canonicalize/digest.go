package canonicalize

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

const (
	// HashAlgorithm identifies the content hash used by every artifact.
	HashAlgorithm = "blake3"
	// ContractVersion is the artifact contract version bound into chain hashes.
	ContractVersion = "v1"
	// DigestLength is the length of a rendered digest in hex characters.
	DigestLength = 64
)

// HashBytes computes the BLAKE3-256 digest of data as lowercase hex.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsDigest reports whether s is a rendered digest: exactly 64 lowercase
// hex characters.
func IsDigest(s string) bool {
	if len(s) != DigestLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
