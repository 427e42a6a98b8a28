// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and BLAKE3 content hashing for trade artifacts.
//
// Every "hash of X" field in the trust core is produced here: the value is
// marshaled to JSON, transformed into its JCS form, hashed with BLAKE3-256
// and rendered as 64 lowercase hex characters.
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Struct tags are respected because v is first marshaled with encoding/json;
// the JCS transform then sorts object keys, normalizes number formatting and
// removes the HTML escaping that encoding/json applies.
func JCS(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}

	out, err := jcs.Transform(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v any) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns the BLAKE3 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}
