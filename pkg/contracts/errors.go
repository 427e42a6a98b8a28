package contracts

import (
	"fmt"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
)

// ValidationKind classifies a structural artifact validation failure.
type ValidationKind string

const (
	KindEmptyField        ValidationKind = "empty_field"
	KindNilIdentifier     ValidationKind = "nil_identifier"
	KindNonPositiveNumber ValidationKind = "non_positive_number"
	KindInvalidHash       ValidationKind = "invalid_hash"
	KindInvalidValue      ValidationKind = "invalid_value"
)

// ArtifactValidationError names the offending field of an artifact that
// failed structural validation.
type ArtifactValidationError struct {
	Kind   ValidationKind
	Field  string
	Detail string
}

func (e *ArtifactValidationError) Error() string {
	switch e.Kind {
	case KindEmptyField:
		return fmt.Sprintf("field %q must not be empty", e.Field)
	case KindNilIdentifier:
		return fmt.Sprintf("field %q must not be a nil identifier", e.Field)
	case KindNonPositiveNumber:
		return fmt.Sprintf("field %q must be a positive number", e.Field)
	case KindInvalidHash:
		return fmt.Sprintf("field %q must be a %d-character lowercase hex digest", e.Field, canonicalize.DigestLength)
	default:
		if e.Detail != "" {
			return fmt.Sprintf("field %q has an invalid value: %s", e.Field, e.Detail)
		}
		return fmt.Sprintf("field %q has an invalid value", e.Field)
	}
}

// SerializationError reports a failure to canonicalize or hash an artifact.
// It indicates an internal fault, not bad caller input.
type SerializationError struct {
	Artifact string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.Artifact, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// NewValidationError builds a validation error for callers outside this
// package that check their own artifacts.
func NewValidationError(kind ValidationKind, field, detail string) *ArtifactValidationError {
	return &ArtifactValidationError{Kind: kind, Field: field, Detail: detail}
}

func emptyField(field string) error {
	return &ArtifactValidationError{Kind: KindEmptyField, Field: field}
}

func nilIdentifier(field string) error {
	return &ArtifactValidationError{Kind: KindNilIdentifier, Field: field}
}

func nonPositive(field string) error {
	return &ArtifactValidationError{Kind: KindNonPositiveNumber, Field: field}
}

func invalidValue(field, detail string) error {
	return &ArtifactValidationError{Kind: KindInvalidValue, Field: field, Detail: detail}
}

// ValidateDigest is the single check shared by every "hash of X" field.
func ValidateDigest(field, value string) error {
	if value == "" {
		return emptyField(field)
	}
	if !canonicalize.IsDigest(value) {
		return &ArtifactValidationError{Kind: KindInvalidHash, Field: field}
	}
	return nil
}

// validateOptionalDigest accepts an absent value but rejects a malformed one.
func validateOptionalDigest(field, value string) error {
	if value == "" {
		return nil
	}
	return ValidateDigest(field, value)
}

// hashArtifact canonicalizes and hashes v, wrapping failures as
// SerializationError.
func hashArtifact(name string, v any) (string, error) {
	h, err := canonicalize.CanonicalHash(v)
	if err != nil {
		return "", &SerializationError{Artifact: name, Err: err}
	}
	return h, nil
}
