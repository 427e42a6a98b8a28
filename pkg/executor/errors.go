package executor

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Kind classifies an execution failure.
type Kind string

const (
	KindInvalidParameters Kind = "invalid_parameters"
	KindAuthorization     Kind = "authorization"
	KindPolicyRejection   Kind = "policy_rejection"
	KindSerialization     Kind = "serialization"
	KindVenue             Kind = "venue"
)

// Error is the single error type returned by Engine.Execute. Field names
// the offending input or the exceeded bound.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("execution %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("execution %s: %s: %s", e.Kind, e.Field, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the execution error kind of err, or "" if err is not an
// execution error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidParam(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParameters, Field: field, Message: fmt.Sprintf(format, args...)}
}

func unauthorized(field, format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Field: field, Message: fmt.Sprintf(format, args...)}
}

func policyRejection(field, format string, args ...any) *Error {
	return &Error{Kind: KindPolicyRejection, Field: field, Message: fmt.Sprintf(format, args...)}
}

// fromArtifactError maps artifact-level failures onto execution kinds.
func fromArtifactError(err error) *Error {
	var verr *contracts.ArtifactValidationError
	if errors.As(err, &verr) {
		return &Error{Kind: KindInvalidParameters, Field: verr.Field, Message: verr.Error(), Err: err}
	}
	var serr *contracts.SerializationError
	if errors.As(err, &serr) {
		return &Error{Kind: KindSerialization, Field: serr.Artifact, Message: serr.Error(), Err: err}
	}
	return &Error{Kind: KindSerialization, Message: err.Error(), Err: err}
}
