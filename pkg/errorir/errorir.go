// Package errorir renders core errors into the RFC 9457 problem envelope
// the orchestration layer consumes, with a stable error code and a retry
// classification.
package errorir

import (
	"fmt"
	"net/http"
	"strings"
)

// Classification defines the retry behavior for errors.
type Classification string

const (
	// Retryable indicates a transient failure that may succeed on retry.
	Retryable Classification = "RETRYABLE"
	// NonRetryable indicates a permanent failure.
	NonRetryable Classification = "NON_RETRYABLE"
)

// Category is the third segment of an error code.
type Category string

const (
	CategoryValidation    Category = "VALIDATION"
	CategoryAuth          Category = "AUTH"
	CategoryPolicy        Category = "POLICY"
	CategorySerialization Category = "SERIALIZATION"
	CategoryVerification  Category = "VERIFICATION"
	CategoryPersistence   Category = "PERSISTENCE"
	CategoryResource      Category = "RESOURCE"
	CategoryEffect        Category = "EFFECT"
	CategoryConfig        Category = "CONFIG"
	CategoryInternal      Category = "INTERNAL"
)

// CodePrefix starts every core error code.
const CodePrefix = "TRADETRUST/CORE/"

// Core error codes.
const (
	CodeInvalidParameters  = "TRADETRUST/CORE/VALIDATION/INVALID_PARAMETERS"
	CodeInvalidArtifact    = "TRADETRUST/CORE/VALIDATION/INVALID_ARTIFACT"
	CodeSchemaMismatch     = "TRADETRUST/CORE/VALIDATION/SCHEMA_MISMATCH"
	CodeLiveNotAuthorized  = "TRADETRUST/CORE/AUTH/LIVE_NOT_AUTHORIZED"
	CodeEndpointNotAllowed = "TRADETRUST/CORE/AUTH/ENDPOINT_NOT_ALLOWED"
	CodeToolNotAllowed     = "TRADETRUST/CORE/AUTH/TOOL_NOT_ALLOWED"
	CodeApprovalRequired   = "TRADETRUST/CORE/AUTH/APPROVAL_REQUIRED"
	CodePolicyRejected     = "TRADETRUST/CORE/POLICY/REJECTED"
	CodeSerialization      = "TRADETRUST/CORE/SERIALIZATION/CANONICALIZATION_FAILED"
	CodeVerifierUnavail    = "TRADETRUST/CORE/VERIFICATION/UNAVAILABLE"
	CodeUnsignedEntry      = "TRADETRUST/CORE/VERIFICATION/UNSIGNED_ENTRY"
	CodePersistenceFailed  = "TRADETRUST/CORE/PERSISTENCE/WRITE_FAILED"
	CodeChainConflict      = "TRADETRUST/CORE/PERSISTENCE/CHAIN_CONFLICT"
	CodeNotFound           = "TRADETRUST/CORE/RESOURCE/NOT_FOUND"
	CodeLineageExtended    = "TRADETRUST/CORE/RESOURCE/LINEAGE_ALREADY_EXTENDED"
	CodeVenueFailed        = "TRADETRUST/CORE/EFFECT/VENUE_ERROR"
	CodeTimeout            = "TRADETRUST/CORE/EFFECT/TIMEOUT"
	CodeCanceled           = "TRADETRUST/CORE/EFFECT/CANCELED"
	CodeSubmissionUnknown  = "TRADETRUST/CORE/EFFECT/SUBMISSION_UNKNOWN"
	CodeConfigInvalid      = "TRADETRUST/CORE/CONFIG/INVALID"
	CodeInternal           = "TRADETRUST/CORE/INTERNAL/UNKNOWN"
)

// ErrorIR is the problem envelope.
type ErrorIR struct {
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	Status   int     `json:"status"`
	Detail   string  `json:"detail,omitempty"`
	Instance string  `json:"instance,omitempty"`
	Core     Details `json:"tradetrust"`
}

// Details carries the core extensions.
type Details struct {
	ErrorCode      string         `json:"error_code"`
	Namespace      string         `json:"namespace"`
	Classification Classification `json:"classification"`
	Field          string         `json:"field,omitempty"`
	CauseChain     []Cause        `json:"canonical_cause_chain,omitempty"`
}

// Cause is one entry of the cause chain.
type Cause struct {
	ErrorCode string `json:"error_code"`
	At        string `json:"at"` // JSON Pointer path
}

// Error lets an ErrorIR travel as a Go error.
func (e ErrorIR) Error() string {
	if e.Detail == "" {
		return e.Core.ErrorCode
	}
	return e.Core.ErrorCode + ": " + e.Detail
}

// Retryable reports whether the caller may retry.
func (e ErrorIR) Retryable() bool {
	return e.Core.Classification == Retryable
}

// Builder provides a fluent interface for building ErrorIR.
type Builder struct {
	err ErrorIR
}

// New starts a builder for code. Namespace, classification and status are
// derived from the code's category.
func New(code string) *Builder {
	category := CategoryOf(code)
	return &Builder{
		err: ErrorIR{
			Type:   fmt.Sprintf("https://tradetrust.dev/errors/%s", strings.ToLower(strings.ReplaceAll(code, "/", "-"))),
			Title:  defaultTitle(category),
			Status: statusFor(code, category),
			Core: Details{
				ErrorCode:      code,
				Namespace:      namespaceOf(code),
				Classification: classify(code, category),
			},
		},
	}
}

func (b *Builder) WithTitle(title string) *Builder {
	b.err.Title = title
	return b
}

func (b *Builder) WithDetail(detail string) *Builder {
	b.err.Detail = detail
	return b
}

func (b *Builder) WithStatus(status int) *Builder {
	b.err.Status = status
	return b
}

func (b *Builder) WithInstance(instance string) *Builder {
	b.err.Instance = instance
	return b
}

// WithField names the offending input and adds it to the cause chain as a
// JSON Pointer.
func (b *Builder) WithField(field string) *Builder {
	if field == "" {
		return b
	}
	b.err.Core.Field = field
	return b.WithCause(b.err.Core.ErrorCode, "/"+strings.ReplaceAll(field, ".", "/"))
}

// WithCause adds a cause to the error chain.
func (b *Builder) WithCause(code, at string) *Builder {
	b.err.Core.CauseChain = append(b.err.Core.CauseChain, Cause{ErrorCode: code, At: at})
	return b
}

func (b *Builder) Build() ErrorIR {
	return b.err
}

// CategoryOf extracts the category segment of code.
func CategoryOf(code string) Category {
	rest, ok := strings.CutPrefix(code, CodePrefix)
	if !ok {
		return CategoryInternal
	}
	cat, _, _ := strings.Cut(rest, "/")
	return Category(cat)
}

func namespaceOf(code string) string {
	parts := strings.Split(code, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return "UNKNOWN"
}

func classify(code string, c Category) Classification {
	// Resubmitting an order of unknown outcome could fill it twice.
	if code == CodeSubmissionUnknown {
		return NonRetryable
	}
	switch c {
	case CategoryVerification, CategoryPersistence, CategoryEffect:
		return Retryable
	default:
		return NonRetryable
	}
}

func statusFor(code string, c Category) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLineageExtended, CodeChainConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeVenueFailed, CodeSubmissionUnknown:
		return http.StatusBadGateway
	}
	switch c {
	case CategoryValidation, CategoryConfig:
		return http.StatusBadRequest
	case CategoryAuth:
		return http.StatusForbidden
	case CategoryPolicy:
		return http.StatusUnprocessableEntity
	case CategoryVerification, CategoryPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func defaultTitle(c Category) string {
	switch c {
	case CategoryValidation:
		return "Invalid input"
	case CategoryAuth:
		return "Not authorized"
	case CategoryPolicy:
		return "Rejected by policy"
	case CategorySerialization:
		return "Serialization failure"
	case CategoryVerification:
		return "Verification backend unavailable"
	case CategoryPersistence:
		return "Persistence failure"
	case CategoryResource:
		return "Resource state"
	case CategoryEffect:
		return "External effect failed"
	case CategoryConfig:
		return "Invalid configuration"
	default:
		return "Internal error"
	}
}
