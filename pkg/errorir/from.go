package errorir

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/tradetrust/pkg/audit"
	"github.com/Mindburn-Labs/tradetrust/pkg/config"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/firewall"
	"github.com/Mindburn-Labs/tradetrust/pkg/store"
	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

// FromError renders any core error. A nil error yields a zero value and
// false.
func FromError(err error) (ErrorIR, bool) {
	if err == nil {
		return ErrorIR{}, false
	}
	var existing ErrorIR
	if errors.As(err, &existing) {
		return existing, true
	}
	code, field := codeFor(err)
	return New(code).WithDetail(err.Error()).WithField(field).Build(), true
}

func codeFor(err error) (code, field string) {
	var execErr *executor.Error
	if errors.As(err, &execErr) {
		return executorCode(execErr), execErr.Field
	}

	var endpointErr *firewall.EndpointError
	if errors.As(err, &endpointErr) {
		return CodeEndpointNotAllowed, ""
	}
	var verr *contracts.ArtifactValidationError
	if errors.As(err, &verr) {
		return CodeInvalidArtifact, verr.Field
	}
	var serr *contracts.SerializationError
	if errors.As(err, &serr) {
		return CodeSerialization, serr.Artifact
	}
	var cfgErr *config.FieldError
	if errors.As(err, &cfgErr) {
		return CodeConfigInvalid, cfgErr.Field
	}
	var vcfgErr *verification.ConfigError
	if errors.As(err, &vcfgErr) {
		return CodeConfigInvalid, vcfgErr.Field
	}

	switch {
	case errors.Is(err, contracts.ErrLineageAlreadyExtended):
		return CodeLineageExtended, "settlement_id"
	case errors.Is(err, store.ErrChainConflict):
		return CodeChainConflict, "chain_hash"
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound, ""
	case errors.Is(err, firewall.ErrToolBlocked):
		return CodeToolNotAllowed, ""
	case errors.Is(err, firewall.ErrApprovalRequired):
		return CodeApprovalRequired, ""
	case errors.Is(err, firewall.ErrInvalidParams):
		return CodeSchemaMismatch, ""
	case errors.Is(err, verification.ErrUnsignedEntry):
		return CodeUnsignedEntry, ""
	case errors.Is(err, verification.ErrUnavailable):
		return CodeVerifierUnavail, ""
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout, ""
	case errors.Is(err, context.Canceled):
		return CodeCanceled, ""
	}

	var perr *audit.PersistenceError
	if errors.As(err, &perr) {
		return CodePersistenceFailed, ""
	}
	return CodeInternal, ""
}

func executorCode(e *executor.Error) string {
	switch e.Kind {
	case executor.KindInvalidParameters:
		return CodeInvalidParameters
	case executor.KindAuthorization:
		var endpointErr *firewall.EndpointError
		if errors.As(e, &endpointErr) {
			return CodeEndpointNotAllowed
		}
		return CodeLiveNotAuthorized
	case executor.KindPolicyRejection:
		return CodePolicyRejected
	case executor.KindSerialization:
		return CodeSerialization
	case executor.KindVenue:
		return CodeVenueFailed
	default:
		return CodeInternal
	}
}
