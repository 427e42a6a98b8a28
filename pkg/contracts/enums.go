package contracts

import (
	"fmt"
	"strings"
)

// ExecutionMode selects simulated or real order routing.
type ExecutionMode string

const (
	ModePaper ExecutionMode = "paper"
	ModeLive  ExecutionMode = "live"
)

// ParseExecutionMode parses a boundary string case-insensitively.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePaper, ModeLive:
		return m, nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide parses a boundary string case-insensitively.
func ParseSide(s string) (Side, error) {
	switch v := Side(strings.ToLower(strings.TrimSpace(s))); v {
	case SideBuy, SideSell:
		return v, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// PaperLivePolicy governs whether live execution may ever be authorized.
type PaperLivePolicy string

const (
	PolicyPaperOnly   PaperLivePolicy = "paper_only"
	PolicyPaperFirst  PaperLivePolicy = "paper_first"
	PolicyLiveAllowed PaperLivePolicy = "live_allowed"
)

// DefaultPaperLivePolicy applies when neither the call nor its context names one.
const DefaultPaperLivePolicy = PolicyPaperFirst

// ParsePaperLivePolicy parses a boundary string case-insensitively.
func ParsePaperLivePolicy(s string) (PaperLivePolicy, error) {
	switch p := PaperLivePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyPaperOnly, PolicyPaperFirst, PolicyLiveAllowed:
		return p, nil
	}
	return "", fmt.Errorf("unknown paper/live policy %q", s)
}

// SharingScope bounds what a copytrading follower may share upstream.
type SharingScope string

const (
	ScopeNone                SharingScope = "none"
	ScopeSignalsOnly         SharingScope = "signals_only"
	ScopeSignalsAndExecution SharingScope = "signals_and_execution"
	ScopeFullAudit           SharingScope = "full_audit"
)

// ParseSharingScope parses a boundary string case-insensitively.
func ParseSharingScope(s string) (SharingScope, error) {
	switch v := SharingScope(strings.ToLower(strings.TrimSpace(s))); v {
	case ScopeNone, ScopeSignalsOnly, ScopeSignalsAndExecution, ScopeFullAudit:
		return v, nil
	}
	return "", fmt.Errorf("unknown information sharing scope %q", s)
}

// VerificationBackend names the backend that produced a verification record.
type VerificationBackend string

const (
	BackendEigenCloudPrimary VerificationBackend = "eigencloud_primary"
	BackendSignedFallback    VerificationBackend = "signed_fallback"
)

// VerificationStatus is the outcome of a single verification attempt.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusFailed   VerificationStatus = "failed"
)

// SubmissionStatus records what is known about a live order after the
// venue call returned.
type SubmissionStatus string

const (
	// SubmissionAccepted means the venue acknowledged the order.
	SubmissionAccepted SubmissionStatus = "accepted"
	// SubmissionUnknown means the call failed after the order may have
	// left the process, e.g. a timeout. The order must be reconciled
	// against the venue by decision hash.
	SubmissionUnknown SubmissionStatus = "unknown"
)
