// Package store persists intent audit records, verification attempts and
// the per-user latest-record projection.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("store: not found")
	// ErrChainConflict is returned when a compare-and-swap finds a
	// chain_hash other than the expected one.
	ErrChainConflict = errors.New("store: chain hash changed concurrently")
	// ErrSealed is returned when an upsert would overwrite a record that
	// already carries settlement lineage.
	ErrSealed = fmt.Errorf("store: %w", contracts.ErrLineageAlreadyExtended)
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500

	latestKeyPrefix = "intent_audit.latest."
)

// Store is implemented by every backend.
type Store interface {
	// PersistIntentAuditRecord upserts the record keyed by intent_id and
	// moves the user's latest projection to it. A stored record carrying
	// settlement lineage is never overwritten: the call returns ErrSealed
	// unless rec is that same record.
	PersistIntentAuditRecord(ctx context.Context, rec contracts.IntentAuditRecord) error
	// ReplaceIntentAuditRecord swaps in rec only if the stored chain_hash
	// still equals prevChainHash.
	ReplaceIntentAuditRecord(ctx context.Context, rec contracts.IntentAuditRecord, prevChainHash string) error
	GetIntentAuditRecord(ctx context.Context, intentID string) (*contracts.IntentAuditRecord, error)
	// ListIntentAuditRecords returns newest first. An empty userID lists
	// every user.
	ListIntentAuditRecords(ctx context.Context, userID string, limit int) ([]contracts.IntentAuditRecord, error)
	LatestIntentAuditRecord(ctx context.Context, userID string) (*contracts.IntentAuditRecord, error)

	// PersistVerificationRecord inserts a record. Existing ids are never
	// overwritten.
	PersistVerificationRecord(ctx context.Context, rec contracts.VerificationRecord) error
	// ListVerificationRecords returns every attempt for a receipt, oldest
	// first.
	ListVerificationRecords(ctx context.Context, receiptID string) ([]contracts.VerificationRecord, error)
}

// LatestKey is the settings key of a user's latest-record projection.
func LatestKey(userID string) string {
	return latestKeyPrefix + userID
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func checkRecord(rec contracts.IntentAuditRecord) error {
	return rec.VerifyChain()
}

func sealed(rec contracts.IntentAuditRecord) bool {
	return rec.SettlementID != ""
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return contracts.NewValidationError(contracts.KindEmptyField, field, "")
	}
	return nil
}
