// Package audit assembles the hash-chained intent audit record from an
// executed receipt and its verification attempts, and extends it once with
// copytrade settlement lineage.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/tradetrust/pkg/artifacts"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/store"
)

// PersistenceError reports a durable write that did not complete. The
// record returned alongside it is still valid in memory.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrRecordSealed is returned by Resolve when the intent's record already
// carries settlement lineage. Such a record is never rebuilt.
var ErrRecordSealed = fmt.Errorf("audit: record is sealed: %w", contracts.ErrLineageAlreadyExtended)

// Resolver builds and persists intent audit records.
type Resolver struct {
	store     store.Store
	workspace *artifacts.Workspace
	locker    Locker
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Resolver.
type Option func(*Resolver)

func WithLocker(l Locker) Option { return func(r *Resolver) { r.locker = l } }

func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

func NewResolver(st store.Store, ws *artifacts.Workspace, opts ...Option) *Resolver {
	r := &Resolver{
		store:     st,
		workspace: ws,
		locker:    NewMemoryLocker(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "audit")
	return r
}

// Resolve persists the new verification attempts, writes the artifact
// workspace, and assembles and persists the audit record from the
// effective verification across every stored attempt for the receipt.
// It holds the same per-intent lock as ExtendWithLineage and returns
// ErrRecordSealed once the stored record carries lineage; the new attempts
// are still stored.
//
// Durability failures return the assembled record together with a
// *PersistenceError so the caller keeps a usable record.
func (r *Resolver) Resolve(ctx context.Context, intent contracts.Intent, receipt contracts.ExecutionReceipt, attempts []contracts.VerificationRecord) (*contracts.IntentAuditRecord, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if err := receipt.Validate(); err != nil {
		return nil, err
	}
	for i := range attempts {
		if attempts[i].ReceiptID != receipt.ReceiptID {
			return nil, contracts.NewValidationError(contracts.KindInvalidValue,
				fmt.Sprintf("verifications[%d].receipt_id", i), "does not match receipt")
		}
		if err := attempts[i].Validate(); err != nil {
			return nil, err
		}
	}

	intentID := intent.IntentID.String()
	var durability []error
	if unlock, err := r.locker.Lock(ctx, intentID); err != nil {
		// The store still refuses to overwrite a sealed row.
		durability = append(durability, &PersistenceError{Op: "acquire record lock", Err: err})
	} else {
		defer unlock()
	}

	for _, v := range attempts {
		if err := r.store.PersistVerificationRecord(ctx, v); err != nil {
			durability = append(durability, &PersistenceError{Op: "persist verification record", Err: err})
		}
	}

	all := attempts
	if stored, err := r.store.ListVerificationRecords(ctx, receipt.ReceiptID); err != nil {
		durability = append(durability, &PersistenceError{Op: "list verification records", Err: err})
	} else {
		all = mergeAttempts(stored, attempts)
	}
	effective := contracts.EffectiveVerification(all)

	switch stored, err := r.store.GetIntentAuditRecord(ctx, intentID); {
	case err == nil && stored.SettlementID != "":
		r.logger.WarnContext(ctx, "refusing to rebuild a record carrying lineage",
			"intent_id", intentID, "settlement_id", stored.SettlementID, "chain_hash", stored.ChainHash)
		return nil, ErrRecordSealed
	case err != nil && !errors.Is(err, store.ErrNotFound):
		durability = append(durability, &PersistenceError{Op: "read intent audit record", Err: err})
	}

	path, err := r.workspace.WriteExecution(ctx, intent, receipt, all)
	if err != nil {
		path = r.workspace.Path(intentID)
		durability = append(durability, &PersistenceError{Op: "write workspace", Err: err})
	}

	rec, err := contracts.NewIntentAuditRecord(intent, receipt, effective, path, r.now())
	if err != nil {
		return nil, err
	}

	if err := r.store.PersistIntentAuditRecord(ctx, rec); err != nil {
		if errors.Is(err, store.ErrSealed) {
			return nil, ErrRecordSealed
		}
		durability = append(durability, &PersistenceError{Op: "persist intent audit record", Err: err})
	}

	status := "absent"
	if effective != nil {
		status = string(effective.Status)
	}
	if len(durability) > 0 {
		err := errors.Join(durability...)
		r.logger.ErrorContext(ctx, "audit record durability lost",
			"intent_id", intentID, "receipt_id", receipt.ReceiptID, "error", err)
		return &rec, err
	}
	r.logger.InfoContext(ctx, "audit record resolved",
		"intent_id", intentID, "receipt_id", receipt.ReceiptID,
		"verification_status", status, "chain_hash", rec.ChainHash)
	return &rec, nil
}

// mergeAttempts returns stored records plus any fresh attempt the store did
// not return.
func mergeAttempts(stored, fresh []contracts.VerificationRecord) []contracts.VerificationRecord {
	seen := make(map[string]struct{}, len(stored))
	out := append([]contracts.VerificationRecord(nil), stored...)
	for _, v := range stored {
		seen[v.VerificationID.String()] = struct{}{}
	}
	for _, v := range fresh {
		if _, ok := seen[v.VerificationID.String()]; !ok {
			out = append(out, v)
		}
	}
	return out
}

// ExtendWithLineage attaches settlement lineage to a persisted record. It
// holds the per-intent lock, re-reads the record, extends it once, and
// swaps it in only if chain_hash is unchanged since the read.
func (r *Resolver) ExtendWithLineage(ctx context.Context, intentID string, settlement contracts.RevenueShareSettlementReceipt) (*contracts.IntentAuditRecord, error) {
	unlock, err := r.locker.Lock(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("audit: acquire lineage lock: %w", err)
	}
	defer unlock()

	current, err := r.store.GetIntentAuditRecord(ctx, intentID)
	if err != nil {
		return nil, err
	}
	next, err := current.WithCopytradeLineage(settlement)
	if err != nil {
		return nil, err
	}

	if err := r.workspace.WriteSettlement(ctx, settlement); err != nil {
		return nil, &PersistenceError{Op: "write settlement", Err: err}
	}
	if err := r.store.ReplaceIntentAuditRecord(ctx, next, current.ChainHash); err != nil {
		if errors.Is(err, store.ErrChainConflict) || errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "replace intent audit record", Err: err}
	}

	r.logger.InfoContext(ctx, "copytrade lineage attached",
		"intent_id", intentID, "settlement_id", next.SettlementID,
		"previous_chain_hash", current.ChainHash, "chain_hash", next.ChainHash)
	return &next, nil
}
