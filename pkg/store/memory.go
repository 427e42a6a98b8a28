package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// MemoryStore keeps everything in process. Used for paper sessions and
// tests.
type MemoryStore struct {
	mu            sync.RWMutex
	records       map[string]contracts.IntentAuditRecord
	verifications map[string][]contracts.VerificationRecord
	verifyIDs     map[string]struct{}
	settings      map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:       make(map[string]contracts.IntentAuditRecord),
		verifications: make(map[string][]contracts.VerificationRecord),
		verifyIDs:     make(map[string]struct{}),
		settings:      make(map[string]string),
	}
}

func (s *MemoryStore) PersistIntentAuditRecord(_ context.Context, rec contracts.IntentAuditRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.records[rec.IntentID]; ok && sealed(cur) && cur.ChainHash != rec.ChainHash {
		return ErrSealed
	}
	s.records[rec.IntentID] = rec
	s.settings[LatestKey(rec.UserID)] = rec.IntentID
	return nil
}

func (s *MemoryStore) ReplaceIntentAuditRecord(_ context.Context, rec contracts.IntentAuditRecord, prevChainHash string) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.IntentID]
	if !ok {
		return ErrNotFound
	}
	if cur.ChainHash != prevChainHash {
		return ErrChainConflict
	}
	s.records[rec.IntentID] = rec
	return nil
}

func (s *MemoryStore) GetIntentAuditRecord(_ context.Context, intentID string) (*contracts.IntentAuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[intentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) ListIntentAuditRecords(_ context.Context, userID string, limit int) ([]contracts.IntentAuditRecord, error) {
	s.mu.RLock()
	out := make([]contracts.IntentAuditRecord, 0, len(s.records))
	for _, rec := range s.records {
		if userID == "" || rec.UserID == userID {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].IntentID > out[j].IntentID
	})
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemoryStore) LatestIntentAuditRecord(ctx context.Context, userID string) (*contracts.IntentAuditRecord, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	intentID, ok := s.settings[LatestKey(userID)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetIntentAuditRecord(ctx, intentID)
}

func (s *MemoryStore) PersistVerificationRecord(_ context.Context, rec contracts.VerificationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := rec.VerificationID.String()
	if _, dup := s.verifyIDs[id]; dup {
		return nil
	}
	s.verifyIDs[id] = struct{}{}
	s.verifications[rec.ReceiptID] = append(s.verifications[rec.ReceiptID], rec)
	return nil
}

func (s *MemoryStore) ListVerificationRecords(_ context.Context, receiptID string) ([]contracts.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]contracts.VerificationRecord(nil), s.verifications[receiptID]...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VerifiedAt.Equal(out[j].VerifiedAt) {
			return out[i].VerifiedAt.Before(out[j].VerifiedAt)
		}
		return out[i].VerificationID.String() < out[j].VerificationID.String()
	})
	return out, nil
}
