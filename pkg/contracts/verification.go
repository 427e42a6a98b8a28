package contracts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VerificationRecord is the outcome of one verification attempt against a
// receipt. Several records may reference the same receipt.
type VerificationRecord struct {
	VerificationID uuid.UUID           `json:"verification_id"`
	ReceiptID      string              `json:"receipt_id"`
	Backend        VerificationBackend `json:"backend"`
	ProofRef       string              `json:"proof_ref"`
	Status         VerificationStatus  `json:"status"`
	VerifiedAt     time.Time           `json:"verified_at"`
}

func NewVerificationRecord(receiptID string, backend VerificationBackend, proofRef string, status VerificationStatus, at time.Time) VerificationRecord {
	return VerificationRecord{
		VerificationID: uuid.New(),
		ReceiptID:      receiptID,
		Backend:        backend,
		ProofRef:       proofRef,
		Status:         status,
		VerifiedAt:     at.UTC(),
	}
}

func (v VerificationRecord) Validate() error {
	if v.VerificationID == uuid.Nil {
		return nilIdentifier("verification_id")
	}
	if strings.TrimSpace(v.ReceiptID) == "" {
		return emptyField("receipt_id")
	}
	switch v.Backend {
	case BackendEigenCloudPrimary, BackendSignedFallback:
	default:
		return invalidValue("backend", string(v.Backend))
	}
	if strings.TrimSpace(v.ProofRef) == "" {
		return emptyField("proof_ref")
	}
	switch v.Status {
	case StatusPending, StatusVerified, StatusFailed:
	default:
		return invalidValue("status", string(v.Status))
	}
	return nil
}

func (v VerificationRecord) Hash() (string, error) {
	c := v
	c.VerifiedAt = c.VerifiedAt.UTC()
	return hashArtifact("verification_record", c)
}

// EffectiveVerification picks the record an audit entry should cite: the
// latest verified one, otherwise the latest attempt, otherwise nil.
func EffectiveVerification(records []VerificationRecord) *VerificationRecord {
	var latest, latestVerified *VerificationRecord
	for i := range records {
		r := &records[i]
		if latest == nil || !r.VerifiedAt.Before(latest.VerifiedAt) {
			latest = r
		}
		if r.Status == StatusVerified && (latestVerified == nil || !r.VerifiedAt.Before(latestVerified.VerifiedAt)) {
			latestVerified = r
		}
	}
	if latestVerified != nil {
		out := *latestVerified
		return &out
	}
	if latest != nil {
		out := *latest
		return &out
	}
	return nil
}
