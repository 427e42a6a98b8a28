package contracts

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
)

// AbsentMarker stands in for a missing upstream hash in the chain tuple, so
// that presence and absence both affect the chain hash.
const AbsentMarker = "absent"

// ErrLineageAlreadyExtended is returned when a record that already carries
// settlement lineage is extended again.
var ErrLineageAlreadyExtended = errors.New("intent audit record already carries copytrade lineage")

// IntentAuditRecord is the terminal, hash-chained artifact binding an
// intent to its receipt, verification and settlement. It is built once by
// NewIntentAuditRecord and optionally extended once by WithCopytradeLineage;
// both return new values.
type IntentAuditRecord struct {
	ContractVersion      string             `json:"contract_version"`
	HashAlgorithm        string             `json:"hash_algorithm"`
	IntentID             string             `json:"intent_id"`
	AgentID              string             `json:"agent_id,omitempty"`
	UserID               string             `json:"user_id"`
	SignalHash           string             `json:"signal_hash,omitempty"`
	IntentHash           string             `json:"intent_hash"`
	ReceiptID            string             `json:"receipt_id"`
	ReceiptHash          string             `json:"receipt_hash"`
	VerificationID       string             `json:"verification_id,omitempty"`
	VerificationHash     string             `json:"verification_hash,omitempty"`
	VerificationStatus   VerificationStatus `json:"verification_status,omitempty"`
	SettlementID         string             `json:"settlement_id,omitempty"`
	SettlementHash       string             `json:"settlement_hash,omitempty"`
	ProviderAttributions []ProviderSplit    `json:"provider_attributions"`
	MirroredPnLUSD       *decimal.Decimal   `json:"mirrored_pnl_usd,omitempty"`
	RevenueShareFeeUSD   *decimal.Decimal   `json:"revenue_share_fee_usd,omitempty"`
	WorkspacePath        string             `json:"workspace_path"`
	ChainHash            string             `json:"chain_hash"`
	CreatedAt            time.Time          `json:"created_at"`
}

// NewIntentAuditRecord assembles the record from its upstream artifacts.
// verification may be nil when no attempt has completed.
func NewIntentAuditRecord(intent Intent, receipt ExecutionReceipt, verification *VerificationRecord, workspacePath string, createdAt time.Time) (IntentAuditRecord, error) {
	if err := intent.Validate(); err != nil {
		return IntentAuditRecord{}, err
	}
	if err := receipt.Validate(); err != nil {
		return IntentAuditRecord{}, err
	}
	if receipt.IntentID != intent.IntentID.String() {
		return IntentAuditRecord{}, invalidValue("receipt.intent_id", "does not match intent_id")
	}
	if strings.TrimSpace(workspacePath) == "" {
		return IntentAuditRecord{}, emptyField("workspace_path")
	}
	intentHash, err := intent.Hash()
	if err != nil {
		return IntentAuditRecord{}, err
	}
	receiptHash, err := receipt.Hash()
	if err != nil {
		return IntentAuditRecord{}, err
	}

	rec := IntentAuditRecord{
		ContractVersion:      canonicalize.ContractVersion,
		HashAlgorithm:        canonicalize.HashAlgorithm,
		IntentID:             intent.IntentID.String(),
		AgentID:              intent.AgentID,
		UserID:               intent.UserID,
		SignalHash:           receipt.SourceSignalHash,
		IntentHash:           intentHash,
		ReceiptID:            receipt.ReceiptID,
		ReceiptHash:          receiptHash,
		ProviderAttributions: []ProviderSplit{},
		WorkspacePath:        workspacePath,
		CreatedAt:            createdAt.UTC(),
	}

	if verification != nil {
		if err := verification.Validate(); err != nil {
			return IntentAuditRecord{}, err
		}
		if verification.ReceiptID != receipt.ReceiptID {
			return IntentAuditRecord{}, invalidValue("verification.receipt_id", "does not match receipt_id")
		}
		vh, err := verification.Hash()
		if err != nil {
			return IntentAuditRecord{}, err
		}
		rec.VerificationID = verification.VerificationID.String()
		rec.VerificationHash = vh
		rec.VerificationStatus = verification.Status
	}

	if rec.ChainHash, err = rec.ComputeChainHash(); err != nil {
		return IntentAuditRecord{}, err
	}
	return rec, nil
}

// WithCopytradeLineage returns a new record carrying the settlement's
// lineage and a recomputed chain hash. The receiver is left untouched.
func (r IntentAuditRecord) WithCopytradeLineage(settlement RevenueShareSettlementReceipt) (IntentAuditRecord, error) {
	if r.SettlementHash != "" || r.SettlementID != "" {
		return IntentAuditRecord{}, ErrLineageAlreadyExtended
	}
	if err := settlement.Validate(); err != nil {
		return IntentAuditRecord{}, err
	}
	if settlement.IntentID != r.IntentID {
		return IntentAuditRecord{}, invalidValue("settlement.intent_id", "does not match intent_id")
	}
	if settlement.ReceiptID != r.ReceiptID {
		return IntentAuditRecord{}, invalidValue("settlement.receipt_id", "does not match receipt_id")
	}
	sh, err := settlement.Hash()
	if err != nil {
		return IntentAuditRecord{}, err
	}

	next := r
	next.SettlementID = settlement.SettlementID.String()
	next.SettlementHash = sh
	next.ProviderAttributions = append([]ProviderSplit(nil), settlement.ProviderSplits...)
	pnl := settlement.TotalPnLUSD
	fee := settlement.TotalFeeUSD
	next.MirroredPnLUSD = &pnl
	next.RevenueShareFeeUSD = &fee
	if next.ChainHash, err = next.ComputeChainHash(); err != nil {
		return IntentAuditRecord{}, err
	}
	return next, nil
}

// ComputeChainHash hashes the ordered upstream tuple. An array keeps the
// order fixed under canonical encoding.
func (r IntentAuditRecord) ComputeChainHash() (string, error) {
	tuple := []string{
		orAbsent(r.ContractVersion),
		orAbsent(r.HashAlgorithm),
		orAbsent(r.SignalHash),
		orAbsent(r.IntentHash),
		orAbsent(r.ReceiptHash),
		orAbsent(r.VerificationHash),
		orAbsent(r.SettlementHash),
	}
	return hashArtifact("chain_tuple", tuple)
}

// VerifyChain validates the record and checks its stored chain hash.
func (r IntentAuditRecord) VerifyChain() error {
	if err := r.Validate(); err != nil {
		return err
	}
	want, err := r.ComputeChainHash()
	if err != nil {
		return err
	}
	if want != r.ChainHash {
		return invalidValue("chain_hash", "does not match upstream hashes")
	}
	return nil
}

func (r IntentAuditRecord) Validate() error {
	if err := CheckContractVersion(r.ContractVersion); err != nil {
		return err
	}
	if r.HashAlgorithm != canonicalize.HashAlgorithm {
		return invalidValue("hash_algorithm", r.HashAlgorithm)
	}
	if strings.TrimSpace(r.IntentID) == "" {
		return emptyField("intent_id")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return emptyField("user_id")
	}
	if err := validateOptionalDigest("signal_hash", r.SignalHash); err != nil {
		return err
	}
	if err := ValidateDigest("intent_hash", r.IntentHash); err != nil {
		return err
	}
	if strings.TrimSpace(r.ReceiptID) == "" {
		return emptyField("receipt_id")
	}
	if err := ValidateDigest("receipt_hash", r.ReceiptHash); err != nil {
		return err
	}
	if r.VerificationID != "" || r.VerificationHash != "" {
		if r.VerificationID == "" {
			return emptyField("verification_id")
		}
		if err := ValidateDigest("verification_hash", r.VerificationHash); err != nil {
			return err
		}
		if r.VerificationStatus == "" {
			return emptyField("verification_status")
		}
	}
	if r.SettlementID != "" || r.SettlementHash != "" {
		if r.SettlementID == "" {
			return emptyField("settlement_id")
		}
		if err := ValidateDigest("settlement_hash", r.SettlementHash); err != nil {
			return err
		}
	}
	if strings.TrimSpace(r.WorkspacePath) == "" {
		return emptyField("workspace_path")
	}
	if err := ValidateDigest("chain_hash", r.ChainHash); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		return emptyField("created_at")
	}
	return nil
}

func (r IntentAuditRecord) Hash() (string, error) {
	c := r
	c.CreatedAt = c.CreatedAt.UTC()
	if c.ProviderAttributions == nil {
		c.ProviderAttributions = []ProviderSplit{}
	}
	return hashArtifact("intent_audit_record", c)
}

func orAbsent(s string) string {
	if s == "" {
		return AbsentMarker
	}
	return s
}
