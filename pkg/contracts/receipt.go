package contracts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptIDLength is the number of leading decision-hash characters that
// form a receipt identifier.
const ReceiptIDLength = 32

// Fill is one synthesized (or reported) partial execution.
type Fill struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// CopytradeChecks snapshots the compiled bounds a copied trade was held to.
type CopytradeChecks struct {
	PolicyHash                string          `json:"policy_hash"`
	RequiresWalletAttestation bool            `json:"requires_wallet_attestation"`
	RequiresSignalHash        bool            `json:"requires_signal_hash"`
	EnforceSymbolAllowlist    bool            `json:"enforce_symbol_allowlist"`
	EnforceSymbolDenylist     bool            `json:"enforce_symbol_denylist"`
	AllowInformationSharing   bool            `json:"allow_information_sharing"`
	MaxNotionalUSD            decimal.Decimal `json:"max_notional_usd"`
	MaxLeverage               decimal.Decimal `json:"max_leverage"`
	MaxSlippageBps            decimal.Decimal `json:"max_slippage_bps"`
	RealizedSlippageBps       decimal.Decimal `json:"realized_slippage_bps"`
}

// ProofLineage binds a copied trade to the signal, attestation and policy
// that authorized it.
type ProofLineage struct {
	SignalHash            string `json:"signal_hash"`
	WalletAttestationHash string `json:"wallet_attestation_hash"`
	PolicyHash            string `json:"policy_hash"`
	DecisionHash          string `json:"decision_hash"`
}

func (l ProofLineage) Validate() error {
	if err := ValidateDigest("proof_lineage.signal_hash", l.SignalHash); err != nil {
		return err
	}
	if err := ValidateDigest("proof_lineage.wallet_attestation_hash", l.WalletAttestationHash); err != nil {
		return err
	}
	if err := ValidateDigest("proof_lineage.policy_hash", l.PolicyHash); err != nil {
		return err
	}
	return ValidateDigest("proof_lineage.decision_hash", l.DecisionHash)
}

// ExecutionReceipt is the immutable record of what a simulated or live
// execution did. LiveSubmissionRef and LiveSubmissionStatus are populated
// after the decision hash is computed and are therefore not covered by it,
// only by Hash.
type ExecutionReceipt struct {
	ReceiptID             string           `json:"receipt_id"`
	IntentID              string           `json:"intent_id"`
	Mode                  ExecutionMode    `json:"mode"`
	Symbol                string           `json:"symbol"`
	Side                  Side             `json:"side"`
	Notional              decimal.Decimal  `json:"notional"`
	PriceRef              decimal.Decimal  `json:"price_ref"`
	Leverage              decimal.Decimal  `json:"leverage"`
	SimulatedFills        []Fill           `json:"simulated_fills"`
	DecisionHash          string           `json:"decision_hash"`
	SourceSignalHash      string           `json:"source_signal_hash,omitempty"`
	WalletAttestationHash string           `json:"wallet_attestation_hash,omitempty"`
	PolicyHash            string           `json:"policy_hash,omitempty"`
	CopytradeChecks       *CopytradeChecks `json:"copytrade_checks,omitempty"`
	ProofLineage          *ProofLineage    `json:"proof_lineage,omitempty"`
	LiveSubmissionRef     string           `json:"live_submission_ref,omitempty"`
	LiveSubmissionStatus  SubmissionStatus `json:"live_submission_status,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

// ReceiptIDFromDecisionHash derives the receipt identifier.
func ReceiptIDFromDecisionHash(decisionHash string) string {
	if len(decisionHash) < ReceiptIDLength {
		return decisionHash
	}
	return decisionHash[:ReceiptIDLength]
}

// TotalQuantity sums the fill quantities.
func (r ExecutionReceipt) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, f := range r.SimulatedFills {
		total = total.Add(f.Quantity)
	}
	return total
}

// IsCopytrade reports whether the receipt carries copytrading lineage.
func (r ExecutionReceipt) IsCopytrade() bool {
	return r.ProofLineage != nil || r.PolicyHash != ""
}

func (r ExecutionReceipt) Validate() error {
	if strings.TrimSpace(r.IntentID) == "" {
		return emptyField("intent_id")
	}
	if _, err := ParseExecutionMode(string(r.Mode)); err != nil {
		return invalidValue("mode", err.Error())
	}
	if strings.TrimSpace(r.Symbol) == "" {
		return emptyField("symbol")
	}
	if _, err := ParseSide(string(r.Side)); err != nil {
		return invalidValue("side", err.Error())
	}
	if !r.Notional.IsPositive() {
		return nonPositive("notional")
	}
	if !r.PriceRef.IsPositive() {
		return nonPositive("price_ref")
	}
	if !r.Leverage.IsPositive() {
		return nonPositive("leverage")
	}
	if len(r.SimulatedFills) == 0 {
		return emptyField("simulated_fills")
	}
	for i, f := range r.SimulatedFills {
		if !f.Quantity.IsPositive() {
			return nonPositive(fmt.Sprintf("simulated_fills[%d].quantity", i))
		}
		if !f.Price.IsPositive() {
			return nonPositive(fmt.Sprintf("simulated_fills[%d].price", i))
		}
	}
	if err := ValidateDigest("decision_hash", r.DecisionHash); err != nil {
		return err
	}
	if r.ReceiptID == "" {
		return emptyField("receipt_id")
	}
	if r.ReceiptID != ReceiptIDFromDecisionHash(r.DecisionHash) {
		return invalidValue("receipt_id", "must be the decision hash prefix")
	}
	if err := validateOptionalDigest("source_signal_hash", r.SourceSignalHash); err != nil {
		return err
	}
	if err := validateOptionalDigest("wallet_attestation_hash", r.WalletAttestationHash); err != nil {
		return err
	}
	if err := validateOptionalDigest("policy_hash", r.PolicyHash); err != nil {
		return err
	}
	if r.CopytradeChecks != nil {
		if err := ValidateDigest("copytrade_checks.policy_hash", r.CopytradeChecks.PolicyHash); err != nil {
			return err
		}
	}
	if r.ProofLineage != nil {
		if err := r.ProofLineage.Validate(); err != nil {
			return err
		}
		if r.ProofLineage.DecisionHash != r.DecisionHash {
			return invalidValue("proof_lineage.decision_hash", "does not match receipt decision_hash")
		}
	}
	if err := r.validateSubmission(); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		return emptyField("created_at")
	}
	return nil
}

func (r ExecutionReceipt) validateSubmission() error {
	switch r.LiveSubmissionStatus {
	case "":
		return nil
	case SubmissionAccepted:
		if strings.TrimSpace(r.LiveSubmissionRef) == "" {
			return emptyField("live_submission_ref")
		}
	case SubmissionUnknown:
		if r.LiveSubmissionRef != "" {
			return invalidValue("live_submission_ref", "must be empty while submission status is unknown")
		}
	default:
		return invalidValue("live_submission_status", string(r.LiveSubmissionStatus))
	}
	if r.Mode != ModeLive {
		return invalidValue("live_submission_status", "only live receipts carry a submission status")
	}
	return nil
}

func (r ExecutionReceipt) Hash() (string, error) {
	c := r
	c.CreatedAt = c.CreatedAt.UTC()
	return hashArtifact("execution_receipt", c)
}
