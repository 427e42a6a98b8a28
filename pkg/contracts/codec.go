package contracts

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeIntentAuditRecord parses a persisted record (plain JSON or Base64
// of JSON) and rejects incompatible contract versions.
func DecodeIntentAuditRecord(token string) (*IntentAuditRecord, error) {
	raw := []byte(token)
	if !strings.HasPrefix(strings.TrimSpace(token), "{") {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
		if err != nil {
			return nil, fmt.Errorf("decode intent audit record: %w", err)
		}
		raw = decoded
	}
	var rec IntentAuditRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode intent audit record: %w", err)
	}
	if err := CheckContractVersion(rec.ContractVersion); err != nil {
		return nil, err
	}
	if rec.ProviderAttributions == nil {
		rec.ProviderAttributions = []ProviderSplit{}
	}
	return &rec, nil
}

// EncodeIntentAuditRecord serializes the record for storage.
func EncodeIntentAuditRecord(r IntentAuditRecord) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, &SerializationError{Artifact: "intent_audit_record", Err: err}
	}
	return b, nil
}
