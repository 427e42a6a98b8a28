package contracts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intent is a request to trade, prior to execution.
type Intent struct {
	IntentID          uuid.UUID      `json:"intent_id"`
	AgentID           string         `json:"agent_id"`
	UserID            string         `json:"user_id"`
	Strategy          map[string]any `json:"strategy"`
	RiskLimits        map[string]any `json:"risk_limits"`
	MarketContextHash string         `json:"market_context_hash"`
	CreatedAt         time.Time      `json:"created_at"`
}

// NewIntent assigns a fresh random identifier. Nil maps are replaced with
// empty ones so that absent and empty encode identically.
func NewIntent(agentID, userID string, strategy, riskLimits map[string]any, marketContextHash string, createdAt time.Time) Intent {
	return Intent{
		IntentID:          uuid.New(),
		AgentID:           agentID,
		UserID:            userID,
		Strategy:          orEmpty(strategy),
		RiskLimits:        orEmpty(riskLimits),
		MarketContextHash: marketContextHash,
		CreatedAt:         createdAt.UTC(),
	}
}

// Validate checks the intent's structural invariants.
func (i Intent) Validate() error {
	if i.IntentID == uuid.Nil {
		return nilIdentifier("intent_id")
	}
	if strings.TrimSpace(i.AgentID) == "" {
		return emptyField("agent_id")
	}
	if strings.TrimSpace(i.UserID) == "" {
		return emptyField("user_id")
	}
	return ValidateDigest("market_context_hash", i.MarketContextHash)
}

// Hash returns the canonical content hash of the intent.
func (i Intent) Hash() (string, error) {
	c := i
	c.Strategy = orEmpty(c.Strategy)
	c.RiskLimits = orEmpty(c.RiskLimits)
	c.CreatedAt = c.CreatedAt.UTC()
	return hashArtifact("intent", c)
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
