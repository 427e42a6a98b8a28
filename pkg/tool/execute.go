// Package tool exposes the trade execution pipeline as an agent tool behind
// the tool firewall.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/errorir"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/firewall"
	"github.com/Mindburn-Labs/tradetrust/pkg/pipeline"
)

// ExecuteToolName is the name the agent calls.
const ExecuteToolName = "execute_trade"

// ExecuteSchema validates execute_trade parameters.
const ExecuteSchema = `{
  "type": "object",
  "required": ["intent_id", "symbol", "side", "notional", "price_ref"],
  "properties": {
    "intent_id": {"type": "string", "format": "uuid"},
    "mode": {"type": "string"},
    "paper_live_policy": {"type": "string"},
    "live_policy_gate": {"type": "boolean"},
    "symbol": {"type": "string", "minLength": 1},
    "side": {"type": "string", "minLength": 1},
    "notional": {"type": ["string", "number"]},
    "price_ref": {"type": ["string", "number"]},
    "leverage": {"type": ["string", "number"]},
    "market_context_hash": {"type": "string"},
    "risk_limits": {"type": "object"},
    "strategy": {"type": "object"},
    "trading_endpoint": {"type": "string"},
    "verification_endpoint": {"type": "string"},
    "source_signal_hash": {"type": "string"},
    "wallet_attestation_hash": {"type": "string"},
    "natural_language_policy": {"type": "string"},
    "copytrading_profile": {"type": "object"}
  }
}`

// RequiresApproval reports whether params ask for live execution.
func RequiresApproval(params json.RawMessage) bool {
	var p struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(p.Mode), string(contracts.ModeLive))
}

// CallContext identifies the caller of one invocation.
type CallContext struct {
	AgentID         string
	UserID          string
	SessionID       string
	Approved        bool
	PaperLivePolicy string
	LivePolicyGate  bool
}

// Output is the tool's JSON result.
type Output struct {
	Receipt            *contracts.ExecutionReceipt    `json:"receipt"`
	Verifications      []contracts.VerificationRecord `json:"verifications"`
	AuditRecord        *contracts.IntentAuditRecord   `json:"audit_record,omitempty"`
	VerificationStatus string                         `json:"verification_status"`
	Warnings           []errorir.ErrorIR              `json:"warnings,omitempty"`
}

type executeParams struct {
	executor.Request
	Strategy map[string]any `json:"strategy,omitempty"`
}

// ExecuteTool runs execute_trade through the firewall and the pipeline.
type ExecuteTool struct {
	pipeline *pipeline.Pipeline
	firewall *firewall.ToolFirewall
	now      func() time.Time
	logger   *slog.Logger
}

type dispatcher struct{ t *ExecuteTool }

type callKey struct{}

func (d dispatcher) Dispatch(ctx context.Context, _ string, params json.RawMessage, _ firewall.Caller) (json.RawMessage, error) {
	cc, _ := ctx.Value(callKey{}).(CallContext)
	return d.t.dispatch(ctx, params, cc)
}

// NewExecuteTool registers execute_trade on a fresh firewall.
func NewExecuteTool(p *pipeline.Pipeline, logger *slog.Logger) (*ExecuteTool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &ExecuteTool{pipeline: p, now: time.Now, logger: logger.With("component", "tool")}
	t.firewall = firewall.NewToolFirewall(dispatcher{t}, logger)
	if err := t.firewall.AllowTool(ExecuteToolName, ExecuteSchema, RequiresApproval); err != nil {
		return nil, err
	}
	return t, nil
}

// Invoke validates params, enforces approval for live calls and runs the
// pipeline. Errors are rendered as errorir.ErrorIR.
func (t *ExecuteTool) Invoke(ctx context.Context, params json.RawMessage, cc CallContext) (json.RawMessage, error) {
	caller := firewall.Caller{
		ActorID:   cc.AgentID,
		UserID:    cc.UserID,
		SessionID: cc.SessionID,
		Approved:  cc.Approved,
	}
	out, err := t.firewall.CallTool(context.WithValue(ctx, callKey{}, cc), caller, ExecuteToolName, params)
	if err != nil {
		ir, _ := errorir.FromError(err)
		return nil, ir
	}
	return out, nil
}

func (t *ExecuteTool) dispatch(ctx context.Context, params json.RawMessage, cc CallContext) (json.RawMessage, error) {
	var p executeParams
	dec := json.NewDecoder(bytes.NewReader(params))
	if err := dec.Decode(&p); err != nil {
		return nil, &executor.Error{Kind: executor.KindInvalidParameters, Message: fmt.Sprintf("decode parameters: %v", err), Err: err}
	}
	intent, err := t.intentFor(p, cc)
	if err != nil {
		return nil, err
	}
	p.IntentID = intent.IntentID.String()
	p.MarketContextHash = intent.MarketContextHash

	res, err := t.pipeline.Run(ctx, intent, p.Request, executor.ExecutionContext{
		PaperLivePolicy: cc.PaperLivePolicy,
		LivePolicyGate:  cc.LivePolicyGate,
		UserID:          cc.UserID,
		SessionID:       cc.SessionID,
	})
	if err != nil {
		return nil, err
	}

	out := Output{
		Receipt:            res.Receipt,
		Verifications:      res.Verifications,
		AuditRecord:        res.Record,
		VerificationStatus: "absent",
	}
	if out.Verifications == nil {
		out.Verifications = []contracts.VerificationRecord{}
	}
	if res.Record != nil && res.Record.VerificationStatus != "" {
		out.VerificationStatus = string(res.Record.VerificationStatus)
	}
	if res.Receipt != nil && res.Receipt.LiveSubmissionStatus == contracts.SubmissionUnknown {
		out.Warnings = append(out.Warnings, errorir.New(errorir.CodeSubmissionUnknown).
			WithTitle("Live submission outcome unknown").
			WithDetail("the venue call failed after the order was sent; reconcile by decision_hash "+res.Receipt.DecisionHash).
			WithField("live_submission_status").
			Build())
	}
	for _, w := range []error{res.VerificationErr, res.DurabilityErr} {
		if ir, ok := errorir.FromError(w); ok {
			out.Warnings = append(out.Warnings, ir)
		}
	}
	return json.Marshal(out)
}

// intentFor builds the intent. Without a market context hash the intent
// binds to the hash of the quoted symbol and reference price.
func (t *ExecuteTool) intentFor(p executeParams, cc CallContext) (contracts.Intent, error) {
	id, err := uuid.Parse(p.IntentID)
	if err != nil {
		return contracts.Intent{}, contracts.NewValidationError(contracts.KindInvalidValue, "intent_id", "must be a UUID")
	}
	marketHash := p.MarketContextHash
	if marketHash == "" {
		marketHash, err = canonicalize.CanonicalHash(map[string]any{
			"symbol":    strings.ToUpper(strings.TrimSpace(p.Symbol)),
			"price_ref": p.PriceRef.String(),
		})
		if err != nil {
			return contracts.Intent{}, &contracts.SerializationError{Artifact: "market_context", Err: err}
		}
	}
	intent := contracts.NewIntent(cc.AgentID, cc.UserID, p.Strategy, p.RiskLimits, marketHash, t.now())
	intent.IntentID = id
	return intent, nil
}
