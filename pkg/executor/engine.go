// Package executor is the deterministic execution engine. It validates a
// trade request, applies any copytrading policy, synthesizes fills and
// emits an ExecutionReceipt whose decision hash covers every economically
// relevant input.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/tradetrust/pkg/canonicalize"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/firewall"
	"github.com/Mindburn-Labs/tradetrust/pkg/policy"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// Config holds engine-level limits and defaults. Zero caps are unset.
type Config struct {
	TradingEndpoint      string
	VerificationEndpoint string
	MaxPositionUSD       decimal.Decimal
	MaxLeverage          decimal.Decimal
	KillSwitchEnabled    bool
	KillSwitchBehavior   KillSwitchBehavior
}

// Engine executes trade requests. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	killSwitch *KillSwitch
	compiler   *policy.Compiler
	venue      Venue
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithVenue routes live orders to v after the decision hash is fixed.
func WithVenue(v Venue) Option { return func(e *Engine) { e.venue = v } }

// WithClock overrides the receipt timestamp source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithCompiler sets the policy compiler.
func WithCompiler(c *policy.Compiler) Option { return func(e *Engine) { e.compiler = c } }

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		killSwitch: NewKillSwitch(cfg.KillSwitchEnabled, cfg.KillSwitchBehavior),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "executor")
	if e.compiler == nil {
		e.compiler = policy.NewCompiler(e.logger)
	}
	return e
}

// KillSwitch exposes the runtime kill switch.
func (e *Engine) KillSwitch() *KillSwitch { return e.killSwitch }

// validated is a request after boundary parsing.
type validated struct {
	intentID          string
	mode              contracts.ExecutionMode
	symbol            string
	side              contracts.Side
	notional          decimal.Decimal
	priceRef          decimal.Decimal
	leverage          decimal.Decimal
	marketContextHash string
	riskLimits        map[string]any
	tradingEndpoint   string
}

// Execute runs a single request to a receipt or a typed *Error. There are
// no retries.
func (e *Engine) Execute(ctx context.Context, req Request, ec ExecutionContext) (*contracts.ExecutionReceipt, error) {
	receipt, err := e.execute(ctx, req, ec)
	if err != nil {
		var xerr *Error
		if errors.As(err, &xerr) {
			e.logger.WarnContext(ctx, "execution rejected",
				"intent_id", req.IntentID,
				"kind", string(xerr.Kind),
				"field", xerr.Field,
				"reason", xerr.Message,
			)
		}
		return nil, err
	}
	e.logger.InfoContext(ctx, "execution accepted",
		"intent_id", receipt.IntentID,
		"receipt_id", receipt.ReceiptID,
		"mode", string(receipt.Mode),
		"symbol", receipt.Symbol,
		"side", string(receipt.Side),
		"copytrade", receipt.IsCopytrade(),
	)
	return receipt, nil
}

func (e *Engine) execute(ctx context.Context, req Request, ec ExecutionContext) (*contracts.ExecutionReceipt, error) {
	v, err := e.validate(req, ec)
	if err != nil {
		return nil, err
	}

	var compiled *policy.CompiledPolicy
	if copytradeRequested(req) {
		if compiled, err = e.applyCopytrading(ctx, req, v); err != nil {
			return nil, err
		}
	}

	fills := SynthesizeFills(v.side, v.notional, v.priceRef)
	for i, f := range fills {
		if !f.Quantity.IsPositive() {
			return nil, invalidParam("notional", "notional is too small to fill at price_ref (fill %d rounds to zero)", i)
		}
	}

	var checks *contracts.CopytradeChecks
	if compiled != nil {
		slippage := RealizedSlippageBps(fills, v.priceRef)
		limit := compiled.MaxSlippageBps
		if !limit.IsPositive() {
			limit = DefaultMaxSlippageBps
		}
		if slippage.GreaterThan(limit) {
			return nil, policyRejection("slippage_bps", "realized slippage %s bps exceeds cap %s bps", slippage, limit)
		}
		c := compiled.Checks(slippage)
		checks = &c
	}

	receipt := contracts.ExecutionReceipt{
		IntentID:       v.intentID,
		Mode:           v.mode,
		Symbol:         v.symbol,
		Side:           v.side,
		Notional:       v.notional,
		PriceRef:       v.priceRef,
		Leverage:       v.leverage,
		SimulatedFills: fills,
		CreatedAt:      e.now().UTC(),
	}
	var policyHash string
	if compiled != nil {
		policyHash = compiled.PolicyHash
		receipt.SourceSignalHash = req.SourceSignalHash
		receipt.WalletAttestationHash = req.WalletAttestationHash
		receipt.PolicyHash = policyHash
		receipt.CopytradeChecks = checks
	}

	dh, err := decisionHash(v, req.SourceSignalHash, req.WalletAttestationHash, policyHash, fills)
	if err != nil {
		return nil, fromArtifactError(err)
	}
	receipt.DecisionHash = dh
	receipt.ReceiptID = contracts.ReceiptIDFromDecisionHash(dh)
	if compiled != nil {
		receipt.ProofLineage = &contracts.ProofLineage{
			SignalHash:            req.SourceSignalHash,
			WalletAttestationHash: req.WalletAttestationHash,
			PolicyHash:            policyHash,
			DecisionHash:          dh,
		}
	}

	if v.mode == contracts.ModeLive {
		if e.venue == nil {
			e.logger.WarnContext(ctx, "live execution without a configured venue; no order submitted", "intent_id", v.intentID)
		} else {
			ref, err := e.venue.Submit(ctx, Order{
				ReceiptID:    receipt.ReceiptID,
				DecisionHash: dh,
				Symbol:       v.symbol,
				Side:         v.side,
				Quantity:     receipt.TotalQuantity(),
				LimitPrice:   fills[len(fills)-1].Price,
				Leverage:     v.leverage,
				Endpoint:     v.tradingEndpoint,
			})
			switch {
			case err == nil:
				receipt.LiveSubmissionRef = ref
				receipt.LiveSubmissionStatus = contracts.SubmissionAccepted
			case errors.Is(err, ErrOrderRejected), errors.Is(err, ErrOrderNotSent):
				return nil, &Error{Kind: KindVenue, Field: "trading_endpoint", Message: err.Error(), Err: err}
			default:
				receipt.LiveSubmissionStatus = contracts.SubmissionUnknown
				e.logger.ErrorContext(ctx, "live submission outcome unknown; receipt kept for reconciliation",
					"intent_id", v.intentID, "receipt_id", receipt.ReceiptID, "decision_hash", dh, "error", err)
			}
		}
	}

	if err := receipt.Validate(); err != nil {
		return nil, fromArtifactError(err)
	}
	return &receipt, nil
}

// validate performs the fail-fast boundary checks in their fixed order.
func (e *Engine) validate(req Request, ec ExecutionContext) (validated, error) {
	var v validated

	v.intentID = strings.TrimSpace(req.IntentID)
	if v.intentID == "" {
		return v, invalidParam("intent_id", "must not be empty")
	}

	v.mode = contracts.ModePaper
	if strings.TrimSpace(req.Mode) != "" {
		m, err := contracts.ParseExecutionMode(req.Mode)
		if err != nil {
			return v, invalidParam("mode", "%v", err)
		}
		v.mode = m
	}

	plp, err := resolvePaperLivePolicy(req.PaperLivePolicy, ec.PaperLivePolicy)
	if err != nil {
		return v, err
	}

	if e.killSwitch.Blocks(v.mode) {
		_, behavior, reason, _ := e.killSwitch.Status()
		return v, unauthorized("kill_switch", "kill switch active (%s): %s", behavior, reason)
	}

	v.tradingEndpoint = firstNonEmpty(req.TradingEndpoint, e.cfg.TradingEndpoint)
	if v.tradingEndpoint != "" {
		if err := firewall.ValidateTradingEndpoint(v.tradingEndpoint); err != nil {
			return v, &Error{Kind: KindAuthorization, Field: "trading_endpoint", Message: err.Error(), Err: err}
		}
	}
	if ve := firstNonEmpty(req.VerificationEndpoint, e.cfg.VerificationEndpoint); ve != "" {
		if err := firewall.ValidateVerificationEndpoint(ve); err != nil {
			return v, &Error{Kind: KindAuthorization, Field: "verification_endpoint", Message: err.Error(), Err: err}
		}
	}

	if v.mode == contracts.ModeLive {
		gate := ec.LivePolicyGate
		if req.LivePolicyGate != nil {
			gate = *req.LivePolicyGate
		}
		if plp != contracts.PolicyLiveAllowed {
			return v, unauthorized("paper_live_policy", "live execution requires policy %s, have %s", contracts.PolicyLiveAllowed, plp)
		}
		if !gate {
			return v, unauthorized("live_policy_gate", "live execution requires live_policy_gate=true")
		}
	}

	v.symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if v.symbol == "" {
		return v, invalidParam("symbol", "must not be empty")
	}
	if !symbolPattern.MatchString(v.symbol) {
		return v, invalidParam("symbol", "must match [A-Z0-9_-]+")
	}

	side, err := contracts.ParseSide(req.Side)
	if err != nil {
		return v, invalidParam("side", "%v", err)
	}
	v.side = side

	if !req.Notional.IsPositive() {
		return v, invalidParam("notional", "must be a positive decimal")
	}
	v.notional = req.Notional
	if !req.PriceRef.IsPositive() {
		return v, invalidParam("price_ref", "must be a positive decimal")
	}
	v.priceRef = req.PriceRef

	v.leverage = decimal.NewFromInt(1)
	if req.Leverage.Valid {
		if !req.Leverage.Decimal.IsPositive() {
			return v, invalidParam("leverage", "must be a positive decimal")
		}
		v.leverage = req.Leverage.Decimal
	}

	if req.MarketContextHash != "" && !canonicalize.IsDigest(req.MarketContextHash) {
		return v, invalidParam("market_context_hash", "must be a 64-character lowercase hex digest")
	}
	v.marketContextHash = req.MarketContextHash
	v.riskLimits = req.RiskLimits

	if e.cfg.MaxPositionUSD.IsPositive() && v.notional.GreaterThan(e.cfg.MaxPositionUSD) {
		return v, policyRejection("notional", "notional %s exceeds max_position_usd %s", v.notional, e.cfg.MaxPositionUSD)
	}
	if e.cfg.MaxLeverage.IsPositive() && v.leverage.GreaterThan(e.cfg.MaxLeverage) {
		return v, policyRejection("leverage", "leverage %s exceeds max_leverage %s", v.leverage, e.cfg.MaxLeverage)
	}
	return v, nil
}

// applyCopytrading enforces the all-or-nothing copytrading inputs and the
// compiled bounds.
func (e *Engine) applyCopytrading(ctx context.Context, req Request, v validated) (*policy.CompiledPolicy, error) {
	var missing []string
	if req.SourceSignalHash == "" {
		missing = append(missing, "source_signal_hash")
	}
	if req.WalletAttestationHash == "" {
		missing = append(missing, "wallet_attestation_hash")
	}
	if strings.TrimSpace(req.NaturalLanguagePolicy) == "" {
		missing = append(missing, "natural_language_policy")
	}
	if req.CopytradingProfile == nil {
		missing = append(missing, "copytrading_profile")
	}
	if len(missing) > 0 {
		return nil, invalidParam(strings.Join(missing, ", "), "copytrading requires all of source_signal_hash, wallet_attestation_hash, natural_language_policy, copytrading_profile")
	}

	compiled, err := e.compiler.Compile(ctx, req.NaturalLanguagePolicy, *req.CopytradingProfile)
	if err != nil {
		return nil, fromArtifactError(err)
	}

	if ok, reason := compiled.SymbolAllowed(v.symbol); !ok {
		return nil, policyRejection("symbol", "%s: %s", v.symbol, reason)
	}
	if v.leverage.GreaterThan(compiled.MaxLeverage) {
		return nil, policyRejection("leverage", "leverage %s exceeds compiled max_leverage %s", v.leverage, compiled.MaxLeverage)
	}
	if v.notional.GreaterThan(compiled.MaxNotionalUSD) {
		return nil, policyRejection("notional", "notional %s exceeds compiled max_notional_usd %s", v.notional, compiled.MaxNotionalUSD)
	}
	if !canonicalize.IsDigest(req.SourceSignalHash) {
		return nil, invalidParam("source_signal_hash", "must be a 64-character lowercase hex digest")
	}
	if !canonicalize.IsDigest(req.WalletAttestationHash) {
		return nil, invalidParam("wallet_attestation_hash", "must be a 64-character lowercase hex digest")
	}
	return compiled, nil
}

func copytradeRequested(req Request) bool {
	return req.SourceSignalHash != "" ||
		req.WalletAttestationHash != "" ||
		strings.TrimSpace(req.NaturalLanguagePolicy) != "" ||
		req.CopytradingProfile != nil
}

// resolvePaperLivePolicy applies explicit > context > default precedence.
func resolvePaperLivePolicy(explicit, fromContext string) (contracts.PaperLivePolicy, error) {
	raw := firstNonEmpty(explicit, fromContext)
	if raw == "" {
		return contracts.DefaultPaperLivePolicy, nil
	}
	p, err := contracts.ParsePaperLivePolicy(raw)
	if err != nil {
		return "", invalidParam("paper_live_policy", "%v", err)
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
