// Package pipeline runs one intent through execution, verification and
// audit resolution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/tradetrust/pkg/audit"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/observability"
)

// Verifier attaches verification attempts to a receipt.
// *verification.Selection implements it.
type Verifier interface {
	Verify(ctx context.Context, receipt contracts.ExecutionReceipt) ([]contracts.VerificationRecord, error)
}

// Result is everything a run produced. Receipt is set whenever execution
// succeeded, even if a later stage failed.
type Result struct {
	Receipt       *contracts.ExecutionReceipt
	Verifications []contracts.VerificationRecord
	Record        *contracts.IntentAuditRecord
	// VerificationErr is set when no attempt produced a usable outcome.
	// The record then carries the failed attempts.
	VerificationErr error
	// DurabilityErr is set when the record was assembled but not fully
	// persisted.
	DurabilityErr error
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	engine    *executor.Engine
	verifier  Verifier
	resolver  *audit.Resolver
	telemetry *observability.Provider
	logger    *slog.Logger
}

type Option func(*Pipeline)

func WithTelemetry(p *observability.Provider) Option { return func(pl *Pipeline) { pl.telemetry = p } }

func WithLogger(l *slog.Logger) Option { return func(pl *Pipeline) { pl.logger = l } }

// New wires a pipeline. Every stage is required.
func New(engine *executor.Engine, verifier Verifier, resolver *audit.Resolver, opts ...Option) (*Pipeline, error) {
	if engine == nil || verifier == nil || resolver == nil {
		return nil, errors.New("pipeline: engine, verifier and resolver are required")
	}
	p := &Pipeline{engine: engine, verifier: verifier, resolver: resolver}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "pipeline")
	if p.telemetry == nil {
		// A disabled provider never fails to build.
		p.telemetry, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	return p, nil
}

// Engine exposes the execution engine, e.g. for the kill switch.
func (p *Pipeline) Engine() *executor.Engine { return p.engine }

// Run executes req for intent, verifies the receipt and resolves the audit
// record. Execution failures return a nil Result. Later failures return
// the partial Result alongside the error, except durability loss which is
// reported in Result.DurabilityErr.
func (p *Pipeline) Run(ctx context.Context, intent contracts.Intent, req executor.Request, ec executor.ExecutionContext) (*Result, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if req.IntentID != intent.IntentID.String() {
		return nil, contracts.NewValidationError(contracts.KindInvalidValue, "intent_id", "request does not match intent")
	}
	if ec.UserID == "" {
		ec.UserID = intent.UserID
	}

	execCtx, finish := p.telemetry.TrackOperation(ctx, "execute",
		observability.ExecuteOperation(req.IntentID, req.Mode, req.Symbol)...)
	receipt, err := p.engine.Execute(execCtx, req, ec)
	finish(err)
	if err != nil {
		return nil, err
	}
	res := &Result{Receipt: receipt}

	verifyCtx, finish := p.telemetry.TrackOperation(ctx, "verify",
		observability.VerifyOperation(receipt.ReceiptID, "selection")...)
	res.Verifications, res.VerificationErr = p.verifier.Verify(verifyCtx, *receipt)
	finish(res.VerificationErr)
	if res.VerificationErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("pipeline: verify: %w", res.VerificationErr)
		}
		p.logger.WarnContext(ctx, "verification produced no usable outcome",
			"receipt_id", receipt.ReceiptID, "attempts", len(res.Verifications), "error", res.VerificationErr)
	}

	auditCtx, finish := p.telemetry.TrackOperation(ctx, "audit",
		observability.AuditOperation(req.IntentID, receipt.ReceiptID)...)
	rec, err := p.resolver.Resolve(auditCtx, intent, *receipt, res.Verifications)
	finish(err)
	res.Record = rec
	if err != nil {
		if rec == nil {
			return res, err
		}
		res.DurabilityErr = err
	}

	status := "absent"
	if rec.VerificationStatus != "" {
		status = string(rec.VerificationStatus)
	}
	p.logger.InfoContext(ctx, "intent processed",
		"intent_id", rec.IntentID,
		"receipt_id", receipt.ReceiptID,
		"verification_status", status,
		"durable", res.DurabilityErr == nil,
	)
	return res, nil
}
