package verification

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Selection is the backend chosen once from configuration.
type Selection struct {
	kind     Kind
	primary  *EigenCloud
	fallback *Chain
	logger   *slog.Logger
}

// NewSelection validates cfg and builds the configured backends. With
// eigencloud_primary a chain path is optional and, when set, the chain is
// attempted after a failed primary call.
func NewSelection(cfg Config, opts ...Option) (*Selection, error) {
	o := buildOptions(opts)

	kind := cfg.Backend
	if kind == "" {
		kind = KindEigenCloudPrimary
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, &ConfigError{Field: "backend", Reason: err.Error()}
	}

	s := &Selection{kind: kind, logger: o.logger}
	switch kind {
	case KindEigenCloudPrimary:
		primary, err := NewEigenCloud(cfg.EigenCloud, opts...)
		if err != nil {
			return nil, err
		}
		s.primary = primary
		if cfg.Fallback.Enabled() {
			chain, err := NewChain(cfg.Fallback, opts...)
			if err != nil {
				return nil, err
			}
			s.fallback = chain
		}
	case KindFallbackOnly:
		chain, err := NewChain(cfg.Fallback, opts...)
		if err != nil {
			return nil, err
		}
		s.fallback = chain
	}

	s.logger.Info("verification backend selected", "backend", string(kind), "fallback", s.fallback != nil)
	return s, nil
}

// Kind returns the selected backend.
func (s *Selection) Kind() Kind { return s.kind }

// Chain returns the fallback chain, or nil when none is configured.
func (s *Selection) Chain() *Chain { return s.fallback }

// Verify runs the configured attempts for a receipt and returns every record
// produced, in attempt order. A failed primary attempt is followed by one
// fallback attempt when a chain is configured. ErrUnavailable is returned
// alongside the records when no attempt was verified or pending.
func (s *Selection) Verify(ctx context.Context, receipt contracts.ExecutionReceipt) ([]contracts.VerificationRecord, error) {
	var records []contracts.VerificationRecord

	if s.primary != nil {
		rec, err := s.primary.Verify(ctx, receipt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		if rec.Status != contracts.StatusFailed {
			return records, nil
		}
		if s.fallback == nil {
			return records, fmt.Errorf("%w: primary attempt failed (%s)", ErrUnavailable, rec.ProofRef)
		}
		s.logger.WarnContext(ctx, "primary verification failed, engaging fallback chain",
			"receipt_id", receipt.ReceiptID, "proof_ref", rec.ProofRef)
	}

	rec, err := s.fallback.Verify(ctx, receipt)
	if err != nil {
		if len(records) > 0 {
			return records, fmt.Errorf("%w: fallback attempt: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	return append(records, rec), nil
}

// Health checks the primary oracle. A fallback-only selection reports
// healthy when the chain directory is still writable.
func (s *Selection) Health(ctx context.Context) Health {
	if s.primary != nil {
		return s.primary.Health(ctx)
	}
	h := Health{Backend: KindFallbackOnly, State: HealthHealthy}
	if err := ensureWritableDir(filepath.Dir(s.fallback.Path())); err != nil {
		h.State = HealthUnhealthy
		h.Detail = err.Error()
	}
	return h
}
