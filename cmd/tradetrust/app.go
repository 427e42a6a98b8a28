package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Mindburn-Labs/tradetrust/pkg/artifacts"
	"github.com/Mindburn-Labs/tradetrust/pkg/audit"
	"github.com/Mindburn-Labs/tradetrust/pkg/config"
	"github.com/Mindburn-Labs/tradetrust/pkg/errorir"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
	"github.com/Mindburn-Labs/tradetrust/pkg/observability"
	"github.com/Mindburn-Labs/tradetrust/pkg/pipeline"
	"github.com/Mindburn-Labs/tradetrust/pkg/policy"
	"github.com/Mindburn-Labs/tradetrust/pkg/store"
	"github.com/Mindburn-Labs/tradetrust/pkg/venue"
	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

// app holds the wired runtime for one command invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.Store
	workspace *artifacts.Workspace
	selection *verification.Selection
	resolver  *audit.Resolver
	engine    *executor.Engine
	telemetry *observability.Provider

	closers []func() error
}

// loadConfig loads configuration and installs the process logger.
func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newApp opens storage and builds the pipeline stages. Callers must close
// the returned app.
func newApp(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	st, closeStore, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	a.selection, err = verification.NewSelection(cfg.VerificationBackendConfig(), verification.WithLogger(logger))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	backend, err := artifacts.NewStore(ctx, cfg.WorkspaceConfig())
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if c, ok := backend.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	var wsOpts []artifacts.WorkspaceOption
	if chain := a.selection.Chain(); chain != nil && chain.Signer() != nil {
		wsOpts = append(wsOpts, artifacts.WithManifestSigner(chain.Signer()))
	}
	a.workspace = artifacts.NewWorkspace(backend, wsOpts...)

	resolverOpts := []audit.Option{audit.WithLogger(logger)}
	if r := cfg.Storage.Redis; r.Addr != "" {
		resolverOpts = append(resolverOpts, audit.WithLocker(audit.NewRedisLockerFromAddr(r.Addr, r.Password, r.DB)))
	}
	a.resolver = audit.NewResolver(st, a.workspace, resolverOpts...)

	vc := cfg.VenueConfig()
	vc.Logger = logger
	hl, err := venue.NewHyperliquid(vc)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.engine = executor.NewEngine(cfg.ExecutorConfig(),
		executor.WithVenue(hl),
		executor.WithLogger(logger),
		executor.WithCompiler(policy.NewCompiler(logger)),
	)

	a.telemetry, err = observability.New(ctx, &observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	return pipeline.New(a.engine, a.selection, a.resolver,
		pipeline.WithTelemetry(a.telemetry),
		pipeline.WithLogger(a.logger),
	)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// reportError prints err as an error IR document and returns the exit code.
func reportError(w io.Writer, err error) int {
	ir, _ := errorir.FromError(err)
	data, mErr := json.MarshalIndent(ir, "", "  ")
	if mErr != nil {
		_, _ = fmt.Fprintf(w, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(w, string(data))
	switch ir.Core.ErrorCode {
	case errorir.CodeConfigInvalid, errorir.CodeInternal, errorir.CodePersistenceFailed:
		return 2
	}
	return 1
}

func writeJSON(w io.Writer, v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(w, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(w, string(data))
	return 0
}
