package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/tradetrust/pkg/verification"
)

// runHealthCmd implements `tradetrust health`: it checks the configured
// verification backend and reports its state.
func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var timeout time.Duration
	cmd.DurationVar(&timeout, "timeout", 5*time.Second, "Health check timeout")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	sel, err := verification.NewSelection(cfg.VerificationBackendConfig(), verification.WithLogger(logger))
	if err != nil {
		return reportError(stderr, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	h := sel.Health(ctx)

	if code := writeJSON(stdout, h); code != 0 {
		return code
	}
	if h.State != verification.HealthHealthy {
		_, _ = fmt.Fprintf(stderr, "verification backend %s is %s\n", h.Backend, h.State)
		return 1
	}
	return 0
}
