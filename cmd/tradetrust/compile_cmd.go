package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/policy"
)

// runCompileCmd implements `tradetrust compile`. It compiles either a
// policy text against a profile file or a named preset from the policy
// directory.
func runCompileCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("compile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		text        string
		profilePath string
		preset      string
	)
	cmd.StringVar(&text, "text", "", "Natural-language policy text")
	cmd.StringVar(&profilePath, "profile", "", "Path to a copytrading profile JSON")
	cmd.StringVar(&preset, "preset", "", "Name of a preset in the configured policy directory")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	ctx := context.Background()
	compiler := policy.NewCompiler(logger)

	if preset != "" {
		if cfg.Policy.PresetDir == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --preset needs a policy directory (TRADETRUST_POLICY_DIR)")
			return 2
		}
		loader := policy.NewLoader(cfg.Policy.PresetDir, compiler)
		if err := loader.LoadAll(ctx); err != nil {
			return reportError(stdout, err)
		}
		lp, ok := loader.Get(preset)
		if !ok {
			_, _ = fmt.Fprintf(stderr, "Error: unknown preset %q (available: %v)\n", preset, loader.Names())
			return 1
		}
		return writeJSON(stdout, lp.Compiled)
	}

	if text == "" || profilePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --text and --profile are required without --preset")
		return 2
	}
	data, err := os.ReadFile(profilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read profile: %v\n", err)
		return 2
	}
	var profile contracts.CopyTradingInitializationProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse profile: %v\n", err)
		return 2
	}

	compiled, err := compiler.Compile(ctx, text, profile)
	if err != nil {
		return reportError(stdout, err)
	}
	return writeJSON(stdout, compiled)
}
