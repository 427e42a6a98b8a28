package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mindburn-Labs/tradetrust/pkg/tool"
)

// runExecuteCmd implements `tradetrust execute`.
//
// Reads execute_trade parameters from --params (a file, or "-" for stdin)
// and prints the tool output.
func runExecuteCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("execute", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		paramsPath string
		userID     string
		agentID    string
		sessionID  string
		approve    bool
	)
	cmd.StringVar(&paramsPath, "params", "-", "Path to execute_trade parameters JSON, or - for stdin")
	cmd.StringVar(&userID, "user", "", "User the intent belongs to (REQUIRED)")
	cmd.StringVar(&agentID, "agent", "", "Agent proposing the intent (REQUIRED)")
	cmd.StringVar(&sessionID, "session", "", "Session identifier")
	cmd.BoolVar(&approve, "approve", false, "Approve a live execution")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if userID == "" || agentID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --user and --agent are required")
		return 2
	}

	var (
		params []byte
		err    error
	)
	if paramsPath == "-" {
		params, err = io.ReadAll(stdin)
	} else {
		params, err = os.ReadFile(paramsPath)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read params: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, stderr)
	if err != nil {
		return reportError(stderr, err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	p, err := a.pipeline()
	if err != nil {
		return reportError(stderr, err)
	}
	et, err := tool.NewExecuteTool(p, a.logger)
	if err != nil {
		return reportError(stderr, err)
	}

	ec := a.cfg.ExecutionContext(userID, sessionID)
	out, err := et.Invoke(ctx, json.RawMessage(params), tool.CallContext{
		AgentID:         agentID,
		UserID:          userID,
		SessionID:       sessionID,
		Approved:        approve,
		PaperLivePolicy: ec.PaperLivePolicy,
		LivePolicyGate:  ec.LivePolicyGate,
	})
	if err != nil {
		return reportError(stdout, err)
	}

	var doc any
	if err := json.Unmarshal(out, &doc); err != nil {
		_, _ = fmt.Fprintln(stdout, string(out))
		return 0
	}
	return writeJSON(stdout, doc)
}
