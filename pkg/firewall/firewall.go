// Package firewall guards everything the trust core addresses from the
// outside: network endpoints through fixed host allowlists, and tool calls
// through a tool allowlist with JSON Schema validated parameters.
package firewall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrToolBlocked is returned for tools outside the allowlist.
	ErrToolBlocked = errors.New("tool not in allowlist")
	// ErrInvalidParams is returned when params fail schema validation.
	ErrInvalidParams = errors.New("tool parameters rejected")
	// ErrApprovalRequired is returned for unapproved calls that need approval.
	ErrApprovalRequired = errors.New("tool call requires approval")
	// ErrNoDispatcher is returned when the firewall has nowhere to send an
	// allowed call.
	ErrNoDispatcher = errors.New("firewall dispatcher not configured (fail-closed)")
)

// Caller identifies who is invoking a tool and whether a human approved it.
type Caller struct {
	ActorID   string
	UserID    string
	SessionID string
	Approved  bool
}

// Dispatcher executes the actual tool logic.
type Dispatcher interface {
	Dispatch(ctx context.Context, toolName string, params json.RawMessage, caller Caller) (json.RawMessage, error)
}

// ApprovalFunc reports whether a call with params needs explicit approval.
type ApprovalFunc func(params json.RawMessage) bool

type toolRule struct {
	schema           *jsonschema.Schema
	requiresApproval ApprovalFunc
}

// ToolFirewall enforces a strict allowlist on tool execution.
type ToolFirewall struct {
	mu     sync.RWMutex
	tools  map[string]toolRule
	next   Dispatcher
	logger *slog.Logger
}

// NewToolFirewall creates a firewall that forwards allowed calls to next.
func NewToolFirewall(next Dispatcher, logger *slog.Logger) *ToolFirewall {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolFirewall{
		tools:  make(map[string]toolRule),
		next:   next,
		logger: logger.With("component", "tool_firewall"),
	}
}

// AllowTool adds a tool to the allowlist. An empty schema disables
// parameter validation; a nil requiresApproval never requires approval.
func (f *ToolFirewall) AllowTool(name, schema string, requiresApproval ApprovalFunc) error {
	rule := toolRule{requiresApproval: requiresApproval}
	if schema != "" {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		schemaURL := fmt.Sprintf("https://tradetrust.schemas.local/tools/%s.schema.json", name)
		if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
			return fmt.Errorf("firewall schema load failed: %w", err)
		}
		compiled, err := c.Compile(schemaURL)
		if err != nil {
			return fmt.Errorf("firewall schema compile failed: %w", err)
		}
		rule.schema = compiled
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools[name] = rule
	return nil
}

// CallTool forwards the call if the tool is allowed, its params validate,
// and any required approval is present.
func (f *ToolFirewall) CallTool(ctx context.Context, caller Caller, toolName string, params json.RawMessage) (json.RawMessage, error) {
	f.mu.RLock()
	rule, ok := f.tools[toolName]
	f.mu.RUnlock()
	if !ok {
		f.logger.WarnContext(ctx, "tool blocked", "tool", toolName, "actor", caller.ActorID)
		return nil, fmt.Errorf("firewall blocked tool %q: %w", toolName, ErrToolBlocked)
	}

	if rule.schema != nil {
		if len(bytes.TrimSpace(params)) == 0 {
			return nil, fmt.Errorf("firewall blocked tool %q: missing parameters: %w", toolName, ErrInvalidParams)
		}
		dec := json.NewDecoder(bytes.NewReader(params))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("firewall blocked tool %q: %w: %v", toolName, ErrInvalidParams, err)
		}
		if err := rule.schema.Validate(doc); err != nil {
			return nil, fmt.Errorf("firewall blocked tool %q: %w: %v", toolName, ErrInvalidParams, err)
		}
	}

	if rule.requiresApproval != nil && rule.requiresApproval(params) && !caller.Approved {
		f.logger.WarnContext(ctx, "tool call awaiting approval", "tool", toolName, "actor", caller.ActorID)
		return nil, fmt.Errorf("firewall blocked tool %q: %w", toolName, ErrApprovalRequired)
	}

	if f.next == nil {
		return nil, ErrNoDispatcher
	}
	return f.next.Dispatch(ctx, toolName, params, caller)
}
