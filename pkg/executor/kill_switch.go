package executor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// KillSwitchBehavior selects what an active kill switch blocks.
type KillSwitchBehavior string

const (
	BlockAll  KillSwitchBehavior = "block_all"
	BlockLive KillSwitchBehavior = "block_live"
)

// ParseKillSwitchBehavior parses a configuration value.
func ParseKillSwitchBehavior(s string) (KillSwitchBehavior, error) {
	switch b := KillSwitchBehavior(strings.ToLower(strings.TrimSpace(s))); b {
	case BlockAll, BlockLive:
		return b, nil
	}
	return "", fmt.Errorf("unknown kill switch behavior %q", s)
}

// KillSwitch is an emergency stop for trading. It may start active from
// configuration and be toggled at runtime.
type KillSwitch struct {
	mu          sync.RWMutex
	active      bool
	behavior    KillSwitchBehavior
	activatedAt time.Time
	reason      string
}

// NewKillSwitch creates a kill switch. An empty behavior means BlockAll.
func NewKillSwitch(active bool, behavior KillSwitchBehavior) *KillSwitch {
	if behavior == "" {
		behavior = BlockAll
	}
	ks := &KillSwitch{behavior: behavior}
	if active {
		ks.active = true
		ks.reason = "configured"
		ks.activatedAt = time.Now()
	}
	return ks
}

// Activate engages the kill switch.
func (ks *KillSwitch) Activate(reason string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.active = true
	ks.activatedAt = time.Now()
	ks.reason = reason
}

// Deactivate releases the kill switch.
func (ks *KillSwitch) Deactivate() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.active = false
	ks.reason = ""
}

// IsActive reports whether the kill switch is engaged.
func (ks *KillSwitch) IsActive() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.active
}

// Status returns the current state.
func (ks *KillSwitch) Status() (active bool, behavior KillSwitchBehavior, reason string, since time.Time) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.active, ks.behavior, ks.reason, ks.activatedAt
}

// Blocks reports whether an execution in mode must be refused.
func (ks *KillSwitch) Blocks(mode contracts.ExecutionMode) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.active {
		return false
	}
	return ks.behavior == BlockAll || mode == contracts.ModeLive
}
