package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const presetJSON = `{
	"name": "conservative",
	"text": "Max leverage 2x, slippage 10 bps",
	"profile": {
		"max_allocation_usd": "10000",
		"per_trade_notional_cap_usd": "2000",
		"max_leverage": "3",
		"symbol_allowlist": ["btc-usd"],
		"symbol_denylist": [],
		"max_slippage_bps": "25",
		"information_sharing_scope": "signals_only"
	}
}`

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conservative.json")
	if err := os.WriteFile(path, []byte(presetJSON), 0600); err != nil {
		t.Fatal(err)
	}

	var reloaded string
	loader := NewLoader(dir, nil)
	loader.OnReload(func(p *LoadedPreset) { reloaded = p.Preset.Name })
	if err := loader.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	p, ok := loader.Get("conservative")
	if !ok {
		t.Fatal("preset not found")
	}
	if reloaded != "conservative" {
		t.Errorf("reload callback got %q", reloaded)
	}
	if got := p.Compiled.MaxLeverage.String(); got != "2" {
		t.Errorf("max leverage = %s, want 2", got)
	}
	if got := p.Compiled.SymbolAllowlist; len(got) != 1 || got[0] != "BTC-USD" {
		t.Errorf("allowlist = %v", got)
	}
	if names := loader.Names(); len(names) != 1 {
		t.Errorf("names = %v", names)
	}
}

func TestLoader_NamelessPresetUsesFileName(t *testing.T) {
	dir := t.TempDir()
	body := `{"text":"copy","profile":{"max_allocation_usd":"1","per_trade_notional_cap_usd":"1","max_leverage":"1","max_slippage_bps":"1","information_sharing_scope":"none"}}`
	if err := os.WriteFile(filepath.Join(dir, "plain.json"), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600); err != nil {
		t.Fatal(err)
	}
	loader := NewLoader(dir, nil)
	if err := loader.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, ok := loader.Get("plain.json"); !ok {
		t.Fatalf("expected preset keyed by file name, have %v", loader.Names())
	}
}

func TestLoader_InvalidPresetFails(t *testing.T) {
	dir := t.TempDir()
	body := `{"name":"bad","text":"   ","profile":{}}`
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	if err := NewLoader(dir, nil).LoadAll(context.Background()); err == nil {
		t.Fatal("expected error for empty policy text")
	}
}

func TestLoader_MissingDir(t *testing.T) {
	if err := NewLoader(filepath.Join(t.TempDir(), "nope"), nil).LoadAll(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
