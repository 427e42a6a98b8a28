package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Preset is a named policy text paired with the profile it runs under,
// stored as a JSON file so operators can ship policies without a deploy.
type Preset struct {
	Name    string                                     `json:"name"`
	Text    string                                     `json:"text"`
	Profile contracts.CopyTradingInitializationProfile `json:"profile"`
}

// LoadedPreset is a preset together with its compiled form.
type LoadedPreset struct {
	Preset   Preset
	Compiled *CompiledPolicy
	Path     string
}

// Loader loads and compiles presets from a directory.
type Loader struct {
	mu       sync.RWMutex
	presets  map[string]*LoadedPreset
	dir      string
	compiler *Compiler
	onReload func(*LoadedPreset)
}

// NewLoader creates a preset loader for dir. A nil compiler uses the
// default one.
func NewLoader(dir string, compiler *Compiler) *Loader {
	if compiler == nil {
		compiler = defaultCompiler
	}
	return &Loader{
		presets:  make(map[string]*LoadedPreset),
		dir:      dir,
		compiler: compiler,
	}
}

// OnReload registers a callback invoked when a preset is loaded or reloaded.
func (l *Loader) OnReload(fn func(*LoadedPreset)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every .json preset in the directory.
func (l *Loader) LoadAll(ctx context.Context) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("policy: read dir %s: %w", l.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := l.LoadFile(ctx, filepath.Join(l.dir, entry.Name())); err != nil {
			return fmt.Errorf("policy: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile loads and compiles a single preset file. A preset without a
// name is keyed by its file name.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse preset: %w", err)
	}
	if p.Name == "" {
		p.Name = filepath.Base(path)
	}
	compiled, err := l.compiler.Compile(ctx, p.Text, p.Profile)
	if err != nil {
		return fmt.Errorf("compile preset %s: %w", p.Name, err)
	}
	loaded := &LoadedPreset{Preset: p, Compiled: compiled, Path: path}

	l.mu.Lock()
	l.presets[p.Name] = loaded
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(loaded)
	}
	return nil
}

// Get returns a loaded preset by name.
func (l *Loader) Get(name string) (*LoadedPreset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.presets[name]
	return p, ok
}

// Names returns the loaded preset names in sorted order.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.presets))
	for name := range l.presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
