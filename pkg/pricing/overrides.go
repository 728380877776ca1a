package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Overrides is the schema of a pricing-overrides YAML file. Rows replace
// builtin rows with the same (provider, model) key or add new ones; aliases
// and prefix rules are additive. The fallback row cannot be removed, only
// replaced.
type Overrides struct {
	Models   []ModelPricing    `yaml:"models"`
	Aliases  map[string]string `yaml:"aliases"`  // alias -> "provider/model"
	Prefixes []prefixRule      `yaml:"prefixes"` // appended after builtin rules
	Fallback *ModelPricing     `yaml:"fallback"`
}

// LoadOverrides reads and parses an overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing overrides: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse pricing overrides: %w", err)
	}
	return &o, nil
}

// ApplyOverrides rebuilds the catalog snapshot from the builtin table plus
// the overrides and swaps it in atomically. Readers in flight keep the old
// snapshot; there is no partially applied state.
func (c *Catalog) ApplyOverrides(o *Overrides) error {
	rows := make([]ModelPricing, 0, len(builtinRows)+len(o.Models))
	replaced := make(map[rowKey]ModelPricing, len(o.Models))
	for _, row := range o.Models {
		replaced[rowKey{normalize(row.Provider), normalize(row.Model)}] = row
	}
	for _, row := range builtinRows {
		key := rowKey{normalize(row.Provider), normalize(row.Model)}
		if override, ok := replaced[key]; ok {
			rows = append(rows, override)
			delete(replaced, key)
			continue
		}
		rows = append(rows, row)
	}
	for _, row := range o.Models {
		key := rowKey{normalize(row.Provider), normalize(row.Model)}
		if _, stillNew := replaced[key]; stillNew {
			rows = append(rows, row)
		}
	}

	aliases := make(map[string]rowKey, len(builtinAliases)+len(o.Aliases))
	for alias, key := range builtinAliases {
		aliases[alias] = key
	}
	for alias, target := range o.Aliases {
		key, err := parseRowRef(target)
		if err != nil {
			return fmt.Errorf("alias %q: %w", alias, err)
		}
		aliases[alias] = key
	}

	prefixes := append(append([]prefixRule{}, builtinPrefixes...), o.Prefixes...)

	fallback := builtinFallback
	if o.Fallback != nil {
		fallback = *o.Fallback
	}

	snap, err := buildSnapshot(rows, aliases, prefixes, fallback)
	if err != nil {
		return fmt.Errorf("apply pricing overrides: %w", err)
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

// parseRowRef parses a "provider/model" reference from an overrides file.
func parseRowRef(ref string) (rowKey, error) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '/' {
			return rowKey{normalize(ref[:i]), normalize(ref[i+1:])}, nil
		}
	}
	return rowKey{}, fmt.Errorf("expected provider/model, got %q", ref)
}

// Watcher reloads a pricing-overrides file when it changes on disk. Events
// are debounced so editors that write in multiple steps trigger one reload.
type Watcher struct {
	catalog  *Catalog
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the given overrides file.
func NewWatcher(catalog *Catalog, path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		catalog:  catalog,
		path:     path,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}
}

// Watch blocks until the context is cancelled, reapplying the overrides file
// after each change. Reload failures keep the previous snapshot and are
// logged, never fatal.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create pricing watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		return fmt.Errorf("watch pricing overrides: %w", err)
	}

	w.logger.Info("pricing overrides watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("pricing watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			w.trigger(func() {
				if err := w.reload(); err != nil {
					w.logger.Error("pricing overrides reload failed", "path", w.path, "error", err)
					return
				}
				w.logger.Info("pricing overrides reloaded", "path", w.path)
			})
			// Some editors replace the file; re-add so we keep receiving
			// events for the new inode.
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				_ = fw.Add(w.path)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("pricing watcher errors channel closed")
			}
			w.logger.Error("pricing watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() error {
	o, err := LoadOverrides(w.path)
	if err != nil {
		return err
	}
	return w.catalog.ApplyOverrides(o)
}

func (w *Watcher) trigger(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, fn)
}
