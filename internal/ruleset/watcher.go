package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Invalidator drops cached compilations of a rule.
type Invalidator interface {
	Invalidate(ruleID string) int
}

// Watcher reloads a rule file when it changes on disk. Editors often write
// a file several times per save, so events are debounced.
type Watcher struct {
	path     string
	set      *Set
	cache    Invalidator
	logger   *slog.Logger
	debounce time.Duration
	mu       sync.Mutex
}

// NewWatcher creates a watcher for the rule file at path.
func NewWatcher(path string, set *Set, cache Invalidator, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		set:      set,
		cache:    cache,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
}

// Reload reads the rule file, swaps it into the set and invalidates the
// cache entries of every changed rule. On error the set is left untouched.
func (w *Watcher) Reload() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rules, err := LoadFile(w.path)
	if err != nil {
		return nil, err
	}
	changed := w.set.Replace(rules)
	for _, id := range changed {
		w.cache.Invalidate(id)
	}
	return changed, nil
}

// Run watches the directory of the rule file until ctx is done. The
// directory is watched rather than the file so that atomic renames by
// editors are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rule watcher error", "error", err)

		case <-timer.C:
			changed, err := w.Reload()
			if err != nil {
				w.logger.Warn("rule reload failed, keeping previous rules", "path", w.path, "error", err)
				continue
			}
			w.logger.Info("rules reloaded", "path", w.path, "changed", len(changed), "version", w.set.Version())
		}
	}
}
