// SPDX-License-Identifier: MPL-2.0

// Package watch rebuilds a project whenever its sources change.
//
// Changes are collected until the project has been quiet for the debounce
// window, then a single build receives every changed path. Builds never
// overlap: changes that arrive while a build runs are kept and trigger the
// next one.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

type (
	// BuildFunc runs one build for the given project-relative changed paths.
	BuildFunc func(ctx context.Context, changed []string) error

	// Config configures a Watcher.
	Config struct {
		// ProjectDir is the watched root. Empty means the working directory.
		ProjectDir string
		// Patterns select the paths that trigger a build, e.g. "**/*.py".
		// Empty selects every path that is not ignored.
		Patterns []string
		// Ignore is merged with the built-in ignores.
		Ignore []string
		// Debounce is the quiet period before a build. Zero uses 500ms.
		Debounce time.Duration
		// BuildOnStart runs one build before waiting for changes.
		BuildOnStart bool
		// Build is called for each batch of changes. Its error is logged and
		// watching continues.
		Build BuildFunc
	}

	// Watcher turns filesystem events under a project into builds.
	Watcher struct {
		cfg      Config
		root     string
		debounce time.Duration
		match    *matcher
		fsw      *fsnotify.Watcher
		started  atomic.Bool
		builds   atomic.Int64
	}

	// batch collects changed paths and runs at most one build at a time.
	batch struct {
		mu       sync.Mutex
		pending  map[string]struct{}
		timer    *time.Timer
		stopped  bool
		// building is held for the duration of a build.
		building sync.Mutex
	}
)

// New validates cfg and registers every non-ignored directory of the project.
func New(cfg Config) (*Watcher, error) {
	root := cfg.ProjectDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve project directory: %w", err)
	}

	m, err := newMatcher(cfg.Patterns, cfg.Ignore)
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	w := &Watcher{cfg: cfg, root: root, debounce: debounce, match: m, fsw: fsw}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Builds reports how many builds have started.
func (w *Watcher) Builds() int {
	return int(w.builds.Load())
}

// Run processes events until ctx is done. It returns nil on cancellation and
// an error when the watcher can no longer deliver events.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			slog.Debug("closing watcher", "error", err)
		}
	}()

	b := newBatch()
	defer func() {
		b.stop()
		// Wait for a build that is still running.
		b.building.Lock()
		b.building.Unlock()
	}()

	if w.cfg.BuildOnStart {
		w.build(ctx, nil)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			rel, err := filepath.Rel(w.root, evt.Name)
			if err != nil {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.addCreated(evt.Name, rel)
			}
			if !w.match.selected(rel) {
				continue
			}
			slog.Debug("change detected", "path", rel, "op", evt.Op.String())
			b.add(filepath.ToSlash(rel))
			b.schedule(w.debounce, func() { w.fire(ctx, b) })

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if fatal(err) {
				return fmt.Errorf("watch: %w", err)
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// fire builds the pending changes once the quiet period ends. A stopped batch
// never builds, even when its timer was already running.
func (w *Watcher) fire(ctx context.Context, b *batch) {
	if ctx.Err() != nil {
		return
	}
	if !b.building.TryLock() {
		slog.Debug("build in progress, deferring changes")
		b.schedule(w.debounce, func() { w.fire(ctx, b) })
		return
	}
	defer b.building.Unlock()

	// Checked while holding the build slot, so Run cannot return in between.
	if b.isStopped() {
		return
	}
	changed := b.drain()
	if len(changed) == 0 {
		return
	}
	w.build(ctx, changed)
}

func (w *Watcher) build(ctx context.Context, changed []string) {
	if w.cfg.Build == nil {
		return
	}
	n := w.builds.Add(1)
	slog.Info("rebuilding", "build", n, "changed", changed)
	if err := w.cfg.Build(ctx, changed); err != nil {
		slog.Warn("build failed", "build", n, "error", err)
	}
}

// addTree registers dir and every directory below it that is not ignored.
// Unreadable directories are skipped.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		if rel != "." && w.match.ignoredDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

// addCreated extends the watch to directories created after startup.
func (w *Watcher) addCreated(path, rel string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() || w.match.ignoredDir(rel) {
		return
	}
	if err := w.addTree(path); err != nil {
		slog.Warn("watching new directory", "path", rel, "error", err)
	}
}

func newBatch() *batch {
	return &batch{pending: make(map[string]struct{})}
}

func (b *batch) add(path string) {
	b.mu.Lock()
	b.pending[path] = struct{}{}
	b.mu.Unlock()
}

func (b *batch) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := slices.Sorted(maps.Keys(b.pending))
	clear(b.pending)
	return changed
}

// schedule (re)starts the quiet period.
func (b *batch) schedule(d time.Duration, fire func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(d, fire)
		return
	}
	b.timer.Reset(d)
}

func (b *batch) isStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

func (b *batch) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
	}
}
