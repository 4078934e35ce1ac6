// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	calls   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{calls: make(chan struct{}, 16)}
}

func (r *recorder) build(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.batches = append(r.batches, changed)
	r.mu.Unlock()
	r.calls <- struct{}{}
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

func waitCall(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a build")
	}
}

func startWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	return w
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DebouncesChangesIntoOneBuild(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := newRecorder()
	w := startWatcher(t, Config{
		ProjectDir: dir,
		Patterns:   []string{"**/*.py"},
		Debounce:   150 * time.Millisecond,
		Build:      rec.build,
	})

	for _, name := range []string{"a.py", "b.py", "c.py"} {
		write(t, filepath.Join(dir, name))
		time.Sleep(10 * time.Millisecond)
	}
	waitCall(t, rec.calls)

	// No second build follows from the same burst.
	select {
	case <-rec.calls:
		t.Fatalf("unexpected second build: %v", rec.snapshot())
	case <-time.After(400 * time.Millisecond):
	}

	batches := rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("builds = %d, want 1", len(batches))
	}
	if !slices.Equal(batches[0], []string{"a.py", "b.py", "c.py"}) {
		t.Errorf("changed = %v, want [a.py b.py c.py]", batches[0])
	}
	if w.Builds() != 1 {
		t.Errorf("Builds() = %d", w.Builds())
	}
}

func TestWatcher_IgnoresBuildOutputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "venv", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	startWatcher(t, Config{
		ProjectDir: dir,
		Patterns:   []string{"**/*.py", "requirements.txt"},
		Ignore:     []string{"venv/**"},
		Debounce:   100 * time.Millisecond,
		Build:      rec.build,
	})

	write(t, filepath.Join(dir, "venv", "bin", "activate.py"))
	write(t, filepath.Join(dir, "dist", "app.py"))
	write(t, filepath.Join(dir, "notes.txt"))
	write(t, filepath.Join(dir, "requirements.txt"))
	waitCall(t, rec.calls)

	batches := rec.snapshot()
	if !slices.Equal(batches[0], []string{"requirements.txt"}) {
		t.Errorf("changed = %v, want [requirements.txt]", batches[0])
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, Config{
		ProjectDir: dir,
		Patterns:   []string{"**/*.py"},
		Debounce:   100 * time.Millisecond,
		Build:      rec.build,
	})

	if err := os.Mkdir(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher time to register the new directory.
	time.Sleep(100 * time.Millisecond)
	write(t, filepath.Join(dir, "pkg", "mod.py"))
	waitCall(t, rec.calls)

	if got := rec.snapshot()[0]; !slices.Contains(got, "pkg/mod.py") {
		t.Errorf("changed = %v, want pkg/mod.py", got)
	}
}

func TestWatcher_BuildOnStart(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	startWatcher(t, Config{
		ProjectDir:   t.TempDir(),
		BuildOnStart: true,
		Build:        rec.build,
	})
	waitCall(t, rec.calls)

	if got := rec.snapshot()[0]; got != nil {
		t.Errorf("initial build changed = %v, want nil", got)
	}
}

func TestWatcher_BuildsNeverOverlap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var (
		active  atomic.Int32
		overlap atomic.Bool
		started = make(chan struct{}, 4)
	)
	startWatcher(t, Config{
		ProjectDir: dir,
		Patterns:   []string{"**/*.py"},
		Debounce:   50 * time.Millisecond,
		Build: func(context.Context, []string) error {
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			started <- struct{}{}
			time.Sleep(300 * time.Millisecond)
			active.Add(-1)
			return errors.New("build failed")
		},
	})

	write(t, filepath.Join(dir, "a.py"))
	waitCall(t, started)
	// Arrives while the first build is still running.
	write(t, filepath.Join(dir, "b.py"))
	waitCall(t, started)

	if overlap.Load() {
		t.Error("two builds ran at the same time")
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{ProjectDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{ProjectDir: t.TempDir(), Patterns: []string{"[bad"}}); err == nil {
		t.Error("New() accepted an invalid pattern")
	}
}

func TestWatcher_StoppedBatchDoesNotBuild(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	w, err := New(Config{ProjectDir: t.TempDir(), Build: rec.build})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.fsw.Close() })
	ctx := context.Background()

	live := newBatch()
	live.add("a.py")
	w.fire(ctx, live)
	if got := rec.snapshot(); len(got) != 1 || !slices.Equal(got[0], []string{"a.py"}) {
		t.Fatalf("builds = %v, want [[a.py]]", got)
	}

	// A timer that already fired when Run stopped the batch must not build.
	stopped := newBatch()
	stopped.add("b.py")
	stopped.stop()
	w.fire(ctx, stopped)
	if w.Builds() != 1 {
		t.Errorf("Builds() = %d after firing a stopped batch, want 1", w.Builds())
	}

	stopped.schedule(time.Millisecond, func() { w.fire(ctx, stopped) })
	time.Sleep(50 * time.Millisecond)
	if w.Builds() != 1 {
		t.Errorf("Builds() = %d after scheduling on a stopped batch, want 1", w.Builds())
	}
}
