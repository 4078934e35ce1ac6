// SPDX-License-Identifier: MPL-2.0

package buildlock

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireCreatesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lock, err := Acquire(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer lock.Release()

	if _, statErr := os.Stat(Path(dir)); statErr != nil {
		t.Errorf("lock file not found: %v", statErr)
	}
	if pid := readPID(Path(dir)); pid != os.Getpid() {
		t.Errorf("recorded pid = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireFailsFastWhenHeld(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	held, err := Acquire(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer held.Release()

	_, err = Acquire(context.Background(), dir, false)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrLocked", err)
	}
	var locked *LockedError
	if !errors.As(err, &locked) || locked.PID != os.Getpid() {
		t.Errorf("LockedError = %+v", locked)
	}
}

func TestAcquireWaits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	held, err := Acquire(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		l, bErr := Acquire(context.Background(), dir, true)
		if bErr != nil {
			t.Errorf("waiting Acquire() error: %v", bErr)
			return
		}
		acquired.Store(true)
		l.Release()
	}()

	time.Sleep(3 * pollInterval)
	if acquired.Load() {
		t.Fatal("waiter acquired the lock while it was held")
	}
	held.Release()

	select {
	case <-done:
		if !acquired.Load() {
			t.Fatal("waiter never acquired the lock")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the waiter")
	}
}

func TestAcquireWaitHonorsContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	held, err := Acquire(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 2*pollInterval)
	defer cancel()
	if _, err := Acquire(ctx, dir, true); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want DeadlineExceeded", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	t.Parallel()

	lock, err := Acquire(context.Background(), t.TempDir(), false)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	lock.Release()
	lock.Release()

	var nilLock *Lock
	nilLock.Release()
}
