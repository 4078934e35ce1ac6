// SPDX-License-Identifier: MPL-2.0

// Package buildlock serializes builds of the same project across processes
// with an advisory lock on a file in the project directory.
package buildlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileName is the lock file created in the project directory. The file is
// left behind after a build; only the advisory lock on it matters, and the
// kernel drops that when the holder exits.
const FileName = ".pybundle.lock"

// pollInterval is how often a waiting Acquire retries the lock.
const pollInterval = 100 * time.Millisecond

// ErrLocked is returned when another process holds the lock and the caller
// did not ask to wait.
var ErrLocked = errors.New("another build holds the project lock")

type (
	// Lock is a held build lock.
	Lock struct {
		file *os.File
		path string
	}

	// LockedError reports the holder of a busy lock. It wraps ErrLocked.
	LockedError struct {
		Path string
		// PID is the process id recorded by the holder, or 0 if unknown.
		PID int
	}
)

// Error implements the error interface.
func (e *LockedError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s: held by pid %d: %v", e.Path, e.PID, ErrLocked)
	}
	return fmt.Sprintf("%s: %v", e.Path, ErrLocked)
}

// Unwrap returns ErrLocked.
func (e *LockedError) Unwrap() error { return ErrLocked }

// Path returns the lock file path for a project directory.
func Path(projectDir string) string {
	return filepath.Join(projectDir, FileName)
}

// Acquire takes the build lock of projectDir. When wait is false a busy lock
// fails immediately with a *LockedError; otherwise Acquire retries until the
// lock is free or ctx is done.
func Acquire(ctx context.Context, projectDir string, wait bool) (*Lock, error) {
	path := Path(projectDir)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	logged := false
	for {
		ok, lockErr := tryLock(f)
		if lockErr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, lockErr)
		}
		if ok {
			break
		}

		busy := &LockedError{Path: path, PID: readPID(path)}
		if !wait {
			_ = f.Close()
			return nil, busy
		}
		if !logged {
			slog.Info("waiting for another build to finish", "lock", path, "pid", busy.PID)
			logged = true
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	l := &Lock{file: f, path: path}
	l.recordPID()
	return l, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and closes the lock file. It is safe to call multiple times.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := l.file.Truncate(0); err != nil {
		slog.Debug("lock file truncate failed", "error", err)
	}
	if err := unlock(l.file); err != nil {
		slog.Debug("unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}

func (l *Lock) recordPID() {
	if err := l.file.Truncate(0); err != nil {
		slog.Debug("lock file truncate failed", "error", err)
		return
	}
	if _, err := l.file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		slog.Debug("lock file write failed", "error", err)
	}
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
