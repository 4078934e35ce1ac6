// SPDX-License-Identifier: MPL-2.0

//go:build windows

package buildlock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// The locked byte lies far past the end of the file so readers of the
// recorded pid are not blocked by the lock.
func lockRegion() *windows.Overlapped {
	return &windows.Overlapped{OffsetHigh: 1}
}

func tryLock(f *os.File) (bool, error) {
	ol := lockRegion()
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return false, nil
	}
	return err == nil, err
}

func unlock(f *os.File) error {
	ol := lockRegion()
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
