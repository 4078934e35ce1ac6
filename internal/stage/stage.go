// SPDX-License-Identifier: MPL-2.0

// Package stage copies a built artifact to its final location.
package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// ErrSourceMissing is returned when the artifact to stage does not exist.
	ErrSourceMissing = errors.New("artifact to stage does not exist")
	// ErrSizeMismatch is returned when the staged copy is not the same size as the source.
	ErrSizeMismatch = errors.New("staged copy size does not match the artifact")
)

// Outcome describes a staged artifact.
type Outcome struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
	Size        int64  `json:"size" yaml:"size"`
	SHA256      string `json:"sha256" yaml:"sha256"`
}

// Copy copies src to dst, replacing dst atomically. The copy is written to a
// temp file next to dst, synced, given the source's permissions and renamed
// into place, so dst is either the old file or the complete new one.
func Copy(src, dst string) (_ *Outcome, err error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, ErrSourceMissing)
	}
	defer func() { _ = in.Close() }() // read-only

	info, err := in.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", src, ErrSourceMissing)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pybundle-stage-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmp.Name())
		}
	}()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), in)
	if err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("copying artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("syncing staged copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing staged copy: %w", err)
	}
	if n != info.Size() {
		return nil, fmt.Errorf("%w: copied %d of %d bytes", ErrSizeMismatch, n, info.Size())
	}

	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("setting artifact permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("replacing %s: %w", dst, err)
	}
	renamed = true

	slog.Debug("artifact staged", "src", src, "dst", dst, "bytes", n)
	return &Outcome{
		Source:      src,
		Destination: dst,
		Size:        n,
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
	}, nil
}
