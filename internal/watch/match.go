// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// builtinIgnores never trigger a rebuild: VCS metadata, interpreter caches,
// editor noise and everything a build itself writes into the project.
var builtinIgnores = []string{
	".git/**",
	"**/__pycache__/**",
	"**/*.pyc",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
	"build/**",
	"dist/**",
	"*.spec",
	".pybundle.lock",
	".pybundle-stage-*",
}

// matcher decides which project-relative paths are relevant.
type matcher struct {
	patterns []string
	ignores  []string
}

func newMatcher(patterns, ignore []string) (*matcher, error) {
	if err := validatePatterns(patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(ignore, "ignore"); err != nil {
		return nil, err
	}
	ignores := make([]string, 0, len(builtinIgnores)+len(ignore))
	ignores = append(ignores, builtinIgnores...)
	ignores = append(ignores, ignore...)
	return &matcher{patterns: patterns, ignores: ignores}, nil
}

// ignored reports whether rel matches an ignore pattern.
func (m *matcher) ignored(rel string) bool {
	return matchAny(m.ignores, filepath.ToSlash(rel))
}

// ignoredDir also matches patterns written for a directory's contents, so
// that "venv/**" prunes the venv directory itself.
func (m *matcher) ignoredDir(rel string) bool {
	return m.ignored(rel) || m.ignored(rel+"/")
}

// selected reports whether rel should trigger a rebuild. No patterns selects
// every path that is not ignored.
func (m *matcher) selected(rel string) bool {
	if m.ignored(rel) {
		return false
	}
	if len(m.patterns) == 0 {
		return true
	}
	return matchAny(m.patterns, filepath.ToSlash(rel))
}

func matchAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, path); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, pat, doublestar.ErrBadPattern)
		}
	}
	return nil
}

// BuiltinIgnores returns a copy of the patterns that are always ignored.
func BuiltinIgnores() []string {
	return append([]string(nil), builtinIgnores...)
}
