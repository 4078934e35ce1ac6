// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"regexp"
	"strings"

	"cuelang.org/go/cue/errors"
)

// formatCUEError flattens a CUE error into "<file>: <json-path>: <message>"
// lines, e.g. "pybundle.cue: package.onefile: conflicting values true and "yes"".
func formatCUEError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	cueErrors := errors.Errors(err)
	if len(cueErrors) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(cueErrors))
	for _, e := range cueErrors {
		pathStr := formatPath(errors.Path(e))
		msg := e.Error()

		// CUE sometimes repeats the path in the message.
		if pathStr != "" && strings.HasPrefix(msg, pathStr) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, pathStr), ":"))
		}
		if pathStr != "" {
			msg = pathStr + ": " + msg
		}
		lines = append(lines, msg)
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// formatPath renders ["watch", "patterns", "0"] as "watch.patterns[0]".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// checkFileSize rejects files larger than maxSize.
func checkFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", filename, len(data), maxSize)
	}
	return nil
}

// barePackageLabel matches `package` used as a field label at the start of a
// line. `package` is a CUE keyword and must be quoted to be a field.
var barePackageLabel = regexp.MustCompile(`(?m)^([ \t]*)package([ \t]*):`)

// quotePackageLabel rewrites bare `package:` labels to `"package":`. It
// reports whether anything changed.
func quotePackageLabel(data []byte) ([]byte, bool) {
	if !barePackageLabel.Match(data) {
		return data, false
	}
	return barePackageLabel.ReplaceAll(data, []byte(`$1"package"$2:`)), true
}
