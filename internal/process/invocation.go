// SPDX-License-Identifier: MPL-2.0

package process

import (
	"io"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/shell"
	"mvdan.cc/sh/v3/syntax"
)

// Invocation describes one external tool call.
type Invocation struct {
	// Program is the executable path or a name resolved through PATH.
	Program string
	// Args are passed verbatim, without shell interpretation.
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env overlays the inherited environment.
	Env map[string]string
	// Unset names variables removed from the inherited environment.
	Unset []string
	// Stdout and Stderr receive live output. nil discards it (the tail is
	// still captured into the Result).
	Stdout io.Writer
	Stderr io.Writer
}

// Argv returns the program followed by its arguments.
func (inv Invocation) Argv() []string {
	return append([]string{inv.Program}, inv.Args...)
}

// String renders the invocation as a POSIX shell command line.
func (inv Invocation) String() string {
	return FormatCommandLine(inv.Argv())
}

// FormatCommandLine quotes every word for a POSIX shell and joins them.
func FormatCommandLine(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, word := range argv {
		quoted = append(quoted, quoteWord(word))
	}
	return strings.Join(quoted, " ")
}

func quoteWord(word string) string {
	q, err := syntax.Quote(word, syntax.LangPOSIX)
	if err != nil {
		return strconv.Quote(word)
	}
	return q
}

// SplitArgs splits a user-supplied argument string using shell field rules,
// so that `--index-url "$PIP_INDEX" --pre` becomes three arguments with the
// variable expanded from the current environment.
func SplitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return shell.Fields(s, nil)
}
