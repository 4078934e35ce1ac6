// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// isTerminal reports whether in is an interactive terminal.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// pause waits for Enter when stdin is interactive, so a window opened for the
// build stays visible. Non-interactive input never blocks.
func (a *App) pause() {
	if !a.interactive(a.stdin) {
		return
	}
	fmt.Fprint(a.stdout, SubtitleStyle.Render("Press Enter to exit..."))
	_, _ = bufio.NewReader(a.stdin).ReadString('\n')
}
