// SPDX-License-Identifier: MPL-2.0

package process

import "strconv"

// ExitCode represents a process exit status. The zero value means success.
type ExitCode int

// IsSuccess returns true if the exit code indicates success.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// String returns the decimal representation.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
