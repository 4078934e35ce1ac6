// SPDX-License-Identifier: MPL-2.0

// Package process runs external tools (the base interpreter, pip, PyInstaller) and
// captures their outcome as a Result.
//
// Nothing in this package mutates the environment of the current process: every
// Invocation carries its own environment overlay, which is how an isolated Python
// environment is "activated" for a single child process.
package process
