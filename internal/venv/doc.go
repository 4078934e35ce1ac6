// SPDX-License-Identifier: MPL-2.0

// Package venv creates and resolves isolated Python environments.
//
// Resolving an environment replaces shell "activation": instead of changing the
// PATH of the running process, Resolve returns an Environment whose interpreter
// path and environment overlay are handed to each child process explicitly.
package venv
