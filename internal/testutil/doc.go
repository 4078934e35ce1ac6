// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by the package tests.
//
// Must* helpers fail the test on filesystem or environment errors. FakeRunner
// records tool invocations, and FakePython simulates the interpreter, pip and
// PyInstaller closely enough to drive a complete build without Python installed.
package testutil
