// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the pybundle command-line interface.
//
// The Cobra command tree is built by NewRootCommand around an App, which holds
// the configuration provider and the output streams, and is executed through
// fang for styled help, version and error output.
package cmd
