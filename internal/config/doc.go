// SPDX-License-Identifier: MPL-2.0

// Package config loads pybundle settings.
//
// Settings are layered, later layers winning: built-in defaults, the
// [tool.pybundle] table of pyproject.toml, the global config.cue, the
// project's pybundle.cue, PYBUNDLE_* environment variables, and finally
// explicit overrides from command-line flags. Both CUE files and the
// pyproject table are validated against the embedded #Config schema.
package config
