// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// They cover the hot paths of a build that do not depend on a real Python:
//   - layered configuration loading (TOML, CUE parsing and schema validation)
//   - the orchestrated build against a fake interpreter
//   - plan rendering and environment merging
//   - native tool execution
//
// To generate a profile, run:
//
//	go test -run '^$' -bench . -cpuprofile default.pgo ./internal/benchmark
package benchmark
