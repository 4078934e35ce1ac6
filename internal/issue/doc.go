// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// Errors raised while preparing the environment, installing dependencies, packaging
// or staging carry the operation that failed, the file involved and remediation hints.
// A markdown catalog keyed by Id adds longer guidance rendered with glamour.
package issue
