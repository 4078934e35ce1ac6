// SPDX-License-Identifier: MPL-2.0

// Package container runs build tools inside a docker or podman container.
//
// The project directory is bind-mounted at a fixed path inside the container,
// and every host path under it that appears in an invocation is rewritten to
// the mounted path. The environment and the artifact therefore end up in the
// project directory on the host, exactly as in a native build.
package container
