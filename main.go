// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/pybundle/pybundle/cmd/pybundle"

func main() {
	cmd.Execute()
}
