// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the Acctl CLI application.
package main

import (
	"acctl/cli/cmd"
)

func main() {
	cmd.Execute()
}
