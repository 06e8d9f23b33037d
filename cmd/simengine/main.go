// Package main provides the entry point for the simengine CLI.
package main

import (
	"os"

	"github.com/xplagiax/simengine/cmd/simengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
