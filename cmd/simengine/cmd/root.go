// Package cmd provides the CLI commands for simengine.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xplagiax/simengine/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the simengine CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simengine",
		Short: "Academic plagiarism-detection engine",
		Long: `simengine detects plagiarism in academic text fragments by combining
a local vector index of previously seen papers with federated searches
across twelve bibliographic APIs.

Run 'simengine serve' to start the HTTP service, or use the search and
check commands for one-off queries against a local data directory.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("simengine version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newCheckCmd(),
		newStatsCmd(),
		newAdminCmd(),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
