// Package cmd contains all CLI commands for matrun.
package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// verbose enables debug logging
	verbose bool

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "matrun",
		Short: "A multi-environment test matrix runner",
		Long: `matrun expands a declarative axis matrix (interpreter version x
framework version x check type) into named execution environments and
runs them stage by stage: stages strictly in order, environments within
a stage in parallel, each in its own isolated dependency scope.

Environments are declared in a 'matrun.yml' file. A run exits 0 only if
every environment not flagged allow_failure passed.

Examples:
  matrun list               Show the expanded environment list
  matrun run                Run the full matrix
  matrun run --stage test   Run only the 'test' stage
  matrun serve              Start the dashboard server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	})

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(serveCmd)
}
