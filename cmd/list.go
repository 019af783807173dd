package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"matrun/matrix"
)

var listCmd = &cobra.Command{
	Use:   "list [config]",
	Short: "Show the expanded environment list without running anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := "matrun.yml"
		if len(args) == 1 {
			configPath = args[0]
		}

		cfg, err := matrix.LoadConfig(configPath)
		if err != nil {
			return err
		}

		envs, err := matrix.Expand(cfg)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ENVIRONMENT\tSTAGE\tDEPS\tFLAGS")
		for _, env := range envs {
			var flags []string
			if env.AllowFailure {
				flags = append(flags, "allow-failure")
			}
			if env.SkipMissing {
				flags = append(flags, "skip-missing")
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", env.Name, env.Stage, len(env.Deps), strings.Join(flags, ","))
		}
		return tw.Flush()
	},
}
