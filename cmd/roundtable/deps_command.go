package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"roundtable/internal/api"
	"roundtable/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check the external binaries used for conversion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(cmd.Context(), deps.ForConfig(cfg))
			if jsonOutput {
				return writeJSON(cmd, api.FromDependencies(statuses))
			}
			out := cmd.OutOrStdout()
			for _, line := range dependencyLines(api.FromDependencies(statuses), shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %v", missing)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}
