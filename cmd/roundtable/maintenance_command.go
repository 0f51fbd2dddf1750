package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newMaintenanceCommand(ctx *commandContext) *cobra.Command {
	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Repair sessions that stopped making progress",
	}

	var threshold time.Duration
	stuckCmd := &cobra.Command{
		Use:   "stuck",
		Short: "Repair sessions with no activity for longer than the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold < 0 {
				return fmt.Errorf("threshold must be positive")
			}
			return ctx.withBackend(cmd.Context(), func(backend sessionBackend) error {
				repaired, err := backend.SweepStuck(cmd.Context(), threshold)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if repaired == 0 {
					fmt.Fprintln(out, "No stuck sessions")
					return nil
				}
				fmt.Fprintf(out, "Repaired %d stuck session(s) via %s\n", repaired, backend.Source())
				return nil
			})
		},
	}
	stuckCmd.Flags().DurationVar(&threshold, "threshold", 0, "Inactivity threshold such as 30m (default workflow.stuck_threshold_minutes)")

	maintenanceCmd.AddCommand(stuckCmd)
	return maintenanceCmd
}
