package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"roundtable/internal/logs"
)

const daemonLogName = "roundtabled.log"

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var level string
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter := logs.Filter{SessionID: strings.TrimSpace(sessionID), MinLevel: slog.LevelDebug}
			if level != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("invalid --level %q", level)
				}
			}
			path := filepath.Join(cfg.Paths.LogDir, daemonLogName)
			out := cmd.OutOrStdout()

			entries, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintln(out, entry.Format())
			}
			if !follow {
				if len(entries) == 0 {
					fmt.Fprintf(out, "No log entries in %s\n", path)
				}
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = logs.Follow(followCtx, path, offset, filter, 500*time.Millisecond, func(entry logs.Entry) {
				fmt.Fprintln(out, entry.Format())
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Only entries for this session id")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	return cmd
}
