package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"roundtable/internal/daemonctl"
	"roundtable/internal/session"
	"roundtable/internal/store"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and repair sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsDiagnoseCommand(ctx))
	sessionsCmd.AddCommand(newSessionsRecoverCommand(ctx))
	sessionsCmd.AddCommand(newSessionsRedownloadCommand(ctx))
	sessionsCmd.AddCommand(newSessionsDeleteCommand(ctx))
	sessionsCmd.AddCommand(newSessionsHealthCommand(ctx))

	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, state := range states {
				if _, ok := session.ParseSessionState(state); !ok {
					return fmt.Errorf("unknown session state %q", state)
				}
			}
			return ctx.withBackend(cmd.Context(), func(backend sessionBackend) error {
				sessions, err := backend.List(cmd.Context(), states)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, sessions)
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				fmt.Fprintln(out, renderSessionTable(sessions))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session with its files and highlights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(backend sessionBackend) error {
				sess, err := backend.Get(cmd.Context(), args[0])
				if err != nil {
					return describeLookupError(args[0], err)
				}
				if jsonOutput {
					return writeJSON(cmd, sess)
				}
				renderSessionDetail(cmd.OutOrStdout(), *sess)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newSessionsDiagnoseCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "diagnose <id>",
		Short: "Report problems with a session and how to fix them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(backend sessionBackend) error {
				report, err := backend.Diagnose(cmd.Context(), args[0])
				if err != nil {
					return describeLookupError(args[0], err)
				}
				if jsonOutput {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				renderDiagnostics(out, *report, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newSessionsRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <id>",
		Short: "Reset retryable failed files and queue the session again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(backend sessionBackend) error {
				count, err := backend.Recover(cmd.Context(), args[0])
				if err != nil {
					return describeLookupError(args[0], err)
				}
				out := cmd.OutOrStdout()
				if count == 0 {
					fmt.Fprintln(out, "No retryable files to reset")
					return nil
				}
				fmt.Fprintf(out, "Reset %d file(s); session %s is queued (%s)\n", count, args[0], backend.Source())
				return nil
			})
		},
	}
}

func newSessionsRedownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redownload <id>",
		Short: "Fetch missing transcripts for finished provider jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(backend sessionBackend) error {
				count, err := backend.Redownload(cmd.Context(), args[0])
				if err != nil {
					return describeLookupError(args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d transcript(s)\n", count)
				return nil
			})
		},
	}
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete sessions from the database (recordings are kept)",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(cmd.Context(), func(backend sessionBackend) error {
				out := cmd.OutOrStdout()
				var failed []string
				for _, id := range args {
					if err := backend.Delete(cmd.Context(), id); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, describeLookupError(id, err))
						failed = append(failed, id)
						continue
					}
					fmt.Fprintf(out, "Deleted %s\n", id)
				}
				if len(failed) > 0 {
					return fmt.Errorf("failed to delete %s", strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func newSessionsHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the session database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				db, err := st.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				summary, err := st.Health(cmd.Context())
				if err != nil {
					return err
				}

				for _, line := range renderSectionHeader("Database", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Path", statusInfo, db.DBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Schema", statusInfo, fmt.Sprintf("version %d", db.SchemaVersion), colorize))
				integrity := statusOK
				if !db.IntegrityCheck {
					integrity = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Integrity", integrity, yesNo(db.IntegrityCheck), colorize))
				if len(db.MissingTables)+len(db.MissingColumns) > 0 {
					missing := append(append([]string{}, db.MissingTables...), db.MissingColumns...)
					fmt.Fprintln(out, renderStatusLine("Schema drift", statusError, strings.Join(missing, ", "), colorize))
				}
				if db.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, db.Error, colorize))
				}
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Sessions", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d (%d files)", summary.Total, db.TotalFiles), colorize))
				fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprint(summary.Pending), colorize))
				fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, fmt.Sprint(summary.Processing), colorize))
				failedKind := statusOK
				if summary.Failed > 0 {
					failedKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprint(summary.Failed), colorize))
				fmt.Fprintln(out, renderStatusLine("Complete", statusOK, fmt.Sprint(summary.Complete), colorize))
				return nil
			})
		},
	}
}

func describeLookupError(id string, err error) error {
	var apiErr *daemonctl.APIError
	if errors.Is(err, store.ErrNotFound) || (errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	return err
}
