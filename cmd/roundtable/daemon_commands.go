package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"roundtable/internal/api"
	"roundtable/internal/daemonctl"
	"roundtable/internal/deps"
	"roundtable/internal/store"
)

const daemonBinaryName = "roundtabled"

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the roundtable daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := daemonctl.NewClient(cfg)
			if err != nil {
				return err
			}
			if ctx.daemonClient(cmd.Context()) != nil {
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			if err := daemonctl.Launch(exe, daemonLaunchOptions(ctx)); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon not running, launching...")
			if err := daemonctl.WaitForClient(cmd.Context(), client, 10*time.Second); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the roundtable daemon; running sessions resume on next start",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.Stop(ctx.configValue(), 15*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return renderStatus(cmd, ctx)
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a session the daemon is processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.requireDaemon(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.Cancel(cmd.Context(), args[0]); err != nil {
				return describeLookupError(args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for %s\n", args[0])
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd, cancelCmd}
}

func renderStatus(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	var status *api.DaemonStatus
	if client := ctx.daemonClient(cmd.Context()); client != nil {
		status, err = client.Status(cmd.Context())
		if err != nil {
			return err
		}
	}

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	var dependencies []api.DependencyStatus
	var stats map[string]int
	if status != nil {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		fmt.Fprintln(stdout, renderStatusLine("API", statusInfo, cfg.Paths.APIBind, colorize))
		active := "none"
		if len(status.Workflow.ActiveSessions) > 0 {
			active = strings.Join(status.Workflow.ActiveSessions, ", ")
		}
		fmt.Fprintln(stdout, renderStatusLine("Active", statusInfo, active, colorize))
		if status.Workflow.LastError != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
		}
		if status.Workflow.LastSweep != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last sweep", statusInfo, relativeTime(status.Workflow.LastSweep), colorize))
		}
		dependencies = status.Dependencies
		stats = status.Workflow.SessionStats
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, "Not running", colorize))
		dependencies = api.FromDependencies(deps.CheckBinaries(cmd.Context(), deps.ForConfig(cfg)))
		stats, err = localStats(cmd.Context(), ctx)
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(dependencies, colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Sessions", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if len(stats) == 0 {
		fmt.Fprintln(stdout, "No sessions")
		return nil
	}
	states := make([]string, 0, len(stats))
	for state := range stats {
		states = append(states, state)
	}
	sort.Strings(states)
	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{state, strconv.Itoa(stats[state])})
	}
	fmt.Fprintln(stdout, renderTable([]column{{header: "State"}, {header: "Count", right: true}}, rows))
	return nil
}

func localStats(ctx context.Context, cmdCtx *commandContext) (map[string]int, error) {
	stats := make(map[string]int)
	err := cmdCtx.withStore(func(st *store.Store) error {
		raw, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		for state, count := range raw {
			stats[string(state)] = count
		}
		return nil
	})
	return stats, err
}

// daemonExecutable prefers a roundtabled next to this binary, then PATH.
func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		sibling := filepath.Join(filepath.Dir(exe), daemonBinaryName)
		if info, statErr := os.Stat(sibling); statErr == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	path, err := exec.LookPath(daemonBinaryName)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", daemonBinaryName, err)
	}
	return path, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: ctx.logLevel()}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
