package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"roundtable/internal/config"
	"roundtable/internal/daemon"
	"roundtable/internal/deps"
	"roundtable/internal/logging"
	"roundtable/internal/maintenance"
	"roundtable/internal/pipeline"
	"roundtable/internal/roster"
	"roundtable/internal/store"
	"roundtable/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the roundtable daemon and blocks until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "roundtabled.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update current.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.DataDir, "roundtabled.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		return err
	}

	participants := roster.New(cfg.Paths.RosterPath, logging.NewComponentLogger(logger, "roster"))
	if err := participants.Init(); err != nil {
		logging.WarnWithContext(logger, "roster load failed", "roster_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the TOML syntax in "+cfg.Paths.RosterPath),
			logging.String(logging.FieldImpact, "sessions keep generic speaker labels"),
		)
	}

	orchestrator, err := pipeline.NewFromConfig(cfg, st, participants, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("configure pipeline: %w", err)
	}
	manager := workflow.NewManager(cfg, st, orchestrator, logger)
	maint := maintenance.New(st, pipeline.NewTranscriber(cfg, logger),
		maintenance.WithLogger(logging.NewComponentLogger(logger, "maintenance")),
		maintenance.WithActiveCheck(manager.Active),
	)
	manager.ConfigureMaintenance(maint)

	d, err := daemon.New(cfg, st, logger, manager, maint)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("roundtable daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "current.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []slog.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("transcription_key_present", strings.TrimSpace(cfg.Transcription.APIKey) != ""),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.Bool("tmdb_key_present", strings.TrimSpace(cfg.TMDB.APIKey) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, status := range deps.CheckBinaries(ctx, deps.ForConfig(cfg)) {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
