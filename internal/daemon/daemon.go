package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"roundtable/internal/config"
	"roundtable/internal/logging"
	"roundtable/internal/maintenance"
	"roundtable/internal/notifications"
	"roundtable/internal/session"
	"roundtable/internal/store"
	"roundtable/internal/workflow"
)

var (
	// ErrFolderInUse is returned when a folder already has an unfinished session.
	ErrFolderInUse = errors.New("folder already has an unfinished session")
	// ErrNotRunning is returned when cancelling a session that is not running here.
	ErrNotRunning = errors.New("session is not running")
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *store.Store
	workflow    *workflow.Manager
	maintenance *maintenance.Service
	notifier    notifications.Service
	api         *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager, maint *maintenance.Service) (*Daemon, error) {
	if cfg == nil || st == nil || wf == nil || maint == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and maintenance service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "roundtabled.lock")
	d := &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		store:       st,
		workflow:    wf,
		maintenance: maint,
		notifier:    notifications.NewService(cfg),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager and serves
// the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another roundtable daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("roundtable daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
			logging.String(logging.FieldImpact, "next daemon start may report another instance"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("roundtable daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the bound API address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// ListSessions returns sessions filtered by optional states.
func (d *Daemon) ListSessions(ctx context.Context, states []session.SessionProcessingState) ([]*session.Session, error) {
	return d.store.GetAll(ctx, states...)
}

// GetSession loads one session.
func (d *Daemon) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return d.store.Get(ctx, id)
}

// CreateSession ingests folder as a new pending session. A folder whose
// latest session is still unfinished is rejected.
func (d *Daemon) CreateSession(ctx context.Context, folder string, opts session.IngestOptions) (*session.Session, error) {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return nil, errors.New("folder is required")
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolve folder: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", abs)
	}
	existing, err := d.store.FindByFolder(ctx, abs)
	switch {
	case err == nil && !existing.State.IsTerminal():
		return nil, fmt.Errorf("%s (session %s): %w", abs, existing.ID, ErrFolderInUse)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	sess, err := session.FromFolder(abs, opts)
	if err != nil {
		return nil, err
	}
	if err := d.store.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("queue session: %w", err)
	}
	d.logger.Info("session queued",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String("folder", abs),
		logging.Int("files", len(sess.Files)),
	)
	return sess, nil
}

// DeleteSession removes a session that is not running.
func (d *Daemon) DeleteSession(ctx context.Context, id string) error {
	if d.workflow.Active(id) {
		return fmt.Errorf("delete %s: %w", id, maintenance.ErrSessionActive)
	}
	return d.store.Delete(ctx, id)
}

// Diagnose reports a session's health.
func (d *Daemon) Diagnose(ctx context.Context, id string) (maintenance.Diagnostics, error) {
	return d.maintenance.Diagnose(ctx, id)
}

// Recover resets failed files and re-queues the session.
func (d *Daemon) Recover(ctx context.Context, id string) (int, error) {
	return d.maintenance.RecoverFailedFiles(ctx, id)
}

// Redownload re-fetches missing transcripts.
func (d *Daemon) Redownload(ctx context.Context, id string) (int, error) {
	return d.maintenance.RedownloadTranscripts(ctx, id)
}

// CancelSession stops a running session.
func (d *Daemon) CancelSession(id string) error {
	if !d.workflow.Cancel(id) {
		return fmt.Errorf("cancel %s: %w", id, ErrNotRunning)
	}
	d.logger.Info("session cancel requested", logging.String(logging.FieldSessionID, id))
	return nil
}

// SweepStuck runs the stuck-session scan. A zero threshold uses the
// configured one.
func (d *Daemon) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold == 0 {
		threshold = d.cfg.StuckThreshold()
	}
	return d.maintenance.DetectStuckSessions(ctx, threshold)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
