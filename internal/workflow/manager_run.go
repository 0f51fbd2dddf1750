package workflow

import (
	"context"
	"errors"
	"time"

	"roundtable/internal/logging"
	"roundtable/internal/session"
)

// pickStates are the states a session can be queued in.
var pickStates = []session.SessionProcessingState{
	session.SessionPending,
	session.SessionTranscribing,
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	if m.runner == nil {
		return errors.New("workflow runner not configured")
	}
	checks := m.runPreflightChecks(ctx)

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.dependencies = checks
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	sweeper := m.sweeper
	m.wg.Add(1)
	if sweeper != nil {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	go m.runLoop(runCtx)
	if sweeper != nil {
		go m.maintenanceLoop(runCtx, sweeper)
	}
	m.logger.Info("workflow started",
		logging.String("poll_interval", m.pollInterval.String()),
		logging.Bool("maintenance", sweeper != nil),
	)
	return nil
}

// Stop terminates background processing and waits for the current session
// to wind down.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		next, err := m.nextSession(ctx)
		if err != nil {
			m.handleNextSessionError(ctx, err)
			continue
		}
		if next == nil {
			m.waitForSessionOrShutdown(ctx)
			continue
		}
		m.processSession(ctx, next)
	}
}

// nextSession returns the oldest queued session not owned by a live run.
// Transcribing sessions qualify only once their heartbeat is stale, which
// covers both stuck-session repairs and runs orphaned by a crash.
func (m *Manager) nextSession(ctx context.Context) (*session.Session, error) {
	candidates, err := m.store.GetAll(ctx, pickStates...)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var picked *session.Session
	for _, s := range candidates {
		if m.Active(s.ID) {
			continue
		}
		if s.State == session.SessionTranscribing && !m.heartbeat.Stale(s, now) {
			continue
		}
		if picked == nil || s.CreatedAt.Before(picked.CreatedAt) {
			picked = s
		}
	}
	return picked, nil
}

func (m *Manager) handleNextSessionError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logging.ErrorWithContext(m.logger, "failed to fetch next session", "session_fetch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check session database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.cfg.ErrorRetryInterval()):
	}
}

func (m *Manager) waitForSessionOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) maintenanceLoop(ctx context.Context, sweeper Sweeper) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.MaintenanceInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx, sweeper)
		}
	}
}

// SweepNow runs the stuck-session scan once with the configured threshold.
func (m *Manager) SweepNow(ctx context.Context) (int, error) {
	m.mu.RLock()
	sweeper := m.sweeper
	m.mu.RUnlock()
	if sweeper == nil {
		return 0, errors.New("maintenance not configured")
	}
	return m.sweep(ctx, sweeper)
}

func (m *Manager) sweep(ctx context.Context, sweeper Sweeper) (int, error) {
	repaired, err := sweeper.DetectStuckSessions(ctx, m.cfg.StuckThreshold())
	m.mu.Lock()
	m.lastSweep = time.Now().UTC()
	m.mu.Unlock()
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(m.logger, "stuck session scan incomplete", "maintenance_failed",
			logging.Error(err),
			logging.Int("repaired", repaired),
			logging.String(logging.FieldErrorHint, "check session database access"),
			logging.String(logging.FieldImpact, "stuck sessions may remain until the next scan"),
		)
	}
	if repaired > 0 {
		m.logger.Info("stuck sessions repaired", logging.Int("count", repaired))
		m.notifyStuck(ctx, repaired)
	}
	return repaired, err
}
