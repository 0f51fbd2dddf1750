package workflow

import (
	"context"
	"slices"
	"time"

	"roundtable/internal/deps"
	"roundtable/internal/logging"
	"roundtable/internal/session"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running        bool                                   `json:"running"`
	LastError      string                                 `json:"last_error,omitempty"`
	LastSession    *session.Session                       `json:"-"`
	LastSessionID  string                                 `json:"last_session_id,omitempty"`
	ActiveSessions []string                               `json:"active_sessions"`
	SessionStats   map[session.SessionProcessingState]int `json:"session_stats"`
	LastSweep      *time.Time                             `json:"last_sweep,omitempty"`
	Dependencies   []deps.Status                          `json:"dependencies,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:        m.running,
		ActiveSessions: make([]string, 0, len(m.active)),
		Dependencies:   slices.Clone(m.dependencies),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastSession != nil {
		summary.LastSession = m.lastSession.Clone()
		summary.LastSessionID = m.lastSession.ID
	}
	if !m.lastSweep.IsZero() {
		sweep := m.lastSweep
		summary.LastSweep = &sweep
	}
	for id := range m.active {
		summary.ActiveSessions = append(summary.ActiveSessions, id)
	}
	m.mu.RUnlock()
	slices.Sort(summary.ActiveSessions)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read session stats",
			logging.Error(err),
			logging.String(logging.FieldEventType, "session_stats_failed"),
			logging.String(logging.FieldErrorHint, "check session database access"),
			logging.String(logging.FieldImpact, "status omits session counts"),
		)
	}
	summary.SessionStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastSession(s *session.Session) {
	m.mu.Lock()
	m.lastSession = s.Clone()
	m.mu.Unlock()
}
