package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"roundtable/internal/logging"
	"roundtable/internal/session"
)

// heartbeatMisses is how many intervals may pass before a heartbeat is stale.
const heartbeatMisses = 4

// HeartbeatStore stamps session heartbeats.
type HeartbeatStore interface {
	UpdateHeartbeat(ctx context.Context, id string) error
}

// HeartbeatMonitor keeps a running session's heartbeat fresh.
type HeartbeatMonitor struct {
	store    HeartbeatStore
	logger   *slog.Logger
	interval time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store HeartbeatStore, logger *slog.Logger, interval time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

// Timeout is the age after which a heartbeat no longer proves ownership.
func (h *HeartbeatMonitor) Timeout() time.Duration {
	return heartbeatMisses * h.interval
}

// Stale reports whether s has no heartbeat newer than Timeout.
func (h *HeartbeatMonitor) Stale(s *session.Session, now time.Time) bool {
	if s.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*s.LastHeartbeat) > h.Timeout()
}

// StartLoop stamps the heartbeat for id immediately and then on every
// interval until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, id string) {
	defer wg.Done()
	logger := logging.WithContext(ctx, h.logger.With(logging.String("component", "workflow-heartbeat")))

	h.beat(ctx, logger, id)
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx, logger, id)
		}
	}
}

func (h *HeartbeatMonitor) beat(ctx context.Context, logger *slog.Logger, id string) {
	if err := h.store.UpdateHeartbeat(ctx, id); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("heartbeat update cancelled")
			return
		}
		logging.WarnWithContext(logger, "heartbeat update failed", "heartbeat_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check session database access"),
			logging.String(logging.FieldImpact, "session may be reported as stuck"),
		)
	}
}
