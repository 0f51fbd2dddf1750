package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"roundtable/internal/logging"
	"roundtable/internal/services"
	"roundtable/internal/session"
)

// progressLogBucket throttles daemon progress lines to quarter steps.
const progressLogBucket = 25

func (m *Manager) processSession(ctx context.Context, s *session.Session) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runCtx = services.WithSessionID(runCtx, s.ID)
	runCtx = services.WithRequestID(runCtx, uuid.NewString())
	logger := logging.WithContext(runCtx, m.logger)

	m.track(s.ID, cancel)
	defer m.untrack(s.ID)
	m.setLastSession(s)

	var hb sync.WaitGroup
	hbCtx, stopHeartbeat := context.WithCancel(runCtx)
	hb.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hb, s.ID)

	logger.Info("session processing started",
		logging.String("folder", s.FolderPath),
		logging.Int("files", len(s.Files)),
		logging.String("from_state", string(s.State)),
	)
	sampler := logging.NewProgressSampler(progressLogBucket)
	started := time.Now()
	result, err := m.runner.RunEnhanced(runCtx, s, func(message string, percent int) {
		if sampler.Observe("session", percent) {
			logger.Info("session progress",
				logging.Int("percent", percent),
				logging.String("message", message),
			)
		}
	})
	stopHeartbeat()
	hb.Wait()

	if result == nil {
		result = s
	}
	m.setLastSession(result)
	if err != nil {
		m.handleSessionFailure(ctx, logger, result, err)
		return
	}
	logger.Info("session processing completed",
		logging.String("duration", time.Since(started).Round(time.Second).String()),
		logging.Bool("analysis_fallback", result.Highlights != nil && result.Highlights.Fallback),
	)
	m.notifyCompleted(ctx, logger, result)
}
