package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"roundtable/internal/logging"
	"roundtable/internal/services"
	"roundtable/internal/session"
)

const requeueTimeout = 10 * time.Second

// handleSessionFailure records the outcome of a run that returned an error.
// A run cut short by daemon shutdown is queued again so the next start
// resumes it; explicit cancellation and real failures stay Failed.
func (m *Manager) handleSessionFailure(ctx context.Context, logger *slog.Logger, s *session.Session, runErr error) {
	if ctx.Err() != nil {
		m.requeue(logger, s)
		return
	}
	m.setLastError(runErr)

	details := services.Details(runErr)
	attrs := []slog.Attr{
		logging.String("error_message", s.ErrorMessage),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorOperation, details.Operation),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Int("failed_files", len(s.FailedFiles())),
	}
	if errors.Is(runErr, context.Canceled) {
		logger.Info("session cancelled", logging.Args(attrs...)...)
		return
	}
	attrs = append(attrs, logging.Alert("session_failure"), logging.Error(runErr))
	logging.ErrorWithContext(logger, "session run failed", "workflow_session_failed", attrs...)
	m.notifyFailed(ctx, logger, s)
}

func (m *Manager) requeue(logger *slog.Logger, s *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()
	s.State = session.SessionPending
	s.ErrorMessage = ""
	s.SetProgress("Interrupted by shutdown; queued to resume", s.ProgressPercent)
	if err := m.store.Upsert(ctx, s); err != nil {
		logging.WarnWithContext(logger, "failed to requeue interrupted session", "session_requeue_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "recover the session after restart"),
			logging.String(logging.FieldImpact, "session stays failed until recovered"),
		)
		return
	}
	logger.Info("interrupted session queued to resume")
}
