package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"roundtable/internal/logging"
	"roundtable/internal/notifications"
	"roundtable/internal/session"
)

func (m *Manager) notifyCompleted(ctx context.Context, logger *slog.Logger, s *session.Session) {
	payload := notifications.Payload{
		"title":        sessionTitle(s),
		"participants": participantList(s),
		"fallback":     s.Highlights != nil && s.Highlights.Fallback,
	}
	m.publish(ctx, logger, notifications.EventSessionCompleted, payload)
}

func (m *Manager) notifyFailed(ctx context.Context, logger *slog.Logger, s *session.Session) {
	payload := notifications.Payload{
		"title": sessionTitle(s),
		"error": s.ErrorMessage,
	}
	m.publish(ctx, logger, notifications.EventSessionFailed, payload)
}

func (m *Manager) notifyStuck(ctx context.Context, count int) {
	m.publish(ctx, m.logger, notifications.EventStuckSessions, notifications.Payload{"count": count})
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, notification skipped", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func sessionTitle(s *session.Session) string {
	if title := strings.TrimSpace(s.SubjectTitle); title != "" {
		return title
	}
	return s.FolderPath
}

func participantList(s *session.Session) string {
	if s.Stats != nil {
		if names := s.Stats.SpeakerNames(); len(names) > 0 {
			return strings.Join(names, ", ")
		}
	}
	return ""
}
