package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"roundtable/internal/config"
)

const userAgent = "Roundtable-Go/0.1.0"

// Event identifies a workflow milestone that may produce a push.
type Event string

const (
	EventSessionCompleted Event = "session_completed"
	EventSessionFailed    Event = "session_failed"
	EventStuckSessions    Event = "stuck_sessions"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventSessionCompleted: cfg.Notifications.SessionComplete,
			EventSessionFailed:    cfg.Notifications.SessionFailed,
			EventStuckSessions:    cfg.Notifications.SessionFailed,
			EventTest:             true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	switch event {
	case EventSessionCompleted:
		title := field(data, "title", "Untitled session")
		message := fmt.Sprintf("✅ Session processed: %s", title)
		if participants := field(data, "participants", ""); participants != "" {
			message = fmt.Sprintf("%s\nWith: %s", message, participants)
		}
		if fallback, _ := data["fallback"].(bool); fallback {
			message += "\nAnalysis unavailable; transcript only"
		}
		return payload{
			title:   "Roundtable - Session Complete",
			message: message,
			tags:    []string{"roundtable", "session", "completed"},
		}, true
	case EventSessionFailed:
		title := field(data, "title", "Untitled session")
		return payload{
			title:    "Roundtable - Session Failed",
			message:  fmt.Sprintf("❌ %s: %s", title, field(data, "error", "unknown error")),
			tags:     []string{"roundtable", "session", "failed"},
			priority: "high",
		}, true
	case EventStuckSessions:
		count, _ := data["count"].(int)
		if count <= 0 {
			return payload{}, false
		}
		return payload{
			title:   "Roundtable - Stuck Sessions",
			message: fmt.Sprintf("Repaired %d stuck session(s)", count),
			tags:    []string{"roundtable", "maintenance"},
		}, true
	case EventTest:
		return payload{
			title:    "Roundtable - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"roundtable", "test"},
			priority: "low",
		}, true
	}
	return payload{}, false
}

func field(data Payload, key, fallback string) string {
	switch v := data[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	case error:
		if v != nil {
			return strings.TrimSpace(v.Error())
		}
	case fmt.Stringer:
		return v.String()
	}
	return fallback
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
