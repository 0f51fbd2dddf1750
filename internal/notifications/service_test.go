package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"roundtable/internal/config"
	"roundtable/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSessionCompleted, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "session completed",
			event: notifications.EventSessionCompleted,
			payload: notifications.Payload{
				"title":        "Alien",
				"participants": "Alice, Bob",
			},
			expectTitle:   "Roundtable - Session Complete",
			expectMessage: "✅ Session processed: Alien\nWith: Alice, Bob",
			expectTags:    "roundtable,session,completed",
		},
		{
			name:  "session completed with fallback",
			event: notifications.EventSessionCompleted,
			payload: notifications.Payload{
				"title":    "Alien",
				"fallback": true,
			},
			expectTitle:   "Roundtable - Session Complete",
			expectMessage: "✅ Session processed: Alien\nAnalysis unavailable; transcript only",
			expectTags:    "roundtable,session,completed",
		},
		{
			name:  "session failed",
			event: notifications.EventSessionFailed,
			payload: notifications.Payload{
				"title": "Heat",
				"error": errors.New("Cannot proceed: 1 file failed: mic2.mp3"),
			},
			expectTitle:    "Roundtable - Session Failed",
			expectMessage:  "❌ Heat: Cannot proceed: 1 file failed: mic2.mp3",
			expectTags:     "roundtable,session,failed",
			expectPriority: "high",
		},
		{
			name:          "stuck sessions",
			event:         notifications.EventStuckSessions,
			payload:       notifications.Payload{"count": 2},
			expectTitle:   "Roundtable - Stuck Sessions",
			expectMessage: "Repaired 2 stuck session(s)",
			expectTags:    "roundtable,maintenance",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.SessionComplete = false
	cfg.Notifications.SessionFailed = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{
		notifications.EventSessionCompleted,
		notifications.EventSessionFailed,
		notifications.EventStuckSessions,
		notifications.Event("unknown"),
	} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"count": 1}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
