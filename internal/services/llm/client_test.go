package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionServer(t *testing.T, handler func(calls int) (int, any)) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		status, payload := handler(calls)
		if status != http.StatusOK {
			w.WriteHeader(status)
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func messageChoice(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
}

func TestClientHealthCheck(t *testing.T) {
	server, _ := completionServer(t, func(int) (int, any) {
		return http.StatusOK, messageChoice(`{"ok":true}`)
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server, _ := completionServer(t, func(int) (int, any) {
		return http.StatusOK, messageChoice("```json\n{\"ok\":true}\n```")
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server, calls := completionServer(t, func(int) (int, any) {
		return http.StatusUnauthorized, map[string]string{"error": "unauthorized"}
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
	if *calls != 1 {
		t.Fatalf("expected no retry on 401, got %d calls", *calls)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})
	if client.Configured() {
		t.Fatal("expected unconfigured client")
	}
	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestCompleteJSONToolCallArguments(t *testing.T) {
	server, _ := completionServer(t, func(int) (int, any) {
		return http.StatusOK, map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"type":     "function",
								"id":       "call_1",
								"function": map[string]any{"name": "highlights", "arguments": `{"summary":"ok"}`},
							},
						},
					},
				},
			},
		}
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != `{"summary":"ok"}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteJSONDeltaAndLegacyText(t *testing.T) {
	payloads := []map[string]any{
		{"choices": []any{map[string]any{"delta": map[string]any{"content": `{"a":1}`}}}},
		{"choices": []any{map[string]any{"text": `{"a":1}`}}},
	}
	for i, payload := range payloads {
		server, _ := completionServer(t, func(int) (int, any) { return http.StatusOK, payload })
		client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
		content, err := client.CompleteJSON(context.Background(), "system", "user")
		if err != nil {
			t.Fatalf("payload %d: %v", i, err)
		}
		if content != `{"a":1}` {
			t.Fatalf("payload %d: unexpected content %q", i, content)
		}
	}
}

func TestCompleteJSONEmptyContentHasSnippet(t *testing.T) {
	server, calls := completionServer(t, func(int) (int, any) {
		return http.StatusOK, messageChoice("")
	})
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithRetryMaxAttempts(2),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
	if *calls != 2 {
		t.Fatalf("expected empty content to be retried, got %d calls", *calls)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	server, calls := completionServer(t, func(calls int) (int, any) {
		if calls == 1 {
			return http.StatusTooManyRequests, map[string]string{"error": "rate limited"}
		}
		return http.StatusOK, messageChoice(`{"ok":true}`)
	})
	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(time.Second, 10*time.Second),
	)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if *calls != 2 {
		t.Fatalf("expected 2 calls, got %d", *calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := DecodeLLMJSON("Here you go:\n{\"summary\":\"lively\"}\nThanks!", &parsed); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if parsed.Summary != "lively" {
		t.Fatalf("unexpected summary %q", parsed.Summary)
	}
	if err := DecodeLLMJSON("   ", &parsed); err == nil {
		t.Fatal("expected empty payload error")
	}
}
