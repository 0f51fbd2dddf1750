package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestPolicyDoRetriesServerErrors(t *testing.T) {
	var slept []time.Duration
	policy := Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Sleeper: func(d time.Duration) { slept = append(slept, d) }}

	calls := 0
	err := policy.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: http.StatusBadGateway}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected backoff: %v", slept)
	}
}

func TestPolicyDoStopsOnClientError(t *testing.T) {
	policy := Policy{Attempts: 5, Sleeper: func(time.Duration) {}}
	calls := 0
	err := policy.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return &StatusError{StatusCode: http.StatusUnauthorized, Body: "nope"}
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single failing call, got calls=%d err=%v", calls, err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestPolicyDoReportsExhaustion(t *testing.T) {
	policy := Policy{Attempts: 2, Sleeper: func(time.Duration) {}}
	err := policy.Do(context.Background(), "upload", func(context.Context) error {
		return Mark(errors.New("empty body"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "upload: failed after 2 attempts: empty body" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestPolicyHonorsRetryAfter(t *testing.T) {
	policy := Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	delay, ok := policy.Delay(context.Background(), &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 30 * time.Second}, 1)
	if !ok || delay != 5*time.Second {
		t.Fatalf("expected capped retry-after, got %s ok=%v", delay, ok)
	}
}

func TestPolicyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := Default()
	if _, ok := policy.Delay(ctx, &StatusError{StatusCode: http.StatusBadGateway}, 1); ok {
		t.Fatal("expected no retry after cancellation")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("seconds form: %s %v", d, ok)
	}
	if _, ok := ParseRetryAfter("-1"); ok {
		t.Fatal("negative values should be rejected")
	}
	if _, ok := ParseRetryAfter(""); ok {
		t.Fatal("empty value should be rejected")
	}
}
