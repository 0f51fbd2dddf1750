package transcription

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roundtable/internal/services/retry"
)

type fakeProvider struct {
	t         *testing.T
	uploads   atomic.Int32
	polls     atomic.Int32
	pendingN  int32
	mu        sync.Mutex
	lastJob   jobRequest
	final     Result
	failStart bool
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		p.uploads.Add(1)
		data, _ := io.ReadAll(r.Body)
		if string(data) != "audio-bytes" {
			p.t.Errorf("unexpected upload body %q", data)
		}
		_ = json.NewEncoder(w).Encode(uploadResponse{UploadURL: "https://cdn.example/audio/1"})
	case r.Method == http.MethodPost && r.URL.Path == "/transcript":
		if p.failStart {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad audio_url"}`))
			return
		}
		var job jobRequest
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			p.t.Errorf("decode job: %v", err)
		}
		p.mu.Lock()
		p.lastJob = job
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode(Result{ID: "job-1", Status: StatusQueued})
	case r.Method == http.MethodGet && r.URL.Path == "/transcript/job-1":
		n := p.polls.Add(1)
		if n <= p.pendingN {
			_ = json.NewEncoder(w).Encode(Result{ID: "job-1", Status: StatusProcessing})
			return
		}
		_ = json.NewEncoder(w).Encode(p.final)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *fakeProvider) job() jobRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastJob
}

func newTestClient(t *testing.T, provider *fakeProvider) *Client {
	t.Helper()
	provider.t = t
	server := httptest.NewServer(provider)
	t.Cleanup(server.Close)
	return New(
		Config{APIKey: "key", BaseURL: server.URL, LanguageCode: "en"},
		WithPollInterval(time.Millisecond),
		WithRetryPolicy(retry.Policy{Attempts: 2, Sleeper: func(time.Duration) {}}),
	)
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mic1.mp3")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestUploadReportsProgress(t *testing.T) {
	provider := &fakeProvider{}
	client := newTestClient(t, provider)

	var last, total int64
	url, err := client.Upload(context.Background(), writeAudio(t), func(sent, size int64) {
		last, total = sent, size
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example/audio/1" {
		t.Fatalf("unexpected upload url %q", url)
	}
	if last != total || total != int64(len("audio-bytes")) {
		t.Fatalf("expected full progress, got %d/%d", last, total)
	}
}

func TestStartJobSendsDiarizationSettings(t *testing.T) {
	provider := &fakeProvider{}
	client := newTestClient(t, provider)

	id, err := client.StartJob(context.Background(), "https://cdn.example/audio/1", JobOptions{ExpectedSpeakers: 3, Diarization: true, Label: "master.wav"})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if id != "job-1" {
		t.Fatalf("unexpected job id %q", id)
	}
	job := provider.job()
	if !job.SpeakerLabels || job.SpeakersExpected != 3 {
		t.Fatalf("expected diarization with 3 speakers, got %+v", job)
	}
	if job.LanguageCode != "en" {
		t.Fatalf("unexpected language %q", job.LanguageCode)
	}

	if _, err := client.StartJob(context.Background(), "https://cdn.example/audio/1", JobOptions{ExpectedSpeakers: 3}); err != nil {
		t.Fatalf("StartJob without diarization: %v", err)
	}
	if job := provider.job(); job.SpeakerLabels || job.SpeakersExpected != 0 {
		t.Fatalf("speaker count must be omitted without diarization, got %+v", job)
	}
}

func TestStartJobClientErrorIsNotRetried(t *testing.T) {
	provider := &fakeProvider{failStart: true}
	client := newTestClient(t, provider)
	if _, err := client.StartJob(context.Background(), "https://cdn.example/audio/1", JobOptions{}); err == nil {
		t.Fatal("expected start failure")
	}
}

func TestPollUntilDoneWaitsForCompletion(t *testing.T) {
	provider := &fakeProvider{
		pendingN: 2,
		final: Result{
			ID:     "job-1",
			Status: StatusCompleted,
			Text:   "hello there",
			Utterances: []Utterance{
				{Speaker: "A", Text: "hello there", Start: 0, End: 900, Confidence: 0.9},
			},
		},
	}
	client := newTestClient(t, provider)

	result, err := client.PollUntilDone(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("PollUntilDone: %v", err)
	}
	if !result.Succeeded() || result.Text != "hello there" || len(result.Utterances) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := provider.polls.Load(); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
}

func TestPollUntilDoneReturnsProviderError(t *testing.T) {
	provider := &fakeProvider{final: Result{ID: "job-1", Status: StatusError, Error: "audio too short"}}
	client := newTestClient(t, provider)

	result, err := client.PollUntilDone(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("PollUntilDone: %v", err)
	}
	if result.Succeeded() {
		t.Fatal("expected failed result")
	}
	if result.FailureReason() != "audio too short" {
		t.Fatalf("unexpected reason %q", result.FailureReason())
	}
}

func TestPollUntilDoneHonorsCancellation(t *testing.T) {
	provider := &fakeProvider{pendingN: 1 << 20}
	client := newTestClient(t, provider)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.PollUntilDone(ctx, "job-1"); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestUnconfiguredClient(t *testing.T) {
	client := New(Config{})
	if client.Configured() {
		t.Fatal("expected unconfigured")
	}
	if _, err := client.Upload(context.Background(), "x", nil); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
