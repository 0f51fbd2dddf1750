package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"roundtable/internal/analysis"
	"roundtable/internal/services/ffmpeg"
	"roundtable/internal/services/transcription"
	"roundtable/internal/session"
	"roundtable/internal/testsupport"
)

type memStore struct {
	mu          sync.Mutex
	checkpoints []session.SessionProcessingState
	fileStates  map[string][]session.FileProcessingState
	last        *session.Session
}

func newMemStore() *memStore {
	return &memStore{fileStates: map[string][]session.FileProcessingState{}}
}

func (m *memStore) Upsert(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = append(m.checkpoints, s.State)
	m.last = s.Clone()
	return nil
}

func (m *memStore) UpsertFile(_ context.Context, _ string, f *session.AudioFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileStates[f.Name] = append(m.fileStates[f.Name], f.State)
	return nil
}

func (m *memStore) Checkpoints() []session.SessionProcessingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]session.SessionProcessingState(nil), m.checkpoints...)
}

// fakeTranscriber serves canned transcripts keyed by recording name.
type fakeTranscriber struct {
	mu          sync.Mutex
	uploadErr   map[string]error
	transcripts map[string][]transcription.Utterance
	jobStatus   map[string]transcription.Status
	jobs        map[string]transcription.JobOptions
	uploads     int
	starts      int
	// block makes PollUntilDone wait for cancellation; polling is closed on
	// the first poll.
	block       bool
	polling     chan struct{}
	pollOnce    sync.Once
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{
		uploadErr:   map[string]error{},
		transcripts: map[string][]transcription.Utterance{},
		jobStatus:   map[string]transcription.Status{},
		jobs:        map[string]transcription.JobOptions{},
		polling:     make(chan struct{}),
	}
}

func (f *fakeTranscriber) Upload(_ context.Context, p string, progress transcription.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.uploads++
	err := f.uploadErr[filepath.Base(p)]
	f.mu.Unlock()
	if progress != nil {
		progress(50, 100)
	}
	if err != nil {
		return "", err
	}
	return "https://cdn.test/" + filepath.Base(p), nil
}

func (f *fakeTranscriber) StartJob(_ context.Context, audioURL string, opts transcription.JobOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	id := "job-" + path.Base(audioURL)
	f.jobs[id] = opts
	return id, nil
}

func (f *fakeTranscriber) PollUntilDone(ctx context.Context, jobID string) (transcription.Result, error) {
	f.pollOnce.Do(func() { close(f.polling) })
	if f.block {
		<-ctx.Done()
		return transcription.Result{}, ctx.Err()
	}
	return f.FetchResult(ctx, jobID)
}

func (f *fakeTranscriber) FetchResult(_ context.Context, jobID string) (transcription.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := strings.TrimPrefix(jobID, "job-")
	status := f.jobStatus[name]
	if status == "" {
		status = transcription.StatusCompleted
	}
	if status == transcription.StatusError {
		return transcription.Result{ID: jobID, Status: status, Error: "audio too short"}, nil
	}
	utterances := f.transcripts[name]
	texts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		texts = append(texts, u.Text)
	}
	text := strings.Join(texts, " ")
	if text == "" {
		text = "placeholder words for " + name
	}
	return transcription.Result{ID: jobID, Status: status, Text: text, Utterances: utterances}, nil
}

func (f *fakeTranscriber) jobFor(name string) (transcription.JobOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	opts, ok := f.jobs["job-"+name]
	return opts, ok
}

type fakeConverter struct {
	panicOn string
	err     error
}

func (c fakeConverter) Convert(_ context.Context, source, target string, progress ffmpeg.ProgressFunc) error {
	if c.panicOn != "" && filepath.Base(source) == c.panicOn {
		panic("decoder exploded")
	}
	if c.err != nil {
		return c.err
	}
	if progress != nil {
		progress("convert", 1, 2)
	}
	return os.WriteFile(target, []byte("ID3"), 0o644)
}

type recordingAnalyzer struct {
	mu    sync.Mutex
	calls int
	input analysis.Input
}

func (a *recordingAnalyzer) Analyze(_ context.Context, in analysis.Input) analysis.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.input = in
	h := analysis.Fallback(in.Utterances, "test")
	h.Fallback = false
	h.Summary = "A lively discussion."
	return analysis.Outcome{Highlights: h}
}

func (a *recordingAnalyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// boardTranscripts is a master recording plus two microphones that line up
// with its turns.
func boardTranscripts(tr *fakeTranscriber) {
	tr.transcripts["master.mp3"] = []transcription.Utterance{
		{Speaker: "A", Text: "welcome to the show", Start: 0, End: 2000},
		{Speaker: "B", Text: "glad to be here tonight", Start: 2000, End: 4000},
	}
	tr.transcripts["mic1.mp3"] = []transcription.Utterance{
		{Speaker: "A", Text: "welcome to the show", Start: 0, End: 2000},
	}
	tr.transcripts["mic2.mp3"] = []transcription.Utterance{
		{Speaker: "A", Text: "glad to be here tonight", Start: 2000, End: 4000},
	}
}

func newBoardSession(t *testing.T, names ...string) *session.Session {
	t.Helper()
	if len(names) == 0 {
		names = []string{"master.mp3", "mic1.mp3", "mic2.mp3"}
	}
	s := testsupport.NewSession(t, nil, names...)
	s.Participants = map[int]string{1: "Alice", 2: "Bob"}
	return s
}

func newTestOrchestrator(t *testing.T, st Store, tr Transcriber, opts ...Option) *Orchestrator {
	t.Helper()
	return newTestOrchestratorWith(t, Dependencies{Store: st, Transcriber: tr, Converter: fakeConverter{}}, opts...)
}

func newTestOrchestratorWith(t *testing.T, deps Dependencies, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithBarrierInterval(10 * time.Millisecond)}, opts...)
	o, err := New(deps, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func fileNamed(s *session.Session, name string) *session.AudioFile {
	for _, f := range s.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}
