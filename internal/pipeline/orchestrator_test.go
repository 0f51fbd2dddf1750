package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"roundtable/internal/analysis"
	"roundtable/internal/attribution"
	"roundtable/internal/services"
	"roundtable/internal/session"
	"roundtable/internal/testsupport"
)

func TestRunEnhancedCompletesSession(t *testing.T) {
	st := newMemStore()
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	analyzer := &recordingAnalyzer{}
	o := newTestOrchestratorWith(t, Dependencies{Store: st, Transcriber: tr, Analyzer: analyzer})
	s := newBoardSession(t)

	var (
		mu       sync.Mutex
		percents []int
	)
	got, err := o.RunEnhanced(context.Background(), s, func(_ string, pct int) {
		mu.Lock()
		percents = append(percents, pct)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("RunEnhanced: %v", err)
	}
	if got != s {
		t.Fatal("expected the same session back")
	}
	if s.State != session.SessionComplete {
		t.Fatalf("expected complete, got %s (%s)", s.State, s.ErrorMessage)
	}
	if s.Highlights.IsEmpty() || s.Highlights.Fallback {
		t.Fatalf("expected provider highlights, got %+v", s.Highlights)
	}
	if s.Stats == nil || s.Stats.Strategy != session.StrategyMasterOverlap {
		t.Fatalf("expected master overlap stats, got %+v", s.Stats)
	}
	if analyzer.Calls() != 1 {
		t.Fatalf("expected one analysis call, got %d", analyzer.Calls())
	}
	if names := analyzer.input.Metadata.Participants; !slices.Equal(names, []string{"Alice", "Bob"}) {
		t.Fatalf("unexpected participants handed to analysis: %v", names)
	}
	if !strings.Contains(analyzer.input.Transcript, "Alice [0:00]: welcome to the show") {
		t.Fatalf("unexpected merged transcript:\n%s", analyzer.input.Transcript)
	}
	for _, f := range s.Files {
		if f.State != session.FileComplete {
			t.Fatalf("file %s ended in %s", f.Name, f.State)
		}
		if f.TranscriptPath == "" {
			t.Fatalf("file %s has no transcript document", f.Name)
		}
	}
	if _, err := os.Stat(filepath.Join(s.TranscriptDir(), attribution.MarkdownName)); err != nil {
		t.Fatalf("merged markdown missing: %v", err)
	}

	want := []session.SessionProcessingState{
		session.SessionTranscribing,
		session.SessionAnalyzing,
		session.SessionAnalyzing,
		session.SessionAnalyzing,
		session.SessionComplete,
	}
	if got := st.Checkpoints(); !slices.Equal(got, want) {
		t.Fatalf("checkpoints = %v, want %v", got, want)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("expected progress to finish at 100, got %v", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress went backwards: %v", percents)
		}
	}
}

func TestRunEnhancedDiarizesOnlyMasterRecording(t *testing.T) {
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	o := newTestOrchestrator(t, newMemStore(), tr)
	s := newBoardSession(t)

	if _, err := o.RunEnhanced(context.Background(), s, nil); err != nil {
		t.Fatalf("RunEnhanced: %v", err)
	}
	master, ok := tr.jobFor("master.mp3")
	if !ok || !master.Diarization || master.ExpectedSpeakers != 2 {
		t.Fatalf("unexpected master job options: %+v", master)
	}
	mic, ok := tr.jobFor("mic1.mp3")
	if !ok || mic.Diarization {
		t.Fatalf("expected microphone job without diarization, got %+v", mic)
	}
}

func TestRunEnhancedAbortsWhenAFileFails(t *testing.T) {
	st := newMemStore()
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	tr.uploadErr["mic2.mp3"] = errors.New("connection reset")
	analyzer := &recordingAnalyzer{}
	o := newTestOrchestratorWith(t, Dependencies{Store: st, Transcriber: tr, Analyzer: analyzer})
	s := newBoardSession(t)

	_, err := o.RunEnhanced(context.Background(), s, nil)
	if !errors.Is(err, services.ErrBarrierAborted) {
		t.Fatalf("expected barrier abort, got %v", err)
	}
	if s.State != session.SessionFailed {
		t.Fatalf("expected failed session, got %s", s.State)
	}
	if s.ErrorMessage != "Cannot proceed: 1 file failed: mic2.mp3" {
		t.Fatalf("unexpected error message %q", s.ErrorMessage)
	}
	if analyzer.Calls() != 0 {
		t.Fatal("analysis must not run after an abort")
	}
	if s.Highlights != nil || s.Stats != nil {
		t.Fatal("expected no collective output on abort")
	}

	failed := fileNamed(s, "mic2.mp3")
	if failed.State != session.FileFailed || !failed.Retryable {
		t.Fatalf("expected retryable failure, got %s retryable=%v", failed.State, failed.Retryable)
	}
	if failed.FailedStage != session.FileUploading {
		t.Fatalf("expected failure at uploading, got %s", failed.FailedStage)
	}
	for _, name := range []string{"master.mp3", "mic1.mp3"} {
		if f := fileNamed(s, name); f.State != session.FileWaitingForSiblings {
			t.Fatalf("sibling %s should wait at the barrier, got %s", name, f.State)
		}
	}
	if st.last == nil || st.last.State != session.SessionFailed {
		t.Fatal("expected the failure to be persisted")
	}
}

func TestRunEnhancedNamesEveryFailedFile(t *testing.T) {
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	o := newTestOrchestratorWith(t, Dependencies{
		Store:       newMemStore(),
		Transcriber: tr,
		Converter:   fakeConverter{panicOn: "mic2.wav"},
	})
	s := newBoardSession(t, "master.mp3", "mic1.xyz", "mic2.wav")

	_, err := o.RunEnhanced(context.Background(), s, nil)
	var barrier *BarrierError
	if !errors.As(err, &barrier) {
		t.Fatalf("expected barrier error, got %v", err)
	}
	if s.ErrorMessage != "Cannot proceed: 2 files failed: mic1.xyz, mic2.wav" {
		t.Fatalf("unexpected error message %q", s.ErrorMessage)
	}

	unsupported := fileNamed(s, "mic1.xyz")
	if unsupported.Retryable {
		t.Fatal("unsupported input must not be retryable")
	}
	panicked := fileNamed(s, "mic2.wav")
	if !panicked.Retryable || panicked.FailedStage != session.FileConverting {
		t.Fatalf("expected retryable failure while converting, got stage=%s retryable=%v", panicked.FailedStage, panicked.Retryable)
	}
	if !strings.Contains(panicked.ErrorMessage, "decoder exploded") {
		t.Fatalf("expected panic value in message, got %q", panicked.ErrorMessage)
	}
	if master := fileNamed(s, "master.mp3"); master.State != session.FileWaitingForSiblings {
		t.Fatalf("healthy sibling should reach the barrier, got %s", master.State)
	}
}

func TestRunEnhancedFallsBackWithoutProvider(t *testing.T) {
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	o := newTestOrchestrator(t, newMemStore(), tr)
	s := newBoardSession(t)

	if _, err := o.RunEnhanced(context.Background(), s, nil); err != nil {
		t.Fatalf("RunEnhanced: %v", err)
	}
	if s.State != session.SessionComplete {
		t.Fatalf("expected complete, got %s", s.State)
	}
	if !s.Highlights.Fallback || s.Highlights.Summary != analysis.Unavailable {
		t.Fatalf("expected fallback highlights, got %+v", s.Highlights)
	}
	if s.ProgressMessage != "Complete (analysis unavailable)" {
		t.Fatalf("unexpected progress message %q", s.ProgressMessage)
	}
}

func TestRunEnhancedCancellationKeepsFileState(t *testing.T) {
	st := newMemStore()
	tr := newFakeTranscriber()
	tr.block = true
	o := newTestOrchestrator(t, st, tr)
	s := newBoardSession(t, "master.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := o.RunEnhanced(ctx, s, nil)
		done <- err
	}()

	select {
	case <-tr.polling:
	case <-time.After(5 * time.Second):
		t.Fatal("transcript polling never started")
	}
	cancel()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunEnhanced did not return after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.State != session.SessionFailed || s.ErrorMessage != "Processing cancelled" {
		t.Fatalf("unexpected session state %s %q", s.State, s.ErrorMessage)
	}
	f := s.Files[0]
	if f.State != session.FileAwaitingTranscript || f.TranscriptID == "" {
		t.Fatalf("cancelled file should keep its job, got %s id=%q", f.State, f.TranscriptID)
	}
	if st.last == nil || st.last.State != session.SessionFailed {
		t.Fatal("expected cancellation to be persisted despite the cancelled context")
	}
}

func TestRunEnhancedResumesRecordedJobs(t *testing.T) {
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	o := newTestOrchestrator(t, newMemStore(), tr)
	s := newBoardSession(t)
	for _, f := range s.Files {
		f.State = session.FileAwaitingTranscript
		f.RemoteURL = "https://cdn.test/" + f.Name
		f.TranscriptID = "job-" + f.Name
	}

	if _, err := o.RunEnhanced(context.Background(), s, nil); err != nil {
		t.Fatalf("RunEnhanced: %v", err)
	}
	if tr.uploads != 0 || tr.starts != 0 {
		t.Fatalf("expected no new uploads or jobs, got uploads=%d starts=%d", tr.uploads, tr.starts)
	}
	if s.State != session.SessionComplete {
		t.Fatalf("expected complete, got %s", s.State)
	}
}

func TestRunEnhancedResumesRecoveredFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	tr.uploadErr["mic2.mp3"] = errors.New("connection reset")
	o := newTestOrchestrator(t, st, tr)

	s := testsupport.NewSession(t, st, "master.mp3", "mic1.mp3", "mic2.mp3")
	s.Participants = map[int]string{1: "Alice", 2: "Bob"}
	if _, err := o.RunEnhanced(context.Background(), s, nil); !errors.Is(err, services.ErrBarrierAborted) {
		t.Fatalf("expected barrier abort, got %v", err)
	}
	uploads, starts := tr.uploads, tr.starts

	stored, err := st.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, f := range stored.Files {
		if f.State == session.FileFailed {
			f.ResetForRetry()
		}
	}
	stored.State = session.SessionPending
	stored.ErrorMessage = ""
	if err := st.Upsert(context.Background(), stored); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	delete(tr.uploadErr, "mic2.mp3")

	resumed, err := st.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := o.RunEnhanced(context.Background(), resumed, nil); err != nil {
		t.Fatalf("second RunEnhanced: %v", err)
	}
	if resumed.State != session.SessionComplete {
		t.Fatalf("expected complete, got %s (%s)", resumed.State, resumed.ErrorMessage)
	}
	if tr.uploads != uploads+1 || tr.starts != starts+1 {
		t.Fatalf("expected only the recovered file to upload again, uploads %d->%d starts %d->%d",
			uploads, tr.uploads, starts, tr.starts)
	}
	for _, f := range resumed.Files {
		if f.State != session.FileComplete {
			t.Fatalf("file %s ended in %s", f.Name, f.State)
		}
	}
}

func TestRunEnhancedRestartsCollectiveWork(t *testing.T) {
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	o := newTestOrchestrator(t, newMemStore(), tr)
	s := newBoardSession(t)
	for _, f := range s.Files {
		res, _ := tr.FetchResult(context.Background(), "job-"+f.Name)
		StoreTranscript(f, res, s.TranscriptDir(), nil)
		f.TranscriptID = res.ID
		f.State = session.FileAnalyzingWithAI
	}
	s.State = session.SessionAnalyzing

	if _, err := o.RunEnhanced(context.Background(), s, nil); err != nil {
		t.Fatalf("RunEnhanced: %v", err)
	}
	if s.State != session.SessionComplete || tr.starts != 0 {
		t.Fatalf("expected completion from stored transcripts, got %s starts=%d", s.State, tr.starts)
	}
}

func TestRunEnhancedRejectsEmptySession(t *testing.T) {
	st := newMemStore()
	o := newTestOrchestrator(t, st, newFakeTranscriber())
	s := session.New(t.TempDir())

	_, err := o.RunEnhanced(context.Background(), s, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if s.State != session.SessionFailed {
		t.Fatalf("expected failed session, got %s", s.State)
	}
}

func TestRunEnhancedPersistsToStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tr := newFakeTranscriber()
	boardTranscripts(tr)
	o := newTestOrchestrator(t, st, tr)

	s := testsupport.NewSession(t, st, "master.mp3", "mic1.mp3", "mic2.mp3")
	s.Participants = map[int]string{1: "Alice", 2: "Bob"}
	if _, err := o.RunEnhanced(context.Background(), s, nil); err != nil {
		t.Fatalf("RunEnhanced: %v", err)
	}

	stored, err := st.Get(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != session.SessionComplete || stored.Highlights.IsEmpty() {
		t.Fatalf("expected stored completion with highlights, got %s", stored.State)
	}
	if stored.LastHeartbeat != nil {
		t.Fatal("terminal sessions must not carry a heartbeat")
	}
	if stored.Participants[1] != "Alice" {
		t.Fatalf("participants not persisted: %v", stored.Participants)
	}
}

func TestNewRequiresStoreAndTranscriber(t *testing.T) {
	if _, err := New(Dependencies{Transcriber: newFakeTranscriber()}); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := New(Dependencies{Store: newMemStore()}); err == nil {
		t.Fatal("expected missing transcriber error")
	}
}
