package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roundtable/internal/notifications"
	"roundtable/internal/pipeline"
	"roundtable/internal/session"
	"roundtable/internal/store"
	"roundtable/internal/testsupport"
	"roundtable/internal/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.last = payload
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...)
}

// stubRunner completes sessions unless block is set, in which case it waits
// for cancellation like a long transcription would.
type stubRunner struct {
	store   *store.Store
	block   bool
	started chan string

	mu  sync.Mutex
	ran []string
}

func newStubRunner(st *store.Store) *stubRunner {
	return &stubRunner{store: st, started: make(chan string, 8)}
}

func (r *stubRunner) RunEnhanced(ctx context.Context, s *session.Session, progress pipeline.ProgressFunc) (*session.Session, error) {
	r.mu.Lock()
	r.ran = append(r.ran, s.ID)
	r.mu.Unlock()
	r.started <- s.ID

	s.State = session.SessionTranscribing
	progress("Processing recordings", 5)
	if r.block {
		<-ctx.Done()
		s.SetFailed("Processing cancelled")
		_ = r.store.Upsert(context.WithoutCancel(ctx), s)
		return s, ctx.Err()
	}
	s.Highlights = &session.CategorizedHighlights{Summary: "done"}
	s.MarkComplete()
	progress("Complete", 100)
	if err := r.store.Upsert(ctx, s); err != nil {
		return s, err
	}
	return s, nil
}

func (r *stubRunner) Ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

type stubSweeper struct {
	mu        sync.Mutex
	threshold time.Duration
	repaired  int
}

func (s *stubSweeper) DetectStuckSessions(_ context.Context, threshold time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	return s.repaired, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newManager(t *testing.T, runner *stubRunner, st *store.Store, notifier *recordingNotifier) *workflow.Manager {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	return workflow.NewManager(cfg, st, runner, nil,
		workflow.WithNotifier(notifier),
		workflow.WithPollInterval(10*time.Millisecond),
	)
}

func TestManagerProcessesPendingSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := testsupport.NewSession(t, st, "master.mp3", "mic1.mp3")

	runner := newStubRunner(st)
	notifier := &recordingNotifier{}
	mgr := newManager(t, runner, st, notifier)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	waitFor(t, "completion notification", func() bool { return len(notifier.Events()) == 1 })
	if got := notifier.Events()[0]; got != notifications.EventSessionCompleted {
		t.Fatalf("expected completion event, got %s", got)
	}
	stored, err := st.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != session.SessionComplete || stored.LastHeartbeat != nil {
		t.Fatalf("expected complete session without heartbeat, got %s hb=%v", stored.State, stored.LastHeartbeat)
	}

	status := mgr.Status(context.Background())
	if !status.Running || status.LastSessionID != sess.ID || len(status.ActiveSessions) != 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.SessionStats[session.SessionComplete] != 1 {
		t.Fatalf("expected one complete session in stats, got %v", status.SessionStats)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected preflight results in status")
	}
	if ran := runner.Ran(); len(ran) != 1 {
		t.Fatalf("completed sessions must not be picked again, ran %v", ran)
	}
}

func TestManagerSkipsTranscribingSessionsWithFreshHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	owned := testsupport.NewSession(t, st, "master.mp3")
	owned.State = session.SessionTranscribing
	if err := st.Upsert(ctx, owned); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := st.UpdateHeartbeat(ctx, owned.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	orphan := testsupport.NewSession(t, st, "master.mp3")
	orphan.State = session.SessionTranscribing
	if err := st.Upsert(ctx, orphan); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	runner := newStubRunner(st)
	notifier := &recordingNotifier{}
	mgr := newManager(t, runner, st, notifier)
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	waitFor(t, "orphan resumed", func() bool { return len(notifier.Events()) == 1 })
	time.Sleep(50 * time.Millisecond)
	ran := runner.Ran()
	if len(ran) != 1 || ran[0] != orphan.ID {
		t.Fatalf("expected only the orphaned session to run, ran %v", ran)
	}
}

func TestManagerCancelStopsRunningSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := testsupport.NewSession(t, st, "master.mp3")

	runner := newStubRunner(st)
	runner.block = true
	notifier := &recordingNotifier{}
	mgr := newManager(t, runner, st, notifier)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	<-runner.started
	if !mgr.Active(sess.ID) {
		t.Fatal("expected running session to be active")
	}
	if !mgr.Cancel(sess.ID) {
		t.Fatal("expected Cancel to find the running session")
	}
	waitFor(t, "session released", func() bool { return !mgr.Active(sess.ID) })

	stored, err := st.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != session.SessionFailed || stored.ErrorMessage != "Processing cancelled" {
		t.Fatalf("expected cancelled failure, got %s %q", stored.State, stored.ErrorMessage)
	}
	if len(notifier.Events()) != 0 {
		t.Fatalf("cancellation must not notify, got %v", notifier.Events())
	}
	if mgr.Cancel("unknown") {
		t.Fatal("Cancel must report false for sessions that are not running")
	}
}

func TestManagerStopRequeuesInterruptedSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := testsupport.NewSession(t, st, "master.mp3")

	runner := newStubRunner(st)
	runner.block = true
	mgr := newManager(t, runner, st, &recordingNotifier{})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-runner.started
	mgr.Stop()

	stored, err := st.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != session.SessionPending || stored.ErrorMessage != "" {
		t.Fatalf("expected session queued to resume, got %s %q", stored.State, stored.ErrorMessage)
	}
	if mgr.Status(context.Background()).Running {
		t.Fatal("expected stopped manager")
	}
}

func TestManagerStartRejectsDoubleStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	mgr := newManager(t, newStubRunner(st), st, &recordingNotifier{})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	noRunner := workflow.NewManager(cfg, st, nil, nil)
	if err := noRunner.Start(context.Background()); err == nil {
		t.Fatal("expected Start without runner to fail")
	}
}

func TestSweepNowUsesConfiguredThreshold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.StuckThresholdMinutes = 45
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, st, newStubRunner(st), nil, workflow.WithNotifier(notifier))

	if _, err := mgr.SweepNow(context.Background()); err == nil {
		t.Fatal("expected error without maintenance configured")
	}

	sweeper := &stubSweeper{repaired: 2}
	mgr.ConfigureMaintenance(sweeper)
	repaired, err := mgr.SweepNow(context.Background())
	if err != nil {
		t.Fatalf("SweepNow: %v", err)
	}
	if repaired != 2 || sweeper.threshold != 45*time.Minute {
		t.Fatalf("unexpected sweep: repaired=%d threshold=%s", repaired, sweeper.threshold)
	}
	events := notifier.Events()
	if len(events) != 1 || events[0] != notifications.EventStuckSessions {
		t.Fatalf("expected stuck notification, got %v", events)
	}
	if mgr.Status(context.Background()).LastSweep == nil {
		t.Fatal("expected last sweep time in status")
	}
}

func TestManagerRecordsRunnerFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sess := testsupport.NewSession(t, st, "master.mp3")

	notifier := &recordingNotifier{}
	mgr := workflow.NewManager(cfg, st, failingRunner{store: st}, nil,
		workflow.WithNotifier(notifier),
		workflow.WithPollInterval(10*time.Millisecond),
	)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	waitFor(t, "failure notification", func() bool { return len(notifier.Events()) == 1 })
	if got := notifier.Events()[0]; got != notifications.EventSessionFailed {
		t.Fatalf("expected failure event, got %s", got)
	}
	status := mgr.Status(context.Background())
	if status.LastError == "" || status.LastSessionID != sess.ID {
		t.Fatalf("expected failure recorded in status, got %+v", status)
	}
}

type failingRunner struct {
	store *store.Store
}

func (r failingRunner) RunEnhanced(ctx context.Context, s *session.Session, _ pipeline.ProgressFunc) (*session.Session, error) {
	s.SetFailed("Cannot proceed: 1 file failed: master.mp3")
	if err := r.store.Upsert(ctx, s); err != nil {
		return s, err
	}
	return s, errors.New(s.ErrorMessage)
}
