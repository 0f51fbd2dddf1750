package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"roundtable/internal/analysis"
	"roundtable/internal/attribution"
	"roundtable/internal/logging"
	"roundtable/internal/services"
	"roundtable/internal/session"
)

// Session progress phases, in percent.
const (
	phaseValidated   = 5
	phaseTranscribed = 80
	phaseMerging     = 85
	phaseAnalyzing   = 90
)

const (
	defaultBarrierInterval = 2 * time.Second
	abortPersistTimeout    = 10 * time.Second
	progressBucket         = 5
)

// Dependencies are the collaborators an Orchestrator needs. Store and
// Transcriber are required; the rest may be nil.
type Dependencies struct {
	Store       Store
	Converter   Converter
	Transcriber Transcriber
	// Analyzer defaults to a provider-less service that always falls back.
	Analyzer    Analyzer
	Roster      ParticipantSource
	Durations   DurationSource
}

// Orchestrator runs whole sessions.
type Orchestrator struct {
	store     Store
	analyzer  Analyzer
	roster    ParticipantSource
	durations DurationSource
	driver    *FileDriver
	logger    *slog.Logger

	converter       Converter
	transcriber     Transcriber
	deleteSource    bool
	barrierInterval time.Duration
	maxConcurrent   int
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBarrierInterval sets how often the barrier is re-evaluated.
func WithBarrierInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.barrierInterval = d
		}
	}
}

// WithMaxConcurrentFiles bounds how many files are driven at once. Zero
// means unbounded.
func WithMaxConcurrentFiles(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxConcurrent = n
		}
	}
}

// WithDeleteSource controls removal of originals after conversion.
func WithDeleteSource(enabled bool) Option {
	return func(o *Orchestrator) {
		o.deleteSource = enabled
	}
}

// New builds an orchestrator.
func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Transcriber == nil {
		return nil, errors.New("pipeline: transcriber is required")
	}
	o := &Orchestrator{
		store:           deps.Store,
		analyzer:        deps.Analyzer,
		roster:          deps.Roster,
		durations:       deps.Durations,
		converter:       deps.Converter,
		transcriber:     deps.Transcriber,
		deleteSource:    true,
		barrierInterval: defaultBarrierInterval,
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.analyzer == nil {
		o.analyzer = analysis.NewService(nil, o.logger)
	}
	exec := NewStageExecutors(o.converter, o.transcriber, o.deleteSource, o.logger)
	o.driver = NewFileDriver(exec, o.logger)
	return o, nil
}

// RunEnhanced processes s end to end: validation, concurrent individual
// processing, the barrier, attribution and analysis. The returned session is
// s itself, in a terminal state unless ctx was cancelled mid-run and the
// cancellation could not be recorded. RunEnhanced never panics.
func (o *Orchestrator) RunEnhanced(ctx context.Context, s *session.Session, progress ProgressFunc) (result *session.Session, err error) {
	if s == nil {
		return nil, errors.New("pipeline: nil session")
	}
	ctx = services.WithSessionID(ctx, s.ID)
	run := &sessionRun{
		o:        o,
		session:  s,
		progress: progress,
		logger:   logging.WithContext(ctx, o.logger),
	}
	defer func() {
		if r := recover(); r != nil {
			run.logger.Error("session run panicked",
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
			result, err = s, run.abort(ctx, fmt.Errorf("unexpected failure: %v", r))
		}
	}()
	return s, run.execute(ctx)
}

// sessionRun carries the state of one RunEnhanced call.
type sessionRun struct {
	o        *Orchestrator
	session  *session.Session
	progress ProgressFunc
	logger   *slog.Logger

	// mu serializes snapshot handling while drivers run.
	mu      sync.Mutex
	percent int
}

func (r *sessionRun) execute(ctx context.Context) error {
	s := r.session
	started := time.Now()
	r.logger.Info("session run started",
		logging.String("folder", s.FolderPath),
		logging.Int("files", len(s.Files)),
	)

	if err := r.validate(ctx); err != nil {
		return r.abort(ctx, err)
	}
	s.State = session.SessionTranscribing
	r.report(fmt.Sprintf("Transcribing %d recordings", len(s.Files)), phaseValidated)
	if err := r.checkpoint(ctx, "start"); err != nil {
		return r.abort(ctx, err)
	}

	r.driveFiles(ctx)

	err := awaitBarrier(ctx, s.Files, r.o.barrierInterval, func(st BarrierStatus) {
		r.report(st.Message(), phaseTranscribed)
	})
	if err != nil {
		return r.abort(ctx, err)
	}
	r.logger.Info("barrier released", logging.Int("files", len(s.Files)))

	if err := r.collective(ctx); err != nil {
		return r.abort(ctx, err)
	}

	r.logger.Info("session run complete",
		logging.String("duration", time.Since(started).Round(time.Second).String()),
		logging.Bool("analysis_fallback", s.Highlights.Fallback),
	)
	return nil
}

// driveFiles fans out one driver per unfinished file and waits for all of
// them to stop.
func (r *sessionRun) driveFiles(ctx context.Context) {
	s := r.session
	var sem chan struct{}
	if r.o.maxConcurrent > 0 {
		sem = make(chan struct{}, r.o.maxConcurrent)
	}
	speakers := s.ParticipantCount()
	last := make(map[string]session.FileProcessingState, len(s.Files))
	fractions := make(map[string]float64, len(s.Files))
	for _, f := range s.Files {
		last[f.ID] = f.State
		fractions[f.ID] = fileFraction(f)
	}
	emit := func(snapshot *session.AudioFile) {
		r.observe(ctx, snapshot, last, fractions)
	}

	var wg sync.WaitGroup
	for _, f := range s.Files {
		if stopsDriver(f.State) {
			continue
		}
		task := &fileTask{
			file:          f,
			sessionID:     s.ID,
			transcriptDir: s.TranscriptDir(),
			speakers:      speakers,
			sampler:       logging.NewProgressSampler(progressBucket),
			emit:          emit,
			logger:        r.logger.With(logging.String(logging.FieldFileName, f.Name)),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}
			}
			r.o.driver.Drive(ctx, task)
		}()
	}
	wg.Wait()
}

// observe folds a driver snapshot into session progress and persists state
// changes. Called concurrently by drivers.
func (r *sessionRun) observe(ctx context.Context, snapshot *session.AudioFile, last map[string]session.FileProcessingState, fractions map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fractions[snapshot.ID] = fileFraction(snapshot)
	if last[snapshot.ID] != snapshot.State {
		last[snapshot.ID] = snapshot.State
		if err := r.o.store.UpsertFile(ctx, r.session.ID, snapshot); err != nil {
			r.logger.Debug("file snapshot not persisted",
				logging.String(logging.FieldFileName, snapshot.Name),
				logging.Error(err),
			)
		}
	}

	var sum float64
	ready := 0
	for _, fraction := range fractions {
		sum += fraction
		if fraction >= 1 {
			ready++
		}
	}
	pct := phaseValidated
	if n := len(fractions); n > 0 {
		pct += int(sum / float64(n) * (phaseTranscribed - phaseValidated))
	}
	pct = max(pct, r.percent)
	r.percent = pct
	r.reportLocked(fmt.Sprintf("Processing recordings: %d of %d ready", ready, len(fractions)), pct)
}

// collective runs merge and analysis after the barrier released.
func (r *sessionRun) collective(ctx context.Context) error {
	s := r.session
	s.State = session.SessionAnalyzing
	r.advanceFiles(session.FileMergingAttribution)
	r.report("Merging speaker attribution", phaseMerging)
	if err := r.checkpoint(ctx, "barrier"); err != nil {
		return err
	}

	merged, err := attribution.Merge(s)
	if err != nil {
		return services.Wrap(services.ErrValidation, "merge", "attribution", "speaker attribution failed", err)
	}
	attribution.Apply(s, merged)
	if path, err := attribution.WriteMarkdown(s, merged); err != nil {
		logging.WarnWithContext(r.logger, "merged transcript not written", "transcript_write_failed",
			logging.String(logging.FieldErrorHint, "check permissions on the session folder"),
			logging.String(logging.FieldImpact, "merged transcript kept in the session store only"),
			logging.Error(err),
		)
	} else {
		r.logger.Debug("merged transcript written", logging.String("path", path))
	}
	r.logger.Info("attribution merged",
		logging.String("strategy", string(merged.Stats.Strategy)),
		logging.Int("utterances", merged.Stats.TotalUtterances),
		logging.Int("unattributed", merged.Stats.Unattributed),
	)
	r.advanceFiles(session.FileReadyForAnalysis)
	if err := r.checkpoint(ctx, "merge"); err != nil {
		return err
	}

	r.advanceFiles(session.FileAnalyzingWithAI)
	r.report("Analyzing highlights", phaseAnalyzing)
	outcome := r.o.analyzer.Analyze(ctx, analysis.Input{
		Transcript: merged.Text,
		Utterances: merged.Utterances,
		Metadata: analysis.Metadata{
			Title:         s.SubjectTitle,
			RecordingDate: s.RecordingDate,
			Participants:  merged.Stats.SpeakerNames(),
		},
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	if outcome.Highlights.IsEmpty() {
		return services.Wrap(services.ErrValidation, "analyze", "highlights", "analysis produced no highlights", nil)
	}
	s.Highlights = outcome.Highlights
	r.advanceFiles(session.FileComplete)
	for _, f := range s.Files {
		f.SetProgress(session.FileComplete.Label(), 100)
	}
	if err := r.checkpoint(ctx, "analysis"); err != nil {
		return err
	}

	s.MarkComplete()
	if outcome.Fallback {
		s.ProgressMessage = "Complete (" + analysis.Unavailable + ")"
	}
	r.report(s.ProgressMessage, 100)
	return r.checkpoint(ctx, "terminal")
}

func (r *sessionRun) advanceFiles(state session.FileProcessingState) {
	for _, f := range r.session.Files {
		f.BeginStage(state)
	}
}

// abort records err on the session and persists it even when ctx is done.
func (r *sessionRun) abort(ctx context.Context, err error) error {
	s := r.session
	message := failureMessage(err)
	s.SetFailed(message)
	r.report(message, s.ProgressPercent)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortPersistTimeout)
	defer cancel()
	if perr := r.o.store.Upsert(persistCtx, s); perr != nil {
		logging.ErrorWithContext(r.logger, "failed session not persisted", "checkpoint_failed",
			logging.String("checkpoint", "terminal"),
			logging.Error(perr),
		)
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.logger.Info("session run cancelled", logging.String("reason", message))
	default:
		logging.ErrorWithContext(r.logger, "session run failed", "session_failed", logging.ErrorAttrs(err)...)
	}
	return err
}

func failureMessage(err error) string {
	var barrier *BarrierError
	switch {
	case errors.As(err, &barrier):
		return barrier.Error()
	case errors.Is(err, context.Canceled):
		return "Processing cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Processing timed out"
	}
	if msg := services.Details(err).Message; msg != "" {
		return msg
	}
	return err.Error()
}

// checkpoint persists the whole session.
func (r *sessionRun) checkpoint(ctx context.Context, name string) error {
	if err := r.o.store.Upsert(ctx, r.session); err != nil {
		return fmt.Errorf("persist %s checkpoint: %w", name, err)
	}
	r.logger.Debug("session checkpoint", logging.String("checkpoint", name),
		logging.String("state", string(r.session.State)))
	return nil
}

func (r *sessionRun) report(message string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reportLocked(message, percent)
}

func (r *sessionRun) reportLocked(message string, percent int) {
	r.session.SetProgress(message, percent)
	if r.progress != nil {
		r.progress(message, r.session.ProgressPercent)
	}
}
