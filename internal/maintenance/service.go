package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"roundtable/internal/logging"
	"roundtable/internal/pipeline"
	"roundtable/internal/services"
	"roundtable/internal/services/transcription"
	"roundtable/internal/session"
)

// ErrSessionActive is returned when an operation would race a running session.
var ErrSessionActive = errors.New("session is being processed")

// Store is the persistence the service reads and repairs.
type Store interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	GetAll(ctx context.Context, states ...session.SessionProcessingState) ([]*session.Session, error)
	Upsert(ctx context.Context, s *session.Session) error
	ClearHeartbeat(ctx context.Context, id string) error
}

// TranscriptFetcher re-reads finished provider jobs.
type TranscriptFetcher interface {
	FetchResult(ctx context.Context, jobID string) (transcription.Result, error)
}

// Service implements the maintenance operations.
type Service struct {
	store   Store
	fetcher TranscriptFetcher
	logger  *slog.Logger
	now     func() time.Time
	active  func(id string) bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithActiveCheck reports sessions running in this process; they are never
// treated as stuck or modified.
func WithActiveCheck(active func(id string) bool) Option {
	return func(s *Service) {
		s.active = active
	}
}

// New builds the service. fetcher may be nil when transcripts cannot be
// re-downloaded.
func New(store Store, fetcher TranscriptFetcher, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		fetcher: fetcher,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) isActive(id string) bool {
	return s.active != nil && s.active(id)
}

// DetectStuckSessions repairs sessions created before now-threshold whose
// last activity is also older than threshold. A session with any downloaded
// transcript returns to Transcribing; one without fails. It returns how many
// sessions were repaired.
func (s *Service) DetectStuckSessions(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		return 0, fmt.Errorf("stuck threshold must be positive, got %s", threshold)
	}
	sessions, err := s.store.GetAll(ctx, session.NonTerminalSessionStates()...)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	now := s.now().UTC()
	cutoff := now.Add(-threshold)

	repaired := 0
	var errs []error
	for _, sess := range sessions {
		if s.isActive(sess.ID) || !sess.CreatedAt.Before(cutoff) || !lastActivity(sess).Before(cutoff) {
			continue
		}
		logger := s.logger.With(logging.String(logging.FieldSessionID, sess.ID))
		previous := sess.State
		age := now.Sub(lastActivity(sess)).Round(time.Minute)
		if hasAnyTranscript(sess) {
			sess.State = session.SessionTranscribing
			sess.ErrorMessage = ""
			sess.LastHeartbeat = nil
			sess.SetProgress(fmt.Sprintf("Reset after %s stuck in %s", age, previous), sess.ProgressPercent)
			logger.Info("stuck session reset for resume",
				logging.String("previous_state", string(previous)),
				logging.String("idle", age.String()),
			)
		} else {
			sess.SetFailed(fmt.Sprintf("Stuck in %s for %s with no transcripts; recover the session to retry", previous, age))
			logging.WarnWithContext(logger, "stuck session failed", "stuck_session_failed",
				logging.String("previous_state", string(previous)),
				logging.String(logging.FieldErrorHint, "recover the session once the cause is fixed"),
				logging.String(logging.FieldImpact, "session will not be processed until recovered"),
			)
		}
		if err := s.store.Upsert(ctx, sess); err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", sess.ID, err))
			continue
		}
		if sess.State == session.SessionTranscribing {
			if err := s.store.ClearHeartbeat(ctx, sess.ID); err != nil {
				errs = append(errs, fmt.Errorf("clear heartbeat %s: %w", sess.ID, err))
				continue
			}
		}
		repaired++
	}
	return repaired, errors.Join(errs...)
}

func lastActivity(sess *session.Session) time.Time {
	latest := sess.UpdatedAt
	if sess.LastHeartbeat != nil && sess.LastHeartbeat.After(latest) {
		latest = *sess.LastHeartbeat
	}
	if latest.IsZero() {
		latest = sess.CreatedAt
	}
	return latest
}

func hasAnyTranscript(sess *session.Session) bool {
	for _, f := range sess.Files {
		if f.HasTranscript() {
			return true
		}
	}
	return false
}

// RecoverFailedFiles returns every failed file to Pending and the session
// to Pending for a full re-run. Completed uploads and transcript jobs are
// kept, so the pipeline skips them. It returns how many files were reset.
func (s *Service) RecoverFailedFiles(ctx context.Context, id string) (int, error) {
	if s.isActive(id) {
		return 0, fmt.Errorf("recover %s: %w", id, ErrSessionActive)
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, f := range sess.Files {
		if f.State != session.FileFailed {
			continue
		}
		f.ResetForRetry()
		reset++
	}
	sess.State = session.SessionPending
	sess.ErrorMessage = ""
	sess.Highlights = nil
	sess.Stats = nil
	sess.ProcessedAt = nil
	sess.LastHeartbeat = nil
	sess.SetProgress("Recovery requested", 0)
	if err := s.store.Upsert(ctx, sess); err != nil {
		return 0, fmt.Errorf("persist recovery: %w", err)
	}
	s.logger.Info("session recovered",
		logging.String(logging.FieldSessionID, id),
		logging.Int("files_reset", reset),
	)
	return reset, nil
}

// RedownloadTranscripts re-fetches transcripts for files that have a
// provider job but lost their text. Files that still cannot be fetched are
// reported in the joined error; the rest are persisted. It returns how many
// transcripts were restored.
func (s *Service) RedownloadTranscripts(ctx context.Context, id string) (int, error) {
	if s.fetcher == nil {
		return 0, services.Wrap(services.ErrConfiguration, "maintenance", "redownload", "no transcription provider configured", nil)
	}
	if s.isActive(id) {
		return 0, fmt.Errorf("redownload %s: %w", id, ErrSessionActive)
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	logger := s.logger.With(logging.String(logging.FieldSessionID, id))

	restored := 0
	var errs []error
	for _, f := range sess.Files {
		if !f.HasTranscriptJob() || f.HasTranscript() {
			continue
		}
		result, err := s.fetcher.FetchResult(ctx, f.TranscriptID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		if !result.Succeeded() {
			errs = append(errs, fmt.Errorf("%s: %s", f.Name, result.FailureReason()))
			continue
		}
		pipeline.StoreTranscript(f, result, sess.TranscriptDir(), logger)
		if f.State == session.FileAwaitingTranscript {
			f.BeginStage(session.FileTranscriptDownloaded)
		}
		restored++
		logger.Info("transcript restored", logging.String(logging.FieldFileName, f.Name))
	}
	if restored > 0 {
		sess.UpdatedAt = s.now().UTC()
		if err := s.store.Upsert(ctx, sess); err != nil {
			return 0, fmt.Errorf("persist transcripts: %w", err)
		}
	}
	return restored, errors.Join(errs...)
}
