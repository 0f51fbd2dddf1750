package pipeline

import (
	"context"

	"roundtable/internal/analysis"
	"roundtable/internal/services/ffmpeg"
	"roundtable/internal/services/transcription"
	"roundtable/internal/session"
)

// ProgressFunc receives session progress messages and percentages.
type ProgressFunc func(message string, percent int)

// Converter normalizes source audio to MP3.
type Converter interface {
	Convert(ctx context.Context, source, target string, progress ffmpeg.ProgressFunc) error
}

// Transcriber is the remote transcription capability.
type Transcriber interface {
	Upload(ctx context.Context, path string, progress transcription.ProgressFunc) (string, error)
	StartJob(ctx context.Context, audioURL string, opts transcription.JobOptions) (string, error)
	PollUntilDone(ctx context.Context, jobID string) (transcription.Result, error)
	FetchResult(ctx context.Context, jobID string) (transcription.Result, error)
}

// Analyzer produces highlights for a merged transcript. It must not fail.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) analysis.Outcome
}

// DurationSource reads a recording's length in seconds.
type DurationSource interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// ParticipantSource fills a session's microphone names.
type ParticipantSource interface {
	Apply(s *session.Session) bool
}

// Store persists sessions at checkpoints.
type Store interface {
	Upsert(ctx context.Context, s *session.Session) error
	UpsertFile(ctx context.Context, sessionID string, f *session.AudioFile) error
}
