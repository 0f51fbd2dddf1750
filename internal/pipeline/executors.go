package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"roundtable/internal/logging"
	"roundtable/internal/services"
	"roundtable/internal/services/transcription"
	"roundtable/internal/session"
)

// convertibleExtensions are converted to MP3 before upload.
var convertibleExtensions = map[string]struct{}{
	".wav": {}, ".flac": {}, ".m4a": {}, ".aac": {}, ".ogg": {}, ".opus": {},
	".wma": {}, ".aiff": {}, ".aif": {},
}

// StageExecutors wraps the external collaborators behind the individual
// file transitions.
type StageExecutors struct {
	converter    Converter
	transcriber  Transcriber
	deleteSource bool
	logger       *slog.Logger
}

// NewStageExecutors builds the executors. A nil converter leaves only MP3
// inputs processable.
func NewStageExecutors(converter Converter, transcriber Transcriber, deleteSource bool, logger *slog.Logger) *StageExecutors {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StageExecutors{
		converter:    converter,
		transcriber:  transcriber,
		deleteSource: deleteSource,
		logger:       logger,
	}
}

// classify picks the first work state from the source format.
func (e *StageExecutors) classify(_ context.Context, t *fileTask) (session.FileProcessingState, error) {
	f := t.file
	ext := f.Extension()
	if ext == ".mp3" {
		return session.FileReadyToUpload, nil
	}
	if _, ok := convertibleExtensions[ext]; !ok {
		return "", services.Wrap(services.ErrUnsupportedInput, "pending", "classify", fmt.Sprintf("unsupported audio format %q", ext), nil)
	}
	if target := convertedPath(f.Path); !exists(f.Path) && exists(target) {
		// Converted on an earlier run and the source already removed.
		adoptConverted(f, target)
		return session.FileConvertedReady, nil
	}
	return session.FileConverting, nil
}

// convert normalizes the source to MP3, then removes the source.
func (e *StageExecutors) convert(ctx context.Context, t *fileTask) (session.FileProcessingState, error) {
	f := t.file
	target := convertedPath(f.Path)
	if f.Extension() == ".mp3" {
		return session.FileConvertedReady, nil
	}
	if !exists(f.Path) && exists(target) {
		adoptConverted(f, target)
		return session.FileConvertedReady, nil
	}
	if e.converter == nil {
		return "", services.Wrap(services.ErrConfiguration, "convert", "ffmpeg", "no converter configured", nil)
	}
	err := e.converter.Convert(ctx, f.Path, target, func(step string, current, total int64) {
		t.progress(session.FileConverting.Label(), percentOf(current, total))
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "convert", "ffmpeg", "conversion failed", err)
	}
	source := f.Path
	adoptConverted(f, target)
	if e.deleteSource {
		if err := os.Remove(source); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(t.logger, "source delete failed", "source_cleanup_failed",
				logging.String("path", source),
				logging.String(logging.FieldErrorHint, "remove the original recording manually"),
				logging.String(logging.FieldImpact, "original recording left on disk"),
				logging.Error(err),
			)
		}
	}
	return session.FileConvertedReady, nil
}

// upload sends the file to the provider unless a remote URL already exists.
func (e *StageExecutors) upload(ctx context.Context, t *fileTask) (session.FileProcessingState, error) {
	f := t.file
	if strings.TrimSpace(f.RemoteURL) != "" {
		return session.FileUploaded, nil
	}
	if e.transcriber == nil {
		return "", services.Wrap(services.ErrConfiguration, "upload", "transcription", "no transcription provider configured", nil)
	}
	if !exists(f.Path) {
		return "", services.Wrap(services.ErrNotFound, "upload", "stat", "recording missing: "+f.Path, nil)
	}
	url, err := e.transcriber.Upload(ctx, f.Path, func(sent, total int64) {
		t.progress(session.FileUploading.Label(), percentOf(sent, total))
	})
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "upload", "transcription", "upload failed", err)
	}
	f.RemoteURL = url
	return session.FileUploaded, nil
}

// startTranscription submits the job unless one is already recorded.
func (e *StageExecutors) startTranscription(ctx context.Context, t *fileTask) (session.FileProcessingState, error) {
	f := t.file
	if f.HasTranscriptJob() {
		return session.FileAwaitingTranscript, nil
	}
	if e.transcriber == nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "transcription", "no transcription provider configured", nil)
	}
	opts := transcription.JobOptions{
		Diarization: f.IsMaster || f.SpeakerIndex == nil,
		Label:       f.Name,
	}
	if opts.Diarization {
		opts.ExpectedSpeakers = t.speakers
	}
	id, err := e.transcriber.StartJob(ctx, f.RemoteURL, opts)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "start job", "could not start transcription", err)
	}
	f.TranscriptID = id
	t.progress(session.FileUploaded.Label(), 100)
	return session.FileAwaitingTranscript, nil
}

// awaitTranscript polls the job to completion and stores the transcript.
func (e *StageExecutors) awaitTranscript(ctx context.Context, t *fileTask) (session.FileProcessingState, error) {
	f := t.file
	if f.HasTranscript() {
		return session.FileTranscriptDownloaded, nil
	}
	if !f.HasTranscriptJob() {
		return session.FileUploaded, nil
	}
	if e.transcriber == nil {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "transcription", "no transcription provider configured", nil)
	}
	t.progress("Waiting for transcript", 10)
	result, err := e.transcriber.PollUntilDone(ctx, f.TranscriptID)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "poll", "transcript status unavailable", err)
	}
	if !result.Succeeded() {
		if result.Status == transcription.StatusError {
			// The job is dead; a retry must start a new one.
			f.TranscriptID = ""
		}
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "result", result.FailureReason(), nil)
	}
	StoreTranscript(f, result, t.transcriptDir, t.logger)
	return session.FileTranscriptDownloaded, nil
}

// StoreTranscript copies a finished job into the file and writes the
// transcript document. A failed document write is logged; the text is kept.
func StoreTranscript(f *session.AudioFile, result transcription.Result, dir string, logger *slog.Logger) {
	f.TranscriptText = strings.TrimSpace(result.Text)
	f.Utterances = make([]session.Utterance, 0, len(result.Utterances))
	for _, u := range result.Utterances {
		f.Utterances = append(f.Utterances, session.Utterance{
			Speaker:    u.Speaker,
			Text:       strings.TrimSpace(u.Text),
			Start:      u.Start,
			End:        u.End,
			Confidence: u.Confidence,
		})
	}
	if f.DurationSeconds == 0 && result.AudioDuration > 0 {
		f.DurationSeconds = result.AudioDuration
	}
	path, err := writeTranscriptDocument(dir, f, result)
	if err != nil {
		logging.WarnWithContext(logger, "transcript document not written", "transcript_write_failed",
			logging.String(logging.FieldErrorHint, "check permissions on the session folder"),
			logging.String(logging.FieldImpact, "transcript kept in the session store only"),
			logging.Error(err),
		)
		return
	}
	f.TranscriptPath = path
}

type transcriptDocument struct {
	File       string                    `json:"file"`
	JobID      string                    `json:"job_id"`
	Text       string                    `json:"text"`
	Utterances []transcription.Utterance `json:"utterances"`
	SavedAt    time.Time                 `json:"saved_at"`
}

func writeTranscriptDocument(dir string, f *session.AudioFile, result transcription.Result) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("transcript directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	doc := transcriptDocument{
		File:       f.Name,
		JobID:      result.ID,
		Text:       f.TranscriptText,
		Utterances: result.Utterances,
		SavedAt:    time.Now().UTC(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	base := strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
	path := filepath.Join(dir, base+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize transcript: %w", err)
	}
	return path, nil
}

func convertedPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".mp3"
}

func adoptConverted(f *session.AudioFile, target string) {
	f.Path = target
	if info, err := os.Stat(target); err == nil {
		f.SizeBytes = info.Size()
	}
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
