package pipeline

import (
	"log/slog"

	"roundtable/internal/logging"
	"roundtable/internal/session"
)

// fileTask is the per-file context handed to transition handlers. Only the
// goroutine driving the file touches it.
type fileTask struct {
	file          *session.AudioFile
	sessionID     string
	transcriptDir string
	// speakers is the expected speaker count for diarized jobs.
	speakers      int
	sampler       *logging.ProgressSampler
	emit          func(*session.AudioFile)
	logger        *slog.Logger
}

// progress records in-stage progress and publishes a snapshot when the
// sampler lets it through.
func (t *fileTask) progress(step string, percent int) {
	t.file.SetProgress(step, percent)
	if t.sampler == nil || t.sampler.Observe(t.file.StepLabel, t.file.Progress) {
		t.publish()
	}
}

func (t *fileTask) publish() {
	if t.emit != nil {
		t.emit(t.file.Clone())
	}
}

func percentOf(current, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(min(current*100/total, 100))
}
