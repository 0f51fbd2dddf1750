package transcription

import "strings"

// Status is the provider-side job status.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Done reports whether the job has stopped changing.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusError
}

// Utterance is one speaker turn. Start and End are milliseconds.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Result is the transcript job document.
type Result struct {
	ID            string      `json:"id"`
	Status        Status      `json:"status"`
	Text          string      `json:"text"`
	Utterances    []Utterance `json:"utterances"`
	Error         string      `json:"error"`
	AudioDuration float64     `json:"audio_duration"`
	LanguageCode  string      `json:"language_code"`
}

// Succeeded reports whether the job completed with transcript text.
func (r Result) Succeeded() bool {
	return r.Status == StatusCompleted && strings.TrimSpace(r.Text) != ""
}

// FailureReason describes why a finished job is unusable.
func (r Result) FailureReason() string {
	switch {
	case r.Status == StatusError && strings.TrimSpace(r.Error) != "":
		return strings.TrimSpace(r.Error)
	case r.Status == StatusError:
		return "transcription failed"
	case r.Status == StatusCompleted && strings.TrimSpace(r.Text) == "":
		return "transcript is empty"
	case !r.Status.Done():
		return "transcript not ready (" + string(r.Status) + ")"
	default:
		return ""
	}
}

// JobOptions configures a transcript job.
type JobOptions struct {
	// ExpectedSpeakers is sent only when Diarization is enabled and positive.
	ExpectedSpeakers int
	Diarization      bool
	// Label identifies the job in logs; the provider never sees it.
	Label            string
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type jobRequest struct {
	AudioURL         string `json:"audio_url"`
	SpeakerLabels    bool   `json:"speaker_labels"`
	SpeakersExpected int    `json:"speakers_expected,omitempty"`
	LanguageCode     string `json:"language_code,omitempty"`
	Punctuate        bool   `json:"punctuate"`
	FormatText       bool   `json:"format_text"`
}
