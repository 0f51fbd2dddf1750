package session

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Utterance is one speaker turn returned by the transcription provider, or
// produced by attribution. Times are milliseconds from the start of the recording.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Duration returns the utterance length in milliseconds.
func (u Utterance) Duration() int64 {
	if u.End <= u.Start {
		return 0
	}
	return u.End - u.Start
}

// AudioFile is a single recording inside a session. Only the task driving the
// file mutates it during individual processing.
type AudioFile struct {
	ID              string
	Name            string
	Path            string
	SizeBytes       int64
	DurationSeconds float64

	State     FileProcessingState
	StepLabel string
	Progress  int
	UpdatedAt time.Time

	RemoteURL      string
	TranscriptID   string
	TranscriptPath string
	TranscriptText string
	Utterances     []Utterance

	ErrorMessage string
	Retryable    bool
	// FailedStage is the state the file was in when it failed.
	FailedStage  FileProcessingState

	SpeakerIndex *int
	IsMaster     bool
}

// NewAudioFile builds a pending file record for path.
func NewAudioFile(path string, size int64) *AudioFile {
	return &AudioFile{
		ID:        uuid.NewString(),
		Name:      filepath.Base(path),
		Path:      path,
		SizeBytes: size,
		State:     FilePending,
		StepLabel: FilePending.Label(),
		Retryable: true,
		UpdatedAt: time.Now().UTC(),
	}
}

// Extension returns the lowercase file extension including the dot.
func (f *AudioFile) Extension() string {
	return strings.ToLower(filepath.Ext(f.Path))
}

// HasTranscript reports whether transcript text has been downloaded.
func (f *AudioFile) HasTranscript() bool {
	return strings.TrimSpace(f.TranscriptText) != ""
}

// HasTranscriptJob reports whether a provider job id is recorded.
func (f *AudioFile) HasTranscriptJob() bool {
	return strings.TrimSpace(f.TranscriptID) != ""
}

// BeginStage moves the file into state and resets progress for the new stage.
func (f *AudioFile) BeginStage(state FileProcessingState) {
	f.State = state
	f.StepLabel = state.Label()
	f.Progress = 0
	f.UpdatedAt = time.Now().UTC()
}

// SetProgress records in-stage progress. Percent never decreases within a stage.
func (f *AudioFile) SetProgress(step string, percent int) {
	percent = min(max(percent, 0), 100)
	if percent > f.Progress {
		f.Progress = percent
	}
	if step = strings.TrimSpace(step); step != "" {
		f.StepLabel = step
	}
	f.UpdatedAt = time.Now().UTC()
}

// SetFailed marks the file failed, remembering where it stopped.
func (f *AudioFile) SetFailed(message string, retryable bool) {
	if f.State != FileFailed {
		f.FailedStage = f.State
	}
	f.State = FileFailed
	f.ErrorMessage = message
	f.Retryable = retryable
	f.StepLabel = "Failed: " + message
	f.Progress = 0
	f.UpdatedAt = time.Now().UTC()
}

// ResetForRetry returns a failed file to Pending. Completed side effects such
// as the remote URL and transcript id are kept so the transitions can skip them.
func (f *AudioFile) ResetForRetry() {
	f.State = FilePending
	f.StepLabel = FilePending.Label()
	f.Progress = 0
	f.ErrorMessage = ""
	f.Retryable = true
	f.FailedStage = ""
	f.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the file.
func (f *AudioFile) Clone() *AudioFile {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Utterances = slices.Clone(f.Utterances)
	if f.SpeakerIndex != nil {
		idx := *f.SpeakerIndex
		cp.SpeakerIndex = &idx
	}
	return &cp
}

// Session is the aggregate root for one recorded discussion.
type Session struct {
	ID            string
	FolderPath    string
	SubjectTitle  string
	RecordingDate time.Time
	// Participants maps microphone index to participant name.
	Participants  map[int]string
	Files         []*AudioFile

	State           SessionProcessingState
	ErrorMessage    string
	ProgressMessage string
	ProgressPercent int

	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
	LastHeartbeat *time.Time

	Highlights *CategorizedHighlights
	Stats      *MergeStats
}

// New creates a pending session for folder.
func New(folder string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.NewString(),
		FolderPath:   folder,
		Participants: map[int]string{},
		State:        SessionPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Master returns the master recording, if one is marked.
func (s *Session) Master() *AudioFile {
	for _, f := range s.Files {
		if f.IsMaster {
			return f
		}
	}
	return nil
}

// File looks up a file by id.
func (s *Session) File(id string) *AudioFile {
	for _, f := range s.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// ParticipantName resolves a microphone index, falling back to "Speaker N".
func (s *Session) ParticipantName(index int) string {
	if name := strings.TrimSpace(s.Participants[index]); name != "" {
		return name
	}
	return "Speaker " + strconv.Itoa(index)
}

// ParticipantCount returns the expected number of distinct speakers.
func (s *Session) ParticipantCount() int {
	if n := len(s.Participants); n > 0 {
		return n
	}
	count := 0
	for _, f := range s.Files {
		if f.SpeakerIndex != nil {
			count++
		}
	}
	return count
}

// SetProgress records the session-level progress line.
func (s *Session) SetProgress(message string, percent int) {
	s.ProgressMessage = message
	s.ProgressPercent = min(max(percent, 0), 100)
	s.UpdatedAt = time.Now().UTC()
}

// SetFailed marks the session failed with message.
func (s *Session) SetFailed(message string) {
	s.State = SessionFailed
	s.ErrorMessage = message
	s.ProgressMessage = message
	s.UpdatedAt = time.Now().UTC()
	s.LastHeartbeat = nil
}

// MarkComplete finalizes a session that has analysis output.
func (s *Session) MarkComplete() {
	now := time.Now().UTC()
	s.State = SessionComplete
	s.ErrorMessage = ""
	s.ProcessedAt = &now
	s.UpdatedAt = now
	s.LastHeartbeat = nil
	s.SetProgress("Complete", 100)
}

// FailedFiles returns the files currently in the Failed state.
func (s *Session) FailedFiles() []*AudioFile {
	var out []*AudioFile
	for _, f := range s.Files {
		if f.State == FileFailed {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Participants = make(map[int]string, len(s.Participants))
	for k, v := range s.Participants {
		cp.Participants[k] = v
	}
	cp.Files = make([]*AudioFile, len(s.Files))
	for i, f := range s.Files {
		cp.Files[i] = f.Clone()
	}
	if s.ProcessedAt != nil {
		t := *s.ProcessedAt
		cp.ProcessedAt = &t
	}
	if s.LastHeartbeat != nil {
		t := *s.LastHeartbeat
		cp.LastHeartbeat = &t
	}
	cp.Highlights = s.Highlights.Clone()
	if s.Stats != nil {
		stats := s.Stats.Clone()
		cp.Stats = &stats
	}
	return &cp
}

// TranscriptDir is where transcript documents for the session are written.
func (s *Session) TranscriptDir() string {
	return filepath.Join(s.FolderPath, "transcripts")
}
