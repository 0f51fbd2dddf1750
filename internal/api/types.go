package api

import "roundtable/internal/session"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Session describes a session in a transport-friendly format.
type Session struct {
	ID            string                         `json:"id"`
	FolderPath    string                         `json:"folderPath"`
	SubjectTitle  string                         `json:"subjectTitle,omitempty"`
	RecordingDate string                         `json:"recordingDate,omitempty"`
	Participants  map[string]string              `json:"participants,omitempty"`
	State         string                         `json:"state"`
	Progress      Progress                       `json:"progress"`
	ErrorMessage  string                         `json:"errorMessage,omitempty"`
	CreatedAt     string                         `json:"createdAt,omitempty"`
	UpdatedAt     string                         `json:"updatedAt,omitempty"`
	ProcessedAt   string                         `json:"processedAt,omitempty"`
	LastHeartbeat string                         `json:"lastHeartbeat,omitempty"`
	Files         []File                         `json:"files"`
	Highlights    *session.CategorizedHighlights `json:"highlights,omitempty"`
	Stats         *session.MergeStats            `json:"stats,omitempty"`
}

// Progress captures the session progress line.
type Progress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// File describes one recording of a session.
type File struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Path            string  `json:"path"`
	SizeBytes       int64   `json:"sizeBytes"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	State           string  `json:"state"`
	Step            string  `json:"step,omitempty"`
	Percent         int     `json:"percent"`
	SpeakerIndex    *int    `json:"speakerIndex,omitempty"`
	IsMaster        bool    `json:"isMaster"`
	TranscriptID    string  `json:"transcriptId,omitempty"`
	HasTranscript   bool    `json:"hasTranscript"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	Retryable       bool    `json:"retryable,omitempty"`
	FailedStage     string  `json:"failedStage,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running        bool           `json:"running"`
	SessionStats   map[string]int `json:"sessionStats"`
	ActiveSessions []string       `json:"activeSessions"`
	LastError      string         `json:"lastError,omitempty"`
	LastSession    *Session       `json:"lastSession,omitempty"`
	LastSweep      string         `json:"lastSweep,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Issue mirrors one diagnostic finding.
type Issue struct {
	Code     string `json:"code"`
	FileName string `json:"fileName,omitempty"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// Diagnostics is the health report for one session.
type Diagnostics struct {
	SessionID string  `json:"sessionId"`
	State     string  `json:"state"`
	Score     int     `json:"score"`
	Healthy   bool    `json:"healthy"`
	Issues    []Issue `json:"issues"`
	CheckedAt string  `json:"checkedAt"`
}

// CreateSessionRequest asks the daemon to ingest a folder.
type CreateSessionRequest struct {
	Folder        string            `json:"folder"`
	SubjectTitle  string            `json:"subjectTitle,omitempty"`
	RecordingDate string            `json:"recordingDate,omitempty"`
	Participants  map[string]string `json:"participants,omitempty"`
}

// SessionListResponse wraps a collection of sessions.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// SessionResponse wraps a single session.
type SessionResponse struct {
	Session Session `json:"session"`
}

// CountResponse reports how many records an action touched.
type CountResponse struct {
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
