package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"roundtable/internal/deps"
	"roundtable/internal/maintenance"
	"roundtable/internal/roster"
	"roundtable/internal/session"
	"roundtable/internal/workflow"
)

// FromSession converts a session record to its API representation.
func FromSession(s *session.Session) Session {
	if s == nil {
		return Session{}
	}
	dto := Session{
		ID:           s.ID,
		FolderPath:   s.FolderPath,
		SubjectTitle: s.SubjectTitle,
		State:        string(s.State),
		Progress: Progress{
			Percent: s.ProgressPercent,
			Message: s.ProgressMessage,
		},
		ErrorMessage: s.ErrorMessage,
		CreatedAt:    FormatTime(s.CreatedAt),
		UpdatedAt:    FormatTime(s.UpdatedAt),
		Files:        make([]File, 0, len(s.Files)),
		Highlights:   s.Highlights,
		Stats:        s.Stats,
	}
	if !s.RecordingDate.IsZero() {
		dto.RecordingDate = s.RecordingDate.Format(time.DateOnly)
	}
	if len(s.Participants) > 0 {
		dto.Participants = make(map[string]string, len(s.Participants))
		for index, name := range s.Participants {
			dto.Participants[strconv.Itoa(index)] = name
		}
	}
	if s.ProcessedAt != nil {
		dto.ProcessedAt = FormatTime(*s.ProcessedAt)
	}
	if s.LastHeartbeat != nil {
		dto.LastHeartbeat = FormatTime(*s.LastHeartbeat)
	}
	for _, f := range s.Files {
		dto.Files = append(dto.Files, FromFile(f))
	}
	return dto
}

// FromFile converts one recording.
func FromFile(f *session.AudioFile) File {
	dto := File{
		ID:              f.ID,
		Name:            f.Name,
		Path:            f.Path,
		SizeBytes:       f.SizeBytes,
		DurationSeconds: f.DurationSeconds,
		State:           string(f.State),
		Step:            f.StepLabel,
		Percent:         f.Progress,
		IsMaster:        f.IsMaster,
		TranscriptID:    f.TranscriptID,
		HasTranscript:   f.HasTranscript(),
		ErrorMessage:    f.ErrorMessage,
		FailedStage:     string(f.FailedStage),
	}
	if f.State == session.FileFailed {
		dto.Retryable = f.Retryable
	}
	if f.SpeakerIndex != nil {
		index := *f.SpeakerIndex
		dto.SpeakerIndex = &index
	}
	return dto
}

// FromSessions converts a slice of sessions into API DTOs.
func FromSessions(sessions []*session.Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, FromSession(s))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(summary.SessionStats))
	for state, count := range summary.SessionStats {
		stats[string(state)] = count
	}
	wf := WorkflowStatus{
		Running:        summary.Running,
		SessionStats:   stats,
		ActiveSessions: summary.ActiveSessions,
		LastError:      summary.LastError,
	}
	if wf.ActiveSessions == nil {
		wf.ActiveSessions = []string{}
	}
	if summary.LastSession != nil {
		last := FromSession(summary.LastSession)
		wf.LastSession = &last
	}
	if summary.LastSweep != nil {
		wf.LastSweep = FormatTime(*summary.LastSweep)
	}
	return wf
}

// FromDependencies converts preflight results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromDiagnostics converts a maintenance report.
func FromDiagnostics(d maintenance.Diagnostics) Diagnostics {
	dto := Diagnostics{
		SessionID: d.SessionID,
		State:     string(d.State),
		Score:     d.Score,
		Healthy:   d.Healthy(),
		Issues:    make([]Issue, 0, len(d.Issues)),
		CheckedAt: FormatTime(d.CheckedAt),
	}
	for _, issue := range d.Issues {
		dto.Issues = append(dto.Issues, Issue(issue))
	}
	return dto
}

// IngestOptions validates a create request into ingest options.
func (r CreateSessionRequest) IngestOptions() (session.IngestOptions, error) {
	opts := session.IngestOptions{SubjectTitle: strings.TrimSpace(r.SubjectTitle)}
	if raw := strings.TrimSpace(r.RecordingDate); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return opts, fmt.Errorf("recordingDate must be YYYY-MM-DD: %w", err)
		}
		opts.RecordingDate = date
	}
	if len(r.Participants) > 0 {
		opts.Participants = make(map[int]string, len(r.Participants))
		for key, name := range r.Participants {
			index, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil || index < 0 {
				return opts, fmt.Errorf("participant key %q is not a microphone index", key)
			}
			opts.Participants[index] = roster.NormalizeName(name)
		}
	}
	return opts, nil
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
