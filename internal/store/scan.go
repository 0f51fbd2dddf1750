package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"roundtable/internal/session"
)

const sessionColumns = "id, folder_path, subject_title, recording_date, participants_json, state, error_message, progress_message, progress_percent, created_at, updated_at, processed_at, last_heartbeat, highlights_json, stats_json"

const fileColumns = "id, session_id, position, name, path, size_bytes, duration_seconds, state, step_label, progress, updated_at, remote_url, transcript_id, transcript_path, transcript_text, utterances_json, error_message, retryable, failed_stage, speaker_index, is_master"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(scanner rowScanner) (*session.Session, error) {
	var (
		id              string
		folderPath      string
		subjectTitle    sql.NullString
		recordingRaw    sql.NullString
		participantsRaw sql.NullString
		stateStr        string
		errorMessage    sql.NullString
		progressMessage sql.NullString
		progressPercent sql.NullInt64
		createdRaw      string
		updatedRaw      string
		processedRaw    sql.NullString
		heartbeatRaw    sql.NullString
		highlightsRaw   sql.NullString
		statsRaw        sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&folderPath,
		&subjectTitle,
		&recordingRaw,
		&participantsRaw,
		&stateStr,
		&errorMessage,
		&progressMessage,
		&progressPercent,
		&createdRaw,
		&updatedRaw,
		&processedRaw,
		&heartbeatRaw,
		&highlightsRaw,
		&statsRaw,
	); err != nil {
		return nil, err
	}

	s := &session.Session{
		ID:              id,
		FolderPath:      folderPath,
		SubjectTitle:    subjectTitle.String,
		State:           session.SessionProcessingState(stateStr),
		ErrorMessage:    errorMessage.String,
		ProgressMessage: progressMessage.String,
		ProgressPercent: int(progressPercent.Int64),
		Participants:    map[int]string{},
	}
	if recordingRaw.Valid {
		if date, err := time.Parse(time.DateOnly, recordingRaw.String); err == nil {
			s.RecordingDate = date
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		s.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		s.UpdatedAt = updated
	}
	s.ProcessedAt = parseNullableTime(processedRaw)
	s.LastHeartbeat = parseNullableTime(heartbeatRaw)

	if participantsRaw.String != "" {
		var raw map[string]string
		if err := json.Unmarshal([]byte(participantsRaw.String), &raw); err != nil {
			return nil, fmt.Errorf("decode participants for %s: %w", id, err)
		}
		for key, name := range raw {
			idx, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			s.Participants[idx] = name
		}
	}
	if highlightsRaw.String != "" {
		var h session.CategorizedHighlights
		if err := json.Unmarshal([]byte(highlightsRaw.String), &h); err != nil {
			return nil, fmt.Errorf("decode highlights for %s: %w", id, err)
		}
		s.Highlights = &h
	}
	if statsRaw.String != "" {
		var stats session.MergeStats
		if err := json.Unmarshal([]byte(statsRaw.String), &stats); err != nil {
			return nil, fmt.Errorf("decode stats for %s: %w", id, err)
		}
		s.Stats = &stats
	}
	return s, nil
}

// scanFile returns the file and the id of the session that owns it.
func scanFile(scanner rowScanner) (*session.AudioFile, string, error) {
	var (
		id             string
		sessionID      string
		position       int
		name           string
		path           string
		sizeBytes      int64
		duration       sql.NullFloat64
		stateStr       string
		stepLabel      sql.NullString
		progress       int
		updatedRaw     string
		remoteURL      sql.NullString
		transcriptID   sql.NullString
		transcriptPath sql.NullString
		transcriptText sql.NullString
		utterancesRaw  sql.NullString
		errorMessage   sql.NullString
		retryable      int
		failedStage    sql.NullString
		speakerIndex   sql.NullInt64
		isMaster       int
	)
	if err := scanner.Scan(
		&id,
		&sessionID,
		&position,
		&name,
		&path,
		&sizeBytes,
		&duration,
		&stateStr,
		&stepLabel,
		&progress,
		&updatedRaw,
		&remoteURL,
		&transcriptID,
		&transcriptPath,
		&transcriptText,
		&utterancesRaw,
		&errorMessage,
		&retryable,
		&failedStage,
		&speakerIndex,
		&isMaster,
	); err != nil {
		return nil, "", err
	}

	f := &session.AudioFile{
		ID:              id,
		Name:            name,
		Path:            path,
		SizeBytes:       sizeBytes,
		DurationSeconds: duration.Float64,
		State:           session.FileProcessingState(stateStr),
		StepLabel:       stepLabel.String,
		Progress:        progress,
		RemoteURL:       remoteURL.String,
		TranscriptID:    transcriptID.String,
		TranscriptPath:  transcriptPath.String,
		TranscriptText:  transcriptText.String,
		ErrorMessage:    errorMessage.String,
		Retryable:       retryable != 0,
		FailedStage:     session.FileProcessingState(failedStage.String),
		IsMaster:        isMaster != 0,
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		f.UpdatedAt = updated
	}
	if speakerIndex.Valid {
		idx := int(speakerIndex.Int64)
		f.SpeakerIndex = &idx
	}
	if utterancesRaw.String != "" {
		if err := json.Unmarshal([]byte(utterancesRaw.String), &f.Utterances); err != nil {
			return nil, "", fmt.Errorf("decode utterances for %s: %w", id, err)
		}
	}
	return f, sessionID, nil
}

func sessionArgs(s *session.Session) ([]any, error) {
	participants := make(map[string]string, len(s.Participants))
	for idx, name := range s.Participants {
		participants[strconv.Itoa(idx)] = name
	}
	participantsJSON, err := marshalNullable(participants, len(participants) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode participants: %w", err)
	}
	highlightsJSON, err := marshalNullable(s.Highlights, s.Highlights == nil)
	if err != nil {
		return nil, fmt.Errorf("encode highlights: %w", err)
	}
	statsJSON, err := marshalNullable(s.Stats, s.Stats == nil)
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	var recordingDate any
	if !s.RecordingDate.IsZero() {
		recordingDate = s.RecordingDate.Format(time.DateOnly)
	}
	return []any{
		s.ID,
		s.FolderPath,
		nullableString(s.SubjectTitle),
		recordingDate,
		participantsJSON,
		string(s.State),
		nullableString(s.ErrorMessage),
		nullableString(s.ProgressMessage),
		s.ProgressPercent,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
		nullableTime(s.ProcessedAt),
		nullableTime(s.LastHeartbeat),
		highlightsJSON,
		statsJSON,
	}, nil
}

func fileArgs(sessionID string, position int, f *session.AudioFile) ([]any, error) {
	utterancesJSON, err := marshalNullable(f.Utterances, len(f.Utterances) == 0)
	if err != nil {
		return nil, fmt.Errorf("encode utterances: %w", err)
	}
	var speakerIndex any
	if f.SpeakerIndex != nil {
		speakerIndex = *f.SpeakerIndex
	}
	var duration any
	if f.DurationSeconds > 0 {
		duration = f.DurationSeconds
	}
	return []any{
		f.ID,
		sessionID,
		position,
		f.Name,
		f.Path,
		f.SizeBytes,
		duration,
		string(f.State),
		nullableString(f.StepLabel),
		f.Progress,
		formatTime(f.UpdatedAt),
		nullableString(f.RemoteURL),
		nullableString(f.TranscriptID),
		nullableString(f.TranscriptPath),
		nullableString(f.TranscriptText),
		utterancesJSON,
		nullableString(f.ErrorMessage),
		boolToInt(f.Retryable),
		nullableString(string(f.FailedStage)),
		speakerIndex,
		boolToInt(f.IsMaster),
	}, nil
}

func marshalNullable(value any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		value = time.Now()
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse(time.DateTime, value)
}

func makePlaceholders(count int) string {
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
