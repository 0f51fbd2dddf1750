package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"roundtable/internal/session"
)

const fileColumnCount = 21

var upsertFileSQL = `INSERT INTO audio_files (` + fileColumns + `) VALUES (` + makePlaceholders(fileColumnCount) + `)
ON CONFLICT(id) DO UPDATE SET
    position = excluded.position,
    name = excluded.name,
    path = excluded.path,
    size_bytes = excluded.size_bytes,
    duration_seconds = excluded.duration_seconds,
    state = excluded.state,
    step_label = excluded.step_label,
    progress = excluded.progress,
    updated_at = excluded.updated_at,
    remote_url = excluded.remote_url,
    transcript_id = excluded.transcript_id,
    transcript_path = excluded.transcript_path,
    transcript_text = excluded.transcript_text,
    utterances_json = excluded.utterances_json,
    error_message = excluded.error_message,
    retryable = excluded.retryable,
    failed_stage = excluded.failed_stage,
    speaker_index = excluded.speaker_index,
    is_master = excluded.is_master
WHERE audio_files.session_id = excluded.session_id`

func writeFile(ctx context.Context, tx *sql.Tx, sessionID string, position int, f *session.AudioFile) error {
	args, err := fileArgs(sessionID, position, f)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertFileSQL, args...); err != nil {
		return fmt.Errorf("write file %s: %w", f.Name, err)
	}
	return nil
}

// GetFile loads a single audio file and the id of its session.
func (s *Store) GetFile(ctx context.Context, id string) (*session.AudioFile, string, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM audio_files WHERE id = ?", id)
	f, sessionID, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("get file %s: %w", id, err)
	}
	return f, sessionID, nil
}

// UpsertFile writes one file of an existing session, keeping its position
// when already stored and appending it otherwise.
func (s *Store) UpsertFile(ctx context.Context, sessionID string, f *session.AudioFile) error {
	if f == nil || f.ID == "" {
		return errors.New("upsert file: id is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE id = ?", sessionID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		var position int
		err := tx.QueryRowContext(ctx, "SELECT position FROM audio_files WHERE id = ? AND session_id = ?", f.ID, sessionID).Scan(&position)
		if errors.Is(err, sql.ErrNoRows) {
			if err := tx.QueryRowContext(ctx,
				"SELECT COALESCE(MAX(position) + 1, 0) FROM audio_files WHERE session_id = ?", sessionID,
			).Scan(&position); err != nil {
				return fmt.Errorf("next file position: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lookup file position: %w", err)
		}
		return writeFile(ctx, tx, sessionID, position, f)
	})
}

// DeleteFile removes one audio file record.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM audio_files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	return nil
}
