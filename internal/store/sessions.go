package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"roundtable/internal/session"
)

const sessionColumnCount = 15

var upsertSessionSQL = `INSERT INTO sessions (` + sessionColumns + `) VALUES (` + makePlaceholders(sessionColumnCount) + `)
ON CONFLICT(id) DO UPDATE SET
    folder_path = excluded.folder_path,
    subject_title = excluded.subject_title,
    recording_date = excluded.recording_date,
    participants_json = excluded.participants_json,
    state = excluded.state,
    error_message = excluded.error_message,
    progress_message = excluded.progress_message,
    progress_percent = excluded.progress_percent,
    updated_at = excluded.updated_at,
    processed_at = excluded.processed_at,
    last_heartbeat = CASE
        WHEN excluded.state IN ('complete', 'failed', 'pending') THEN NULL
        ELSE sessions.last_heartbeat
    END,
    highlights_json = excluded.highlights_json,
    stats_json = excluded.stats_json`

// Insert stores a new session and its files. It fails with ErrExists when the id is taken.
func (s *Store) Insert(ctx context.Context, sess *session.Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return errors.New("insert session: id is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE id = ?", sess.ID).Scan(&count); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("insert session %s: %w", sess.ID, ErrExists)
		}
		return writeSession(ctx, tx, sess)
	})
}

// Upsert writes the session row and replaces its file set atomically.
// The stored heartbeat belongs to UpdateHeartbeat and ClearHeartbeat: an
// upsert keeps it, except that terminal and pending sessions lose it.
func (s *Store) Upsert(ctx context.Context, sess *session.Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return errors.New("upsert session: id is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return writeSession(ctx, tx, sess)
	})
}

func writeSession(ctx context.Context, tx *sql.Tx, sess *session.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertSessionSQL, args...); err != nil {
		return fmt.Errorf("write session %s: %w", sess.ID, err)
	}

	keep := make([]any, 0, len(sess.Files)+1)
	keep = append(keep, sess.ID)
	for position, f := range sess.Files {
		if err := writeFile(ctx, tx, sess.ID, position, f); err != nil {
			return err
		}
		keep = append(keep, f.ID)
	}
	query := "DELETE FROM audio_files WHERE session_id = ?"
	if len(keep) > 1 {
		query += " AND id NOT IN (" + makePlaceholders(len(keep)-1) + ")"
	}
	if _, err := tx.ExecContext(ctx, query, keep...); err != nil {
		return fmt.Errorf("prune files for %s: %w", sess.ID, err)
	}
	return nil
}

// Get loads a session with its files in stored order.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	files, err := s.filesFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	sess.Files = files[id]
	return sess, nil
}

// GetAll lists sessions, newest first, optionally filtered to states.
func (s *Store) GetAll(ctx context.Context, states ...session.SessionProcessingState) ([]*session.Session, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + sessionColumns + " FROM sessions"
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += " WHERE state IN (" + makePlaceholders(len(states)) + ")"
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var (
		out []*session.Session
		ids []string
	)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
		ids = append(ids, sess.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	files, err := s.filesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, sess := range out {
		sess.Files = files[sess.ID]
	}
	return out, nil
}

// FindByFolder returns the most recent session recorded for folder.
func (s *Store) FindByFolder(ctx context.Context, folder string) (*session.Session, error) {
	ctx = ensureContext(ctx)
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM sessions WHERE folder_path = ? ORDER BY created_at DESC LIMIT 1", folder,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session for %s: %w", folder, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session by folder: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a session and, through the cascade, its files.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateHeartbeat stamps the session's last heartbeat with the current time.
// Terminal sessions are left unstamped.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		"UPDATE sessions SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND state NOT IN ('complete', 'failed')",
		now, now, id)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM sessions WHERE id = ?", id).Scan(&count); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) filesFor(ctx context.Context, sessionIDs []string) (map[string][]*session.AudioFile, error) {
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM audio_files WHERE session_id IN ("+makePlaceholders(len(args))+") ORDER BY session_id, position",
		args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*session.AudioFile, len(sessionIDs))
	for rows.Next() {
		f, sessionID, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out[sessionID] = append(out[sessionID], f)
	}
	return out, rows.Err()
}

// ClearHeartbeat drops the session's heartbeat so no process appears to own it.
func (s *Store) ClearHeartbeat(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, "UPDATE sessions SET last_heartbeat = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clear heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}
