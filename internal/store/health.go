package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"roundtable/internal/session"
)

// HealthSummary aggregates session counts by lifecycle group.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Complete   int
}

// DatabaseHealth captures diagnostic information about the database file.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalSessions    int
	TotalFiles       int
	Error            string
}

var expectedColumns = map[string][]string{
	"sessions":    strings.Split(sessionColumns, ", "),
	"audio_files": strings.Split(fileColumns, ", "),
}

// Stats counts sessions by state.
func (s *Store) Stats(ctx context.Context) (map[session.SessionProcessingState]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT state, COUNT(1) FROM sessions GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[session.SessionProcessingState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[session.SessionProcessingState(state)] = count
	}
	return stats, rows.Err()
}

// Health groups Stats into pending, processing, failed and complete.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for state, count := range stats {
		health.Total += count
		switch {
		case state == session.SessionPending:
			health.Pending += count
		case state == session.SessionFailed:
			health.Failed += count
		case state == session.SessionComplete:
			health.Complete += count
		case state.IsActive():
			health.Processing += count
		}
	}
	return health, nil
}

// CheckHealth inspects the database file, schema and integrity.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return health, nil
	}
	if err != nil {
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	fail := func(op string, err error) (DatabaseHealth, error) {
		health.Error = err.Error()
		return health, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.db.PingContext(connCtx); err != nil {
		return fail("ping database", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		return fail("read schema version", err)
	}

	tables := make([]string, 0, len(expectedColumns))
	for table := range expectedColumns {
		tables = append(tables, table)
	}
	slices.Sort(tables)
	for _, table := range tables {
		columns, err := s.tableColumns(connCtx, table)
		if err != nil {
			return fail("table info", err)
		}
		if len(columns) == 0 {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		for _, col := range expectedColumns[table] {
			if !slices.Contains(columns, col) {
				health.MissingColumns = append(health.MissingColumns, table+"."+col)
			}
		}
	}

	if len(health.MissingTables) == 0 {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM sessions").Scan(&health.TotalSessions); err != nil {
			return fail("count sessions", err)
		}
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM audio_files").Scan(&health.TotalFiles); err != nil {
			return fail("count files", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fail("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
