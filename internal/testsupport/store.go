package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"roundtable/internal/config"
	"roundtable/internal/session"
	"roundtable/internal/store"
)

// MustOpenStore opens a store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// NewSession builds a session over a fresh folder containing the named
// recordings (each a few bytes) and inserts it when st is non-nil.
func NewSession(t testing.TB, st *store.Store, names ...string) *session.Session {
	t.Helper()

	folder := t.TempDir()
	for i, name := range names {
		WriteFile(t, filepath.Join(folder, name), int64(64*(i+1)))
	}
	sess, err := session.FromFolder(folder, session.IngestOptions{SubjectTitle: "Test Session"})
	if err != nil {
		t.Fatalf("session.FromFolder: %v", err)
	}
	if st != nil {
		if err := st.Insert(context.Background(), sess); err != nil {
			t.Fatalf("store.Insert: %v", err)
		}
	}
	return sess
}
