package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, including parent directories, holding size filler
// bytes. Sizes below one write a single byte so the file is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(max(size, 1))), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteRecordings creates each named recording in dir with distinct sizes,
// the first being the largest, and returns dir.
func WriteRecordings(t testing.TB, dir string, names ...string) string {
	t.Helper()

	for i, name := range names {
		WriteFile(t, filepath.Join(dir, name), int64(64*(len(names)-i)))
	}
	return dir
}
