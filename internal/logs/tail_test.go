package logs_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"roundtable/internal/logs"
)

const sampleLog = `{"ts":"2024-05-06T20:00:00Z","level":"info","msg":"session started","component":"workflow","session_id":"a"}
{"ts":"2024-05-06T20:00:01Z","level":"warn","msg":"upload retry","component":"transcription","session_id":"b","attempt":2}
plain text line
{"ts":"2024-05-06T20:00:02Z","level":"error","msg":"merge failed","component":"pipeline","session_id":"a"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roundtabled.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastReturnsNewestEntries(t *testing.T) {
	path := writeLog(t, sampleLog)

	entries, offset, err := logs.Last(path, 2, logs.Filter{MinLevel: slog.LevelDebug})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "plain text line" || entries[1].Message != "merge failed" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if offset != int64(len(sampleLog)) {
		t.Fatalf("expected offset %d, got %d", len(sampleLog), offset)
	}
}

func TestLastFiltersBySessionAndLevel(t *testing.T) {
	path := writeLog(t, sampleLog)

	entries, _, err := logs.Last(path, 10, logs.Filter{SessionID: "a"})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for session a, got %d", len(entries))
	}

	entries, _, err = logs.Last(path, 10, logs.Filter{MinLevel: slog.LevelWarn})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(entries) != 2 || entries[0].Attrs["attempt"] != float64(2) {
		t.Fatalf("unexpected warn entries %+v", entries)
	}
}

func TestLastMissingFile(t *testing.T) {
	entries, offset, err := logs.Last(filepath.Join(t.TempDir(), "missing.log"), 5, logs.Filter{})
	if err != nil || entries != nil || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", entries, offset, err)
	}
}

func TestEntryFormat(t *testing.T) {
	entry := logs.ParseEntry(`{"ts":"2024-05-06T20:00:01Z","level":"warn","msg":"upload retry","component":"transcription","session_id":"b","attempt":2}`)
	line := entry.Format()
	for _, want := range []string{"WARN", "transcription: upload retry", "session_id=b", "attempt=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if raw := logs.ParseEntry("not json").Format(); raw != "not json" {
		t.Fatalf("expected raw passthrough, got %q", raw)
	}
}

func TestFollowPicksUpAppendedLines(t *testing.T) {
	path := writeLog(t, sampleLog)
	_, offset, err := logs.Last(path, 0, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, logs.Filter{SessionID: "c"}, 20*time.Millisecond, func(e logs.Entry) {
			mu.Lock()
			got = append(got, e.Message)
			mu.Unlock()
			cancel()
		})
	}()

	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	_, _ = f.WriteString(`{"level":"info","msg":"ignored","session_id":"a"}` + "\n")
	_, _ = f.WriteString(`{"level":"info","msg":"later","session_id":"c"}` + "\n")
	_ = f.Close()

	<-done
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "later" {
		t.Fatalf("unexpected followed entries %v", got)
	}
}
