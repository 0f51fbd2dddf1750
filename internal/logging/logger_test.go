package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roundtable/internal/config"
)

func TestPrettyHandlerFormatsSubject(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Info("stage completed",
		slog.String(FieldComponent, "orchestrator"),
		slog.String(FieldSessionID, "0123456789abcdef"),
		slog.String(FieldFileName, "mic-1.wav"),
		slog.String(FieldStage, "converting"),
		slog.String("note", "two words"),
	)

	line := buf.String()
	for _, want := range []string{
		"INFO orchestrator: Session 01234567 · mic-1.wav (converting) · stage completed",
		`note="two words"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "session_id=") {
		t.Fatalf("subject fields should not repeat as key/values: %q", line)
	}
}

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "debug"

	logger, err := NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Debug("barrier released", slog.String(FieldEventType, "barrier_released"))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "roundtable.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"event_type":"barrier_released"`)) {
		t.Fatalf("expected JSON record in log file, got %s", data)
	}
	if !bytes.Contains(data, []byte(`"level":"debug"`)) {
		t.Fatalf("expected lowercase level, got %s", data)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestForStageRaisesLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: lvl}))

	quiet := ForStage(base, "Uploading", map[string]string{"uploading": "warn"})
	quiet.Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be suppressed, got %s", buf.String())
	}
	quiet.With(slog.String("k", "v")).Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn to pass, got %s", buf.String())
	}

	if same := ForStage(base, "converting", nil); same != base {
		t.Fatal("expected base logger when no override applies")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "analysis unavailable", "analysis_fallback", String(FieldImpact, "no highlights"))

	out := buf.String()
	for _, want := range []string{`"event_type":"analysis_fallback"`, `"error_hint":`, `"impact":"no highlights"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestFormatSubject(t *testing.T) {
	cases := []struct {
		session, file, stage string
		want                 string
	}{
		{"", "", "", ""},
		{"abc", "", "", "Session abc"},
		{"abcdefghij", "", "merge", "Session abcdefgh · merge"},
		{"s", "a.wav", "", "Session s · a.wav"},
		{"", "master.flac", "uploading", "master.flac (uploading)"},
	}
	for _, tc := range cases {
		if got := FormatSubject(tc.session, tc.file, tc.stage); got != tc.want {
			t.Fatalf("FormatSubject(%q, %q, %q) = %q, want %q", tc.session, tc.file, tc.stage, got, tc.want)
		}
	}
}
