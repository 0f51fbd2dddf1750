package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"roundtable/internal/services/ffmpeg"
)

type stubExecutor struct {
	stdout []string
	stderr []string
	err    error
	write  bool
	args   []string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string), onStderr func(string)) error {
	s.args = append([]string(nil), args...)
	for _, line := range s.stdout {
		onStdout(line)
	}
	for _, line := range s.stderr {
		onStderr(line)
	}
	if s.write {
		if err := os.WriteFile(args[len(args)-1], []byte("ID3"), 0o644); err != nil {
			return err
		}
	}
	return s.err
}

func TestConvertReportsProgressAndRenames(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "mic1.wav")
	target := filepath.Join(dir, "mic1.mp3")
	if err := os.WriteFile(source, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	exec := &stubExecutor{
		write:  true,
		stdout: []string{"out_time_us=2500000", "progress=continue", "out_time_ms=7000000", "progress=end"},
	}
	client, err := ffmpeg.New("ffmpeg", "96k", 22050,
		ffmpeg.WithExecutor(exec),
		ffmpeg.WithDurationLookup(func(context.Context, string) (float64, error) { return 5, nil }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var seen []int64
	if err := client.Convert(context.Background(), source, target, func(step string, current, total int64) {
		if total != 5000 {
			t.Fatalf("total = %d, want 5000", total)
		}
		seen = append(seen, current)
	}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if want := []int64{0, 2500, 5000, 5000}; !slices.Equal(seen, want) {
		t.Fatalf("progress = %v, want %v", seen, want)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected target to exist: %v", err)
	}
	if _, err := os.Stat(target + ".part"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected partial file to be gone, got %v", err)
	}
	joined := strings.Join(exec.args, " ")
	for _, want := range []string{"-b:a 96k", "-ar 22050", "-progress pipe:1", "-i " + source} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args %q", want, joined)
		}
	}
}

func TestConvertIncludesStderrOnFailure(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(source, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	exec := &stubExecutor{err: errors.New("exit status 1"), stderr: []string{"Invalid data found when processing input"}}
	client, err := ffmpeg.New("ffmpeg", "", 0, ffmpeg.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = client.Convert(context.Background(), source, filepath.Join(dir, "a.mp3"), nil)
	if err == nil || !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected stderr detail in error, got %v", err)
	}
}

func TestConvertRequiresOutput(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(source, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	client, err := ffmpeg.New("ffmpeg", "", 0, ffmpeg.WithExecutor(&stubExecutor{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Convert(context.Background(), source, filepath.Join(dir, "a.mp3"), nil); err == nil {
		t.Fatal("expected error when ffmpeg writes nothing")
	}
	if err := client.Convert(context.Background(), filepath.Join(dir, "missing.wav"), filepath.Join(dir, "b.mp3"), nil); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := ffmpeg.New(" ", "", 0); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
