package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"roundtable/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory with fake
// provider keys and a one-second barrier poll.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.RosterPath = filepath.Join(base, "roster.toml")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Transcription.APIKey = "test-transcription"
	cfgVal.LLM.APIKey = ""
	cfgVal.TMDB.APIKey = ""
	cfgVal.Workflow.BarrierPollIntervalSeconds = 1

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithLLMKey enables the analysis provider on the test config.
func WithLLMKey(key, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = key
		b.cfg.LLM.BaseURL = baseURL
	}
}

// WithTranscriptionURL points the transcription client at a test server.
func WithTranscriptionURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.BaseURL = baseURL
	}
}

// WithStubbedBinaries writes stub executables for names (default ffmpeg and
// ffprobe) and prepends their directory to PATH for the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the temp directory backing cfg.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
