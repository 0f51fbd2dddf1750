package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"roundtable/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "transcribe-key")
	t.Setenv("OPENROUTER_API_KEY", "llm-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "roundtable")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "sessions.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Transcription.APIKey != "transcribe-key" {
		t.Fatalf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.LLM.APIKey != "llm-key" {
		t.Fatalf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.BarrierPollInterval() != 2*time.Second {
		t.Fatalf("expected 2s barrier poll, got %s", cfg.BarrierPollInterval())
	}
	if cfg.StuckThreshold() != 30*time.Minute {
		t.Fatalf("expected 30m stuck threshold, got %s", cfg.StuckThreshold())
	}
	if !cfg.Conversion.DeleteSource {
		t.Fatal("expected source deletion enabled by default")
	}
	if err := cfg.RequireTranscription(); err != nil {
		t.Fatalf("RequireTranscription: %v", err)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("ASSEMBLYAI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": "~/sessions",
		},
		"workflow": map[string]any{
			"barrier_poll_interval_seconds": 7,
			"stuck_threshold_minutes":       45,
			"session_poll_interval_seconds": 3,
			"heartbeat_interval_seconds":    5,
		},
		"logging": map[string]any{
			"format": "JSON",
			"stage_overrides": map[string]any{
				"Orchestrator": "DEBUG",
			},
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "sessions") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.BarrierPollInterval() != 7*time.Second {
		t.Fatalf("unexpected barrier interval: %s", cfg.BarrierPollInterval())
	}
	if cfg.StuckThreshold() != 45*time.Minute {
		t.Fatalf("unexpected stuck threshold: %s", cfg.StuckThreshold())
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
	if got := cfg.Logging.StageOverrides["orchestrator"]; got != "debug" {
		t.Fatalf("expected normalized stage override, got %q", got)
	}
	if err := cfg.RequireTranscription(); err == nil {
		t.Fatal("expected missing transcription key to be reported")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"barrier interval", func(c *config.Config) { c.Workflow.BarrierPollIntervalSeconds = 0 }, "barrier_poll_interval_seconds"},
		{"bitrate", func(c *config.Config) { c.Conversion.Bitrate = "fast" }, "conversion.bitrate"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "roundtable" }, "ntfy_topic"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"transcription url", func(c *config.Config) { c.Transcription.BaseURL = "ftp://example" }, "transcription.base_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestCreateSampleWritesLoadableConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Workflow.BarrierPollIntervalSeconds != 2 {
		t.Fatalf("unexpected barrier interval in sample: %d", cfg.Workflow.BarrierPollIntervalSeconds)
	}
}
