package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateRequiresTranscriptionKey(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("ASSEMBLYAI_API_KEY", "")
	env.cfg.Transcription.APIKey = ""
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err == nil {
		t.Fatal("expected missing key error")
	}
	requireContains(t, out, "api key missing")
}

func TestLogsFiltersBySession(t *testing.T) {
	env := setupCLITestEnv(t)
	content := `{"ts":"2024-05-06T20:00:00Z","level":"info","msg":"session started","session_id":"abc"}
{"ts":"2024-05-06T20:00:01Z","level":"info","msg":"other work","session_id":"xyz"}
`
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, daemonLogName), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--session", "abc"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "session started")
	if strings.Contains(out, "other work") {
		t.Fatalf("expected other sessions filtered out, got %q", out)
	}

	if _, _, err := runCLI(t, []string{"logs", "--level", "loud"}, env.configPath); err == nil {
		t.Fatal("expected invalid level error")
	}
}
