package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	RosterPath string `toml:"roster_path"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Transcription contains configuration for the remote transcription provider.
type Transcription struct {
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	LanguageCode        string `toml:"language_code"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// LLM contains the chat-completion settings used for session analysis.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TMDB contains configuration for The Movie Database API. An empty key
// disables subject enrichment.
type TMDB struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// Conversion contains the ffmpeg settings used to normalize source audio.
type Conversion struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	Bitrate       string `toml:"bitrate"`
	SampleRate    int    `toml:"sample_rate"`
	DeleteSource  bool   `toml:"delete_source"`
}

// Workflow contains configuration for orchestration timing.
type Workflow struct {
	BarrierPollIntervalSeconds int `toml:"barrier_poll_interval_seconds"`
	SessionPollIntervalSeconds int `toml:"session_poll_interval_seconds"`
	HeartbeatIntervalSeconds   int `toml:"heartbeat_interval_seconds"`
	StuckThresholdMinutes      int `toml:"stuck_threshold_minutes"`
	MaintenanceIntervalMinutes int `toml:"maintenance_interval_minutes"`
	MaxConcurrentFiles         int `toml:"max_concurrent_files"`
	ErrorRetryIntervalSeconds  int `toml:"error_retry_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	SessionComplete bool   `toml:"session_complete"`
	SessionFailed   bool   `toml:"session_failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for Roundtable.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, roster file, API bind address
//   - Transcription: remote transcription provider
//   - LLM: chat-completion provider used for highlight analysis
//   - TMDB: optional movie metadata for the discussion subject
//   - Conversion: ffmpeg normalization of source recordings
//   - Workflow: barrier polling, stuck thresholds, daemon intervals
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	TMDB          TMDB          `toml:"tmdb"`
	Conversion    Conversion    `toml:"conversion"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("roundtable.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "sessions.db")
}

// FFmpegBinary returns the ffmpeg executable used for conversion.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Conversion.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable used for duration probes.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Conversion.FFprobeBinary); bin != "" {
		return bin
	}
	return defaultFFprobeBinary
}

// BarrierPollInterval returns the interval between barrier evaluations.
func (c *Config) BarrierPollInterval() time.Duration {
	return secondsOr(c.Workflow.BarrierPollIntervalSeconds, defaultBarrierPollIntervalSeconds)
}

// TranscriptPollInterval returns the interval between transcription status polls.
func (c *Config) TranscriptPollInterval() time.Duration {
	return secondsOr(c.Transcription.PollIntervalSeconds, defaultTranscriptPollIntervalSeconds)
}

// StuckThreshold returns the age after which a non-terminal session is considered stuck.
func (c *Config) StuckThreshold() time.Duration {
	minutes := c.Workflow.StuckThresholdMinutes
	if minutes <= 0 {
		minutes = defaultStuckThresholdMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// MaintenanceInterval returns how often the daemon runs the stuck-session scan.
func (c *Config) MaintenanceInterval() time.Duration {
	minutes := c.Workflow.MaintenanceIntervalMinutes
	if minutes <= 0 {
		minutes = defaultMaintenanceIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// SessionPollInterval returns how often the daemon looks for pending sessions.
func (c *Config) SessionPollInterval() time.Duration {
	return secondsOr(c.Workflow.SessionPollIntervalSeconds, defaultSessionPollIntervalSeconds)
}

// HeartbeatInterval returns how often a running session's heartbeat is stamped.
func (c *Config) HeartbeatInterval() time.Duration {
	return secondsOr(c.Workflow.HeartbeatIntervalSeconds, defaultHeartbeatIntervalSeconds)
}

// ErrorRetryInterval returns the delay after a store error in the daemon loop.
func (c *Config) ErrorRetryInterval() time.Duration {
	return secondsOr(c.Workflow.ErrorRetryIntervalSeconds, defaultErrorRetryIntervalSeconds)
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
