package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var bitratePattern = regexp.MustCompile(`^[0-9]+k$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireTranscription reports a descriptive error when no provider key is configured.
// Commands that only read the session store do not need one.
func (c *Config) RequireTranscription() error {
	if strings.TrimSpace(c.Transcription.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("transcription.api_key is required. Set ASSEMBLYAI_API_KEY env var or edit %s (create with 'roundtable config init')", defaultPath)
}

func (c *Config) validateTranscription() error {
	if !strings.HasPrefix(c.Transcription.BaseURL, "http://") && !strings.HasPrefix(c.Transcription.BaseURL, "https://") {
		return fmt.Errorf("transcription.base_url must be an http(s) URL, got %q", c.Transcription.BaseURL)
	}
	if c.Transcription.PollIntervalSeconds < 0 {
		return errors.New("transcription.poll_interval_seconds must be non-negative")
	}
	if c.Transcription.TimeoutSeconds < 0 {
		return errors.New("transcription.timeout_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must be non-negative")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if !bitratePattern.MatchString(c.Conversion.Bitrate) {
		return fmt.Errorf("conversion.bitrate must look like 128k, got %q", c.Conversion.Bitrate)
	}
	if c.Conversion.SampleRate < 8000 || c.Conversion.SampleRate > 192000 {
		return fmt.Errorf("conversion.sample_rate must be between 8000 and 192000, got %d", c.Conversion.SampleRate)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.BarrierPollIntervalSeconds <= 0 {
		return errors.New("workflow.barrier_poll_interval_seconds must be positive")
	}
	if c.Workflow.SessionPollIntervalSeconds <= 0 {
		return errors.New("workflow.session_poll_interval_seconds must be positive")
	}
	if c.Workflow.HeartbeatIntervalSeconds <= 0 {
		return errors.New("workflow.heartbeat_interval_seconds must be positive")
	}
	if c.Workflow.StuckThresholdMinutes <= 0 {
		return errors.New("workflow.stuck_threshold_minutes must be positive")
	}
	if c.Workflow.MaintenanceIntervalMinutes < 0 {
		return errors.New("workflow.maintenance_interval_minutes must be non-negative")
	}
	if c.Workflow.MaxConcurrentFiles < 0 {
		return errors.New("workflow.max_concurrent_files must be non-negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	for stage, level := range c.Logging.StageOverrides {
		if !validLevel(level) {
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
