package config

const (
	defaultConfigPath                    = "~/.config/roundtable/config.toml"
	defaultDataDir                       = "~/.local/share/roundtable"
	defaultLogDir                        = "~/.local/share/roundtable/logs"
	defaultRosterPath                    = "~/.config/roundtable/roster.toml"
	defaultAPIBind                       = "127.0.0.1:7491"
	defaultTranscriptionBaseURL          = "https://api.assemblyai.com/v2"
	defaultTranscriptionLanguage         = "en"
	defaultTranscriptPollIntervalSeconds = 5
	defaultTranscriptionTimeoutSeconds   = 120
	defaultLLMBaseURL                    = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                      = "google/gemini-3-flash-preview"
	defaultLLMReferer                    = "https://github.com/roundtable/roundtable"
	defaultLLMTitle                      = "Roundtable Session Analysis"
	defaultLLMTimeoutSeconds             = 120
	defaultTMDBBaseURL                   = "https://api.themoviedb.org/3"
	defaultTMDBLanguage                  = "en-US"
	defaultFFmpegBinary                  = "ffmpeg"
	defaultFFprobeBinary                 = "ffprobe"
	defaultConversionBitrate             = "128k"
	defaultConversionSampleRate          = 44100
	defaultBarrierPollIntervalSeconds    = 2
	defaultSessionPollIntervalSeconds    = 10
	defaultHeartbeatIntervalSeconds      = 15
	defaultStuckThresholdMinutes         = 30
	defaultMaintenanceIntervalMinutes    = 15
	defaultMaxConcurrentFiles            = 0
	defaultErrorRetryIntervalSeconds     = 10
	defaultNotifyRequestTimeout          = 10
	defaultLogFormat                     = "console"
	defaultLogLevel                      = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			RosterPath: defaultRosterPath,
			APIBind:    defaultAPIBind,
		},
		Transcription: Transcription{
			BaseURL:             defaultTranscriptionBaseURL,
			LanguageCode:        defaultTranscriptionLanguage,
			PollIntervalSeconds: defaultTranscriptPollIntervalSeconds,
			TimeoutSeconds:      defaultTranscriptionTimeoutSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TMDB: TMDB{
			BaseURL:  defaultTMDBBaseURL,
			Language: defaultTMDBLanguage,
		},
		Conversion: Conversion{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			Bitrate:       defaultConversionBitrate,
			SampleRate:    defaultConversionSampleRate,
			DeleteSource:  true,
		},
		Workflow: Workflow{
			BarrierPollIntervalSeconds: defaultBarrierPollIntervalSeconds,
			SessionPollIntervalSeconds: defaultSessionPollIntervalSeconds,
			HeartbeatIntervalSeconds:   defaultHeartbeatIntervalSeconds,
			StuckThresholdMinutes:      defaultStuckThresholdMinutes,
			MaintenanceIntervalMinutes: defaultMaintenanceIntervalMinutes,
			MaxConcurrentFiles:         defaultMaxConcurrentFiles,
			ErrorRetryIntervalSeconds:  defaultErrorRetryIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyRequestTimeout,
			SessionComplete: true,
			SessionFailed:   true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
