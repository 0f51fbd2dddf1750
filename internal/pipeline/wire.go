package pipeline

import (
	"fmt"
	"log/slog"

	"roundtable/internal/analysis"
	"roundtable/internal/config"
	"roundtable/internal/logging"
	"roundtable/internal/media"
	"roundtable/internal/services/ffmpeg"
	"roundtable/internal/services/llm"
	"roundtable/internal/services/tmdb"
	"roundtable/internal/services/transcription"
)

// NewFromConfig wires the production collaborators described by cfg.
// Analysis falls back when no LLM key is configured; movie enrichment is
// skipped without a TMDB key.
func NewFromConfig(cfg *config.Config, st Store, participants ParticipantSource, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	overrides := cfg.Logging.StageOverrides
	orchLogger := logging.ForStage(logging.NewComponentLogger(logger, "orchestrator"), "orchestrator", overrides)

	if err := cfg.RequireTranscription(); err != nil {
		return nil, err
	}

	durations := media.NewDurationReader(cfg.FFprobeBinary())
	converter, err := ffmpeg.New(cfg.FFmpegBinary(), cfg.Conversion.Bitrate, cfg.Conversion.SampleRate,
		ffmpeg.WithDurationLookup(durations.Duration))
	if err != nil {
		return nil, fmt.Errorf("configure converter: %w", err)
	}

	transcriber := NewTranscriber(cfg, logger)

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	analysisLogger := logging.ForStage(logging.NewComponentLogger(logger, "analysis"), "analysis", overrides)
	var analysisOpts []analysis.Option
	if cfg.TMDB.APIKey != "" {
		movies, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language)
		if err != nil {
			return nil, fmt.Errorf("configure tmdb: %w", err)
		}
		analysisOpts = append(analysisOpts, analysis.WithMovieLookup(movies))
	}
	analyzer := analysis.NewService(analysis.NewLLMProvider(client), analysisLogger, analysisOpts...)

	return New(Dependencies{
		Store:       st,
		Converter:   converter,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Roster:      participants,
		Durations:   durations,
	},
		WithLogger(orchLogger),
		WithBarrierInterval(cfg.BarrierPollInterval()),
		WithMaxConcurrentFiles(cfg.Workflow.MaxConcurrentFiles),
		WithDeleteSource(cfg.Conversion.DeleteSource),
	)
}

// NewTranscriber builds the transcription client described by cfg. The
// maintenance service shares it to re-download finished jobs.
func NewTranscriber(cfg *config.Config, logger *slog.Logger) *transcription.Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return transcription.New(transcription.Config{
		APIKey:         cfg.Transcription.APIKey,
		BaseURL:        cfg.Transcription.BaseURL,
		LanguageCode:   cfg.Transcription.LanguageCode,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	},
		transcription.WithPollInterval(cfg.TranscriptPollInterval()),
		transcription.WithLogger(logging.ForStage(logging.NewComponentLogger(logger, "transcription"), "transcription", cfg.Logging.StageOverrides)),
	)
}
