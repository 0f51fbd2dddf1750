package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"roundtable/internal/logging"
	"roundtable/internal/services/tmdb"
	"roundtable/internal/session"
)

// Unavailable labels every fallback entry.
const Unavailable = "analysis unavailable"

// Metadata describes the session for the provider prompt.
type Metadata struct {
	Title         string
	RecordingDate time.Time
	Participants  []string
	MovieYear     int
	MovieOverview string
}

// Input is the merged transcript handed to analysis.
type Input struct {
	Transcript string
	Utterances []session.Utterance
	Metadata   Metadata
}

// Provider performs the remote analysis call.
type Provider interface {
	Analyze(ctx context.Context, transcript string, meta Metadata) (*session.CategorizedHighlights, error)
}

// MovieLookup resolves the discussed film.
type MovieLookup interface {
	Lookup(ctx context.Context, title string, year int) (tmdb.Result, error)
}

// Outcome reports what Analyze produced.
type Outcome struct {
	Highlights *session.CategorizedHighlights
	Fallback   bool
	Reason     string
}

// Service wraps an optional provider with the fallback policy.
type Service struct {
	provider Provider
	movies   MovieLookup
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMovieLookup enables film metadata enrichment.
func WithMovieLookup(lookup MovieLookup) Option {
	return func(s *Service) {
		s.movies = lookup
	}
}

// NewService builds the analysis service. A nil provider always falls back.
func NewService(provider Provider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	svc := &Service{provider: provider, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Analyze returns provider highlights, or the fallback when they cannot be had.
func (s *Service) Analyze(ctx context.Context, in Input) Outcome {
	logger := logging.WithContext(ctx, s.logger)
	meta := s.enrich(ctx, in.Metadata)

	if s.provider == nil {
		return fallbackOutcome(in, "no analysis provider configured")
	}
	highlights, err := s.provider.Analyze(ctx, in.Transcript, meta)
	if err == nil && highlights.IsEmpty() {
		err = errors.New("provider returned no highlights")
	}
	if err == nil {
		err = highlights.Validate()
	}
	if err != nil {
		if ctx.Err() != nil {
			return fallbackOutcome(in, ctx.Err().Error())
		}
		logging.WarnWithContext(logger, "analysis provider failed; using fallback", "analysis_fallback",
			logging.String(logging.FieldErrorHint, "check llm api key and model"),
			logging.String(logging.FieldImpact, "session completes with placeholder highlights"),
			logging.Error(err),
		)
		return fallbackOutcome(in, err.Error())
	}
	highlights.Fallback = false
	return Outcome{Highlights: highlights}
}

func (s *Service) enrich(ctx context.Context, meta Metadata) Metadata {
	if s.movies == nil || strings.TrimSpace(meta.Title) == "" {
		return meta
	}
	// The recording date is when the group met, not the film's release year.
	movie, err := s.movies.Lookup(ctx, meta.Title, 0)
	if err != nil {
		s.logger.Info("movie lookup skipped",
			logging.String("title", meta.Title),
			logging.Error(err),
		)
		return meta
	}
	meta.MovieYear = movie.Year()
	meta.MovieOverview = strings.TrimSpace(movie.Overview)
	return meta
}

func fallbackOutcome(in Input, reason string) Outcome {
	return Outcome{Highlights: Fallback(in.Utterances, reason), Fallback: true, Reason: reason}
}

// Fallback builds the deterministic placeholder result. Each category gets a
// labelled winner and the top quotes are the longest utterances.
func Fallback(utterances []session.Utterance, reason string) *session.CategorizedHighlights {
	reason = strings.TrimSpace(reason)
	label := Unavailable
	if reason != "" {
		label = Unavailable + ": " + reason
	}
	out := &session.CategorizedHighlights{
		Summary:  Unavailable,
		Fallback: true,
	}
	for _, category := range session.Categories {
		out.Winners = append(out.Winners, session.CategoryWinner{
			Category:  category,
			Highlight: session.Highlight{Quote: Unavailable, Reason: label},
		})
	}

	ranked := make([]session.Utterance, 0, len(utterances))
	for _, u := range utterances {
		if strings.TrimSpace(u.Text) != "" {
			ranked = append(ranked, u)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := len(strings.Fields(ranked[i].Text)), len(strings.Fields(ranked[j].Text))
		if wi != wj {
			return wi > wj
		}
		return ranked[i].Start < ranked[j].Start
	})
	for _, u := range ranked[:min(len(ranked), session.TopListSize)] {
		out.TopQuotes = append(out.TopQuotes, session.Highlight{
			Speaker:   u.Speaker,
			Timestamp: session.FormatTimestamp(u.Start),
			Quote:     strings.TrimSpace(u.Text),
			Reason:    Unavailable,
		})
	}
	return out
}

// describe renders metadata as the prompt preamble.
func describe(meta Metadata) string {
	var b strings.Builder
	if meta.Title != "" {
		b.WriteString("Film: " + meta.Title)
		if meta.MovieYear > 0 {
			b.WriteString(" (" + strconv.Itoa(meta.MovieYear) + ")")
		}
		b.WriteString("\n")
	}
	if meta.MovieOverview != "" {
		b.WriteString("Synopsis: " + meta.MovieOverview + "\n")
	}
	if !meta.RecordingDate.IsZero() {
		b.WriteString("Recorded: " + meta.RecordingDate.Format("2006-01-02") + "\n")
	}
	if len(meta.Participants) > 0 {
		b.WriteString(fmt.Sprintf("Participants: %s\n", strings.Join(meta.Participants, ", ")))
	}
	return b.String()
}
