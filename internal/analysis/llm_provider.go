package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roundtable/internal/services/llm"
	"roundtable/internal/session"
)

// maxTranscriptRunes bounds the prompt; longer transcripts are cut at a line.
const maxTranscriptRunes = 120_000

// Completer is the chat capability LLMProvider needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMProvider asks a chat model for highlights.
type LLMProvider struct {
	client Completer
}

// NewLLMProvider wraps client. It returns nil when client is nil or an
// unconfigured *llm.Client, so callers fall back without a network call.
func NewLLMProvider(client Completer) Provider {
	if client == nil {
		return nil
	}
	if c, ok := client.(*llm.Client); ok && !c.Configured() {
		return nil
	}
	return &LLMProvider{client: client}
}

type llmResponse struct {
	Summary    string              `json:"summary"`
	Winners    []llmHighlight      `json:"winners"`
	TopQuotes  []session.Highlight `json:"top_quotes"`
	TopMoments []session.Highlight `json:"top_moments"`
}

type llmHighlight struct {
	Category string `json:"category"`
	session.Highlight
}

// Analyze implements Provider.
func (p *LLMProvider) Analyze(ctx context.Context, transcript string, meta Metadata) (*session.CategorizedHighlights, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm provider not configured")
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, errors.New("empty transcript")
	}
	user := describe(meta) + "\nTranscript:\n" + truncateTranscript(transcript, maxTranscriptRunes)
	content, err := p.client.CompleteJSON(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}
	var parsed llmResponse
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("parse highlights: %w", err)
	}
	return normalize(parsed), nil
}

// normalize keeps the first winner per known category, drops blank quotes,
// clamps scores to 0..10, and trims ranked lists to TopListSize.
func normalize(in llmResponse) *session.CategorizedHighlights {
	out := &session.CategorizedHighlights{Summary: strings.TrimSpace(in.Summary)}
	known := map[string]bool{}
	for _, c := range session.Categories {
		known[c] = true
	}
	seen := map[string]bool{}
	for _, w := range in.Winners {
		category := strings.ToLower(strings.TrimSpace(w.Category))
		if !known[category] || seen[category] {
			continue
		}
		h, ok := cleanHighlight(w.Highlight)
		if !ok {
			continue
		}
		seen[category] = true
		out.Winners = append(out.Winners, session.CategoryWinner{Category: category, Highlight: h})
	}
	out.TopQuotes = cleanList(in.TopQuotes)
	out.TopMoments = cleanList(in.TopMoments)
	return out
}

func cleanList(in []session.Highlight) []session.Highlight {
	var out []session.Highlight
	for _, h := range in {
		if len(out) == session.TopListSize {
			break
		}
		if cleaned, ok := cleanHighlight(h); ok {
			out = append(out, cleaned)
		}
	}
	return out
}

func cleanHighlight(h session.Highlight) (session.Highlight, bool) {
	h.Quote = strings.TrimSpace(h.Quote)
	if h.Quote == "" {
		return h, false
	}
	h.Speaker = strings.TrimSpace(h.Speaker)
	h.Timestamp = strings.TrimSpace(h.Timestamp)
	h.Reason = strings.TrimSpace(h.Reason)
	h.Score = min(max(h.Score, 0), 10)
	return h, true
}

func truncateTranscript(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "\n[transcript truncated]"
}
