package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Highlight categories awarded a single winner by analysis.
const (
	CategoryFunniest       = "funniest_moment"
	CategoryHottestTake    = "hottest_take"
	CategoryMostInsightful = "most_insightful"
	CategoryBestArgument   = "best_argument"
	CategoryBiggestTangent = "biggest_tangent"
)

// Categories is the fixed set of winner categories, in display order.
var Categories = []string{
	CategoryFunniest,
	CategoryHottestTake,
	CategoryMostInsightful,
	CategoryBestArgument,
	CategoryBiggestTangent,
}

// TopListSize is the length of each ranked list.
const TopListSize = 5

// Highlight is a single quoted moment.
type Highlight struct {
	Speaker   string  `json:"speaker"`
	Timestamp string  `json:"timestamp"`
	Quote     string  `json:"quote"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason,omitempty"`
}

// CategoryWinner pairs a category with its winning highlight.
type CategoryWinner struct {
	Category string `json:"category"`
	Highlight
}

// CategorizedHighlights is the analysis output for a session.
type CategorizedHighlights struct {
	Summary    string           `json:"summary,omitempty"`
	Winners    []CategoryWinner `json:"winners"`
	TopQuotes  []Highlight      `json:"top_quotes"`
	TopMoments []Highlight      `json:"top_moments"`
	// Fallback is set when the analysis provider was unavailable.
	Fallback   bool             `json:"fallback,omitempty"`
}

// IsEmpty reports whether no highlight content is present.
func (h *CategorizedHighlights) IsEmpty() bool {
	return h == nil || (len(h.Winners) == 0 && len(h.TopQuotes) == 0 && len(h.TopMoments) == 0)
}

// Winner returns the winner for category, if present.
func (h *CategorizedHighlights) Winner(category string) (CategoryWinner, bool) {
	if h == nil {
		return CategoryWinner{}, false
	}
	for _, w := range h.Winners {
		if w.Category == category {
			return w, true
		}
	}
	return CategoryWinner{}, false
}

// Validate checks the output against the fixed schema: one winner per known
// category and ranked lists no longer than TopListSize.
func (h *CategorizedHighlights) Validate() error {
	if h.IsEmpty() {
		return errors.New("highlights are empty")
	}
	seen := make(map[string]struct{}, len(h.Winners))
	for _, w := range h.Winners {
		if !slices.Contains(Categories, w.Category) {
			return fmt.Errorf("unknown highlight category %q", w.Category)
		}
		if _, dup := seen[w.Category]; dup {
			return fmt.Errorf("duplicate winner for %q", w.Category)
		}
		if strings.TrimSpace(w.Quote) == "" {
			return fmt.Errorf("winner for %q has no quote", w.Category)
		}
		seen[w.Category] = struct{}{}
	}
	for _, category := range Categories {
		if _, ok := seen[category]; !ok {
			return fmt.Errorf("missing winner for %q", category)
		}
	}
	if len(h.TopQuotes) > TopListSize {
		return fmt.Errorf("top_quotes has %d entries, max %d", len(h.TopQuotes), TopListSize)
	}
	if len(h.TopMoments) > TopListSize {
		return fmt.Errorf("top_moments has %d entries, max %d", len(h.TopMoments), TopListSize)
	}
	return nil
}

// Clone returns a deep copy.
func (h *CategorizedHighlights) Clone() *CategorizedHighlights {
	if h == nil {
		return nil
	}
	cp := *h
	cp.Winners = slices.Clone(h.Winners)
	cp.TopQuotes = slices.Clone(h.TopQuotes)
	cp.TopMoments = slices.Clone(h.TopMoments)
	return &cp
}

// FormatTimestamp renders milliseconds as M:SS or H:MM:SS.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
