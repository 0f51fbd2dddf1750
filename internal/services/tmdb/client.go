package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"roundtable/internal/services/retry"
)

// ErrNoMatch is returned by Lookup when the search has no results.
var ErrNoMatch = errors.New("tmdb: no matching movie")

// Result represents a single TMDB search match.
type Result struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int64   `json:"vote_count"`
}

// Year returns the release year, or 0 when unknown.
func (r Result) Year() int {
	if len(r.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(r.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// Response models the TMDB paginated search response.
type Response struct {
	Page         int      `json:"page"`
	Results      []Result `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}

// Client provides access to the TMDB search API.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	policy     retry.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// New creates a TMDB client.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy:     retry.Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SearchMovie searches TMDB for title, narrowing by release year when year > 0.
func (c *Client) SearchMovie(ctx context.Context, query string, year int) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + "/search/movie")
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	if year > 0 {
		params.Set("primary_release_year", strconv.Itoa(year))
	}
	endpoint.RawQuery = params.Encode()

	var payload Response
	err = c.policy.Do(ctx, "tmdb search", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		requestStart := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("execute request (latency=%v): %w", time.Since(requestStart), err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read tmdb response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.NewStatusError("tmdb", resp, body)
		}
		payload = Response{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("decode tmdb response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// Lookup returns the best match for title. An exact (case-insensitive) title
// match wins, then the most popular result.
func (c *Client) Lookup(ctx context.Context, title string, year int) (Result, error) {
	resp, err := c.SearchMovie(ctx, title, year)
	if err != nil {
		return Result{}, err
	}
	if len(resp.Results) == 0 && year > 0 {
		if resp, err = c.SearchMovie(ctx, title, 0); err != nil {
			return Result{}, err
		}
	}
	if len(resp.Results) == 0 {
		return Result{}, ErrNoMatch
	}
	return bestMatch(title, resp.Results), nil
}

func bestMatch(title string, results []Result) Result {
	want := strings.ToLower(strings.TrimSpace(title))
	ranked := append([]Result(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ei := strings.ToLower(ranked[i].Title) == want
		ej := strings.ToLower(ranked[j].Title) == want
		if ei != ej {
			return ei
		}
		return ranked[i].Popularity > ranked[j].Popularity
	})
	return ranked[0]
}
