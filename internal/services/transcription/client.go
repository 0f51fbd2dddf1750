package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"roundtable/internal/logging"
	"roundtable/internal/services/retry"
)

const (
	defaultBaseURL      = "https://api.assemblyai.com/v2"
	defaultHTTPTimeout  = 120 * time.Second
	defaultPollInterval = 5 * time.Second
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("transcription: api key required")

// Config captures provider settings.
type Config struct {
	APIKey         string
	BaseURL        string
	LanguageCode   string
	TimeoutSeconds int
}

// ProgressFunc receives upload progress in bytes.
type ProgressFunc func(sent, total int64)

// Client talks to the transcription provider.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	policy       retry.Policy
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option customizes the client.
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

// WithPollInterval sets the delay between job status checks.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithLogger attaches a logger for poll diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a provider client.
func New(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			LanguageCode:   strings.TrimSpace(cfg.LanguageCode),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:   &http.Client{Timeout: timeout},
		policy:       retry.Default(),
		pollInterval: defaultPollInterval,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Upload streams the file at path to the provider and returns its audio URL.
func (c *Client) Upload(ctx context.Context, path string, progress ProgressFunc) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("transcription upload: stat source: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "upload")
	if err != nil {
		return "", fmt.Errorf("transcription upload: build url: %w", err)
	}

	var uploaded uploadResponse
	err = c.policy.Do(ctx, "transcription upload", func(ctx context.Context) error {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("transcription upload: open source: %w", err)
		}
		defer file.Close()
		body := &countingReader{reader: file, total: info.Size(), progress: progress}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return fmt.Errorf("transcription upload: new request: %w", err)
		}
		req.ContentLength = info.Size()
		req.Header.Set("Content-Type", "application/octet-stream")
		return c.do(req, &uploaded)
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(uploaded.UploadURL) == "" {
		return "", errors.New("transcription upload: response missing upload_url")
	}
	return uploaded.UploadURL, nil
}

// StartJob submits a transcript job for an uploaded audio URL.
func (c *Client) StartJob(ctx context.Context, audioURL string, opts JobOptions) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(audioURL) == "" {
		return "", errors.New("transcription start: audio url required")
	}
	payload := jobRequest{
		AudioURL:      audioURL,
		SpeakerLabels: opts.Diarization,
		LanguageCode:  c.cfg.LanguageCode,
		Punctuate:     true,
		FormatText:    true,
	}
	if opts.Diarization && opts.ExpectedSpeakers > 0 {
		payload.SpeakersExpected = opts.ExpectedSpeakers
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("transcription start: encode body: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "transcript")
	if err != nil {
		return "", fmt.Errorf("transcription start: build url: %w", err)
	}

	var started Result
	err = c.policy.Do(ctx, "transcription start", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("transcription start: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, &started)
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(started.ID) == "" {
		return "", errors.New("transcription start: response missing id")
	}
	c.logger.Debug("transcript job started",
		logging.String("job_id", started.ID),
		logging.String("label", opts.Label),
		logging.Bool("diarization", opts.Diarization),
	)
	return started.ID, nil
}

// FetchResult reads the current job document once.
func (c *Client) FetchResult(ctx context.Context, jobID string) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotConfigured
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Result{}, errors.New("transcription fetch: job id required")
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "transcript", jobID)
	if err != nil {
		return Result{}, fmt.Errorf("transcription fetch: build url: %w", err)
	}
	var result Result
	err = c.policy.Do(ctx, "transcription fetch", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("transcription fetch: new request: %w", err)
		}
		result = Result{}
		return c.do(req, &result)
	})
	if err != nil {
		return Result{}, err
	}
	if result.ID == "" {
		result.ID = jobID
	}
	return result, nil
}

// PollUntilDone fetches the job on the poll interval until it completes,
// errors, or ctx is cancelled.
func (c *Client) PollUntilDone(ctx context.Context, jobID string) (Result, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		result, err := c.FetchResult(ctx, jobID)
		if err != nil {
			return Result{}, err
		}
		if result.Status.Done() {
			return result, nil
		}
		c.logger.Debug("transcript job pending",
			logging.String("job_id", jobID),
			logging.String("status", string(result.Status)),
		)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, target any) error {
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("transcription request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return retry.NewStatusError("transcription", resp, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("transcription request: decode response: %w", err)
	}
	return nil
}

// countingReader reports upload progress as the body is consumed.
type countingReader struct {
	reader   io.Reader
	total    int64
	sent     int64
	progress ProgressFunc
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sent += int64(n)
		if r.progress != nil {
			r.progress(r.sent, r.total)
		}
	}
	return n, err
}
