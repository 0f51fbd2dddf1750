package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ProgressFunc receives conversion progress; current and total are in
// milliseconds of audio. total is 0 when the duration is unknown.
type ProgressFunc func(step string, current, total int64)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string), onStderr func(string)) error
}

// DurationFunc returns the length of a recording in seconds.
type DurationFunc func(ctx context.Context, path string) (float64, error)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithDurationLookup supplies the duration lookup used to scale progress.
func WithDurationLookup(fn DurationFunc) Option {
	return func(c *Client) {
		c.duration = fn
	}
}

// Client wraps ffmpeg invocations.
type Client struct {
	binary     string
	bitrate    string
	sampleRate int
	exec       Executor
	duration   DurationFunc
}

// New constructs a converter producing MP3 at bitrate and sampleRate.
func New(binary, bitrate string, sampleRate int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	if strings.TrimSpace(bitrate) == "" {
		bitrate = "128k"
	}
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	c := &Client{
		binary:     binary,
		bitrate:    bitrate,
		sampleRate: sampleRate,
		exec:       commandExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Convert transcodes source into an MP3 at target.
func (c *Client) Convert(ctx context.Context, source, target string, progress ProgressFunc) error {
	if source == "" || target == "" {
		return errors.New("source and target paths required")
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	var totalMs int64
	if c.duration != nil {
		if seconds, err := c.duration(ctx, source); err == nil && seconds > 0 {
			totalMs = int64(seconds * 1000)
		}
	}

	partial := target + ".part"
	defer func() { _ = os.Remove(partial) }()

	args := []string{
		"-hide_banner", "-nostdin", "-nostats", "-loglevel", "error", "-y",
		"-i", source,
		"-vn",
		"-ar", strconv.Itoa(c.sampleRate),
		"-codec:a", "libmp3lame",
		"-b:a", c.bitrate,
		"-progress", "pipe:1",
		"-f", "mp3",
		partial,
	}

	if progress != nil {
		progress("Converting to MP3", 0, totalMs)
	}
	tail := newLineTail(5)
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		if progress == nil {
			return
		}
		if current, done, ok := parseProgressLine(line); ok {
			if done && totalMs > 0 {
				current = totalMs
			}
			if totalMs > 0 && current > totalMs {
				current = totalMs
			}
			progress("Converting to MP3", current, totalMs)
		}
	}, tail.add)
	if err != nil {
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("ffmpeg convert %s: %w: %s", source, err, detail)
		}
		return fmt.Errorf("ffmpeg convert %s: %w", source, err)
	}

	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no output for %s", source)
	}
	if err := os.Rename(partial, target); err != nil {
		return fmt.Errorf("finalize %s: %w", target, err)
	}
	return nil
}

// parseProgressLine reads out_time_us (or the mislabeled out_time_ms, which
// ffmpeg also reports in microseconds) and progress=end lines.
func parseProgressLine(line string) (ms int64, done bool, ok bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return 0, false, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return 0, false, false
		}
		return us / 1000, false, true
	case "progress":
		if strings.TrimSpace(value) == "end" {
			return 0, true, true
		}
	}
	return 0, false, false
}

type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "; ")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string), onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if forward != nil {
				forward(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}
	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)
	wg.Wait()

	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
