package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"roundtable/internal/logging"
	"roundtable/internal/services"
	"roundtable/internal/session"
)

// FileDriver runs one file through the transition table.
type FileDriver struct {
	table  transitionTable
	logger *slog.Logger
}

// NewFileDriver builds a driver over the executors' transition table.
func NewFileDriver(exec *StageExecutors, logger *slog.Logger) *FileDriver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileDriver{table: newTransitionTable(exec), logger: logger}
}

// Drive loops until the file fails, reaches the barrier, or ctx is cancelled.
// A cancelled file keeps its current state so a later run resumes it. Drive
// never panics and never returns an error; failures are recorded on the file.
func (d *FileDriver) Drive(ctx context.Context, t *fileTask) {
	f := t.file
	logger := t.logger
	if logger == nil {
		logger = d.logger
		t.logger = logger
	}
	for {
		state := f.State
		if stopsDriver(state) {
			return
		}
		if ctx.Err() != nil {
			logger.Info("file processing cancelled", logging.String("state", string(state)))
			return
		}
		run, ok := d.table[state]
		if !ok {
			f.SetFailed(fmt.Sprintf("no transition for state %q", state), false)
			t.publish()
			return
		}

		next, err := d.step(ctx, run, t)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				logger.Info("file processing cancelled", logging.String("state", string(state)))
				return
			}
			d.fail(t, state, err)
			return
		}
		t.progress(f.StepLabel, 100)
		if next != state {
			f.BeginStage(next)
			if t.sampler != nil {
				t.sampler.Reset()
			}
			logger.Debug("file state advanced",
				logging.String("from", string(state)),
				logging.String("to", string(next)),
			)
			t.publish()
		}
	}
}

// step runs one handler, converting a panic into an error.
func (d *FileDriver) step(ctx context.Context, run handler, t *fileTask) (next session.FileProcessingState, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("transition panicked",
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
			err = &panicError{value: r}
		}
	}()
	return run(ctx, t)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("unexpected failure: %v", e.value) }

func (d *FileDriver) fail(t *fileTask, state session.FileProcessingState, err error) {
	var pe *panicError
	retryable := errors.As(err, &pe) || services.Retryable(err)
	message := services.Details(err).Message
	if message == "" {
		message = err.Error()
	}
	t.file.SetFailed(message, retryable)
	attrs := append([]slog.Attr{
		logging.String("state", string(state)),
		logging.Bool("retryable", retryable),
	}, logging.ErrorAttrs(err)...)
	logging.ErrorWithContext(t.logger, "file processing failed", "file_failed", attrs...)
	t.publish()
}
