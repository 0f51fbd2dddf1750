package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roundtable/internal/services"
	"roundtable/internal/session"
)

// BarrierStatus counts files relative to the synchronization barrier.
type BarrierStatus struct {
	Total   int
	Ready   int
	Failed  int
	Pending int
	// FailedNames lists failed files in session order.
	FailedNames []string
}

// EvaluateBarrier classifies files. A file counts as ready once it is
// waiting at the barrier or has already entered collective processing.
func EvaluateBarrier(files []*session.AudioFile) BarrierStatus {
	st := BarrierStatus{Total: len(files)}
	for _, f := range files {
		switch {
		case f.State == session.FileFailed:
			st.Failed++
			st.FailedNames = append(st.FailedNames, f.Name)
		case f.State == session.FileWaitingForSiblings || f.State.IsCollective():
			st.Ready++
		default:
			st.Pending++
		}
	}
	return st
}

// Released reports whether every file reached the barrier.
func (b BarrierStatus) Released() bool {
	return b.Total > 0 && b.Ready == b.Total
}

// Aborted reports whether no file can still arrive and at least one failed.
func (b BarrierStatus) Aborted() bool {
	return b.Failed > 0 && b.Ready+b.Failed == b.Total
}

// Message is the progress line shown while holding.
func (b BarrierStatus) Message() string {
	return fmt.Sprintf("%d of %d recordings ready; waiting for %d", b.Ready, b.Total, b.Total-b.Ready)
}

// BarrierError reports a session that cannot enter collective processing.
type BarrierError struct {
	Failed []string
}

func (e *BarrierError) Error() string {
	noun := "files"
	if len(e.Failed) == 1 {
		noun = "file"
	}
	return fmt.Sprintf("Cannot proceed: %d %s failed: %s", len(e.Failed), noun, strings.Join(e.Failed, ", "))
}

func (e *BarrierError) Unwrap() error { return services.ErrBarrierAborted }

// awaitBarrier re-evaluates the files every interval until the barrier
// releases or aborts. report is called with each holding status.
func awaitBarrier(ctx context.Context, files []*session.AudioFile, interval time.Duration, report func(BarrierStatus)) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st := EvaluateBarrier(files)
		if st.Released() {
			return nil
		}
		if st.Aborted() {
			return &BarrierError{Failed: st.FailedNames}
		}
		if report != nil {
			report(st)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
