package maintenance

import (
	"context"
	"fmt"
	"os"
	"time"

	"roundtable/internal/session"
)

// StuckAge is how long an active session may go without activity before
// Diagnose reports it.
const StuckAge = time.Hour

// Issue codes reported by Diagnose.
const (
	IssueMissingFile       = "missing_file"
	IssueTranscriptMissing = "transcript_not_downloaded"
	IssueMissingAnalysis   = "missing_analysis"
	IssueStuck             = "stuck"
)

// Issue is one problem found by Diagnose with its remediation.
type Issue struct {
	Code     string `json:"code"`
	FileName string `json:"file_name,omitempty"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// Diagnostics is the read-only health report for a session.
type Diagnostics struct {
	SessionID string                         `json:"session_id"`
	State     session.SessionProcessingState `json:"state"`
	Issues    []Issue                        `json:"issues"`
	Score     int                            `json:"score"`
	CheckedAt time.Time                      `json:"checked_at"`
}

// Healthy reports whether no issues were found.
func (d Diagnostics) Healthy() bool { return len(d.Issues) == 0 }

// Diagnose inspects a session without modifying it.
func (s *Service) Diagnose(ctx context.Context, id string) (Diagnostics, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Diagnostics{}, err
	}
	now := s.now().UTC()
	issues := inspect(sess, now)
	return Diagnostics{
		SessionID: sess.ID,
		State:     sess.State,
		Issues:    issues,
		Score:     score(len(issues)),
		CheckedAt: now,
	}, nil
}

func score(issues int) int {
	return max(100-10*issues, 0)
}

func inspect(sess *session.Session, now time.Time) []Issue {
	issues := []Issue{}
	for _, f := range sess.Files {
		if _, err := os.Stat(f.Path); err != nil {
			issues = append(issues, Issue{
				Code:     IssueMissingFile,
				FileName: f.Name,
				Message:  fmt.Sprintf("recording not found at %s", f.Path),
				Action:   "restore the recording to the session folder, or delete and re-ingest the session",
			})
		}
		if f.HasTranscriptJob() && !f.HasTranscript() {
			issues = append(issues, Issue{
				Code:     IssueTranscriptMissing,
				FileName: f.Name,
				Message:  fmt.Sprintf("transcript job %s has no downloaded text", f.TranscriptID),
				Action:   "redownload transcripts for the session",
			})
		}
	}
	if sess.State == session.SessionComplete && sess.Highlights.IsEmpty() {
		issues = append(issues, Issue{
			Code:    IssueMissingAnalysis,
			Message: "session is complete but has no highlights",
			Action:  "recover the session to rerun attribution and analysis",
		})
	}
	if sess.State.IsActive() {
		if idle := now.Sub(lastActivity(sess)); idle > StuckAge {
			issues = append(issues, Issue{
				Code:    IssueStuck,
				Message: fmt.Sprintf("no progress in %s for %s", sess.State, idle.Round(time.Minute)),
				Action:  "run the stuck-session scan or cancel the session",
			})
		}
	}
	return issues
}
