package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"roundtable/internal/api"
	"roundtable/internal/session"
)

func sessionTitle(s api.Session) string {
	if title := strings.TrimSpace(s.SubjectTitle); title != "" {
		return title
	}
	return s.FolderPath
}

func relativeTime(value string) string {
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return humanize.Time(parsed)
}

func renderSessionTable(sessions []api.Session) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		progress := fmt.Sprintf("%d%%", s.Progress.Percent)
		if s.Progress.Message != "" {
			progress += " " + s.Progress.Message
		}
		rows = append(rows, []string{
			s.ID,
			sessionTitle(s),
			s.State,
			strconv.Itoa(len(s.Files)),
			progress,
			relativeTime(s.CreatedAt),
		})
	}
	return renderTable([]column{
		{header: "ID"},
		{header: "Subject", maxWidth: 32},
		{header: "State"},
		{header: "Files", right: true},
		{header: "Progress", maxWidth: 40},
		{header: "Created"},
	}, rows)
}

func renderSessionDetail(out io.Writer, s api.Session) {
	fmt.Fprintf(out, "Session:   %s\n", s.ID)
	fmt.Fprintf(out, "Subject:   %s\n", sessionTitle(s))
	fmt.Fprintf(out, "Folder:    %s\n", s.FolderPath)
	if s.RecordingDate != "" {
		fmt.Fprintf(out, "Recorded:  %s\n", s.RecordingDate)
	}
	fmt.Fprintf(out, "State:     %s (%d%%) %s\n", s.State, s.Progress.Percent, s.Progress.Message)
	if s.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", s.ErrorMessage)
	}
	fmt.Fprintf(out, "Created:   %s\n", relativeTime(s.CreatedAt))
	if s.ProcessedAt != "" {
		fmt.Fprintf(out, "Processed: %s\n", relativeTime(s.ProcessedAt))
	}
	if s.LastHeartbeat != "" {
		fmt.Fprintf(out, "Heartbeat: %s\n", relativeTime(s.LastHeartbeat))
	}

	fmt.Fprintln(out)
	rows := make([][]string, 0, len(s.Files))
	for _, f := range s.Files {
		speaker := "-"
		switch {
		case f.IsMaster:
			speaker = "master"
		case f.SpeakerIndex != nil:
			speaker = "mic " + strconv.Itoa(*f.SpeakerIndex)
			if name := s.Participants[strconv.Itoa(*f.SpeakerIndex)]; name != "" {
				speaker += " (" + name + ")"
			}
		}
		state := f.State
		if f.ErrorMessage != "" {
			state += ": " + f.ErrorMessage
		}
		rows = append(rows, []string{
			f.Name,
			speaker,
			humanize.IBytes(uint64(max(f.SizeBytes, 0))),
			formatDuration(f.DurationSeconds),
			state,
			yesNo(f.HasTranscript),
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "File"},
		{header: "Speaker"},
		{header: "Size", right: true},
		{header: "Duration", right: true},
		{header: "State", maxWidth: 48},
		{header: "Transcript"},
	}, rows))

	if s.Stats != nil && len(s.Stats.Speakers) > 0 {
		fmt.Fprintln(out)
		renderSpeakerStats(out, *s.Stats)
	}
	if s.Highlights != nil {
		fmt.Fprintln(out)
		renderHighlights(out, s.Highlights)
	}
}

func renderSpeakerStats(out io.Writer, stats session.MergeStats) {
	fmt.Fprintf(out, "Attribution: %s, %s utterances (%d unattributed)\n",
		stats.Strategy, humanize.Comma(int64(stats.TotalUtterances)), stats.Unattributed)
	rows := make([][]string, 0, len(stats.Speakers))
	for _, name := range stats.SpeakerNames() {
		sp := stats.Speakers[name]
		rows = append(rows, []string{
			name,
			humanize.Comma(int64(sp.Utterances)),
			humanize.Comma(int64(sp.Words)),
			(time.Duration(sp.SpeakingMs) * time.Millisecond).Round(time.Second).String(),
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "Speaker"},
		{header: "Utterances", right: true},
		{header: "Words", right: true},
		{header: "Speaking", right: true},
	}, rows))
}

func renderHighlights(out io.Writer, h *session.CategorizedHighlights) {
	if h.Fallback {
		fmt.Fprintln(out, "Analysis unavailable; transcript only")
	}
	if h.Summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", h.Summary)
	}
	for _, w := range h.Winners {
		fmt.Fprintf(out, "  %-16s %s [%s] %q\n", w.Category+":", w.Speaker, w.Timestamp, w.Quote)
	}
	if len(h.TopQuotes) > 0 {
		fmt.Fprintln(out, "Top quotes:")
		for _, q := range h.TopQuotes {
			fmt.Fprintf(out, "  %s [%s] %q\n", q.Speaker, q.Timestamp, q.Quote)
		}
	}
}

func renderDiagnostics(out io.Writer, d api.Diagnostics, colorize bool) {
	kind := statusOK
	if !d.Healthy {
		kind = statusWarn
	}
	if d.Score < 50 {
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Health", kind, fmt.Sprintf("score %d/100, state %s", d.Score, d.State), colorize))
	for _, issue := range d.Issues {
		label := issue.Code
		if issue.FileName != "" {
			label += " (" + issue.FileName + ")"
		}
		fmt.Fprintln(out, renderStatusLine(label, statusWarn, issue.Message, colorize))
		if issue.Action != "" {
			fmt.Fprintf(out, "%s%-*s -> %s\n", statusIndent, statusLabelWidth, "", issue.Action)
		}
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}
