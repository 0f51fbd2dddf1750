package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"roundtable/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func dependencyLines(statuses []api.DependencyStatus, colorize bool) []string {
	missingRequired, missingOptional := 0, 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	kind, summary := statusOK, fmt.Sprintf("%d/%d available", len(statuses)-missingRequired-missingOptional, len(statuses))
	switch {
	case missingRequired > 0:
		kind = statusError
		summary += fmt.Sprintf(", %d required missing", missingRequired)
	case missingOptional > 0:
		kind = statusWarn
		summary += fmt.Sprintf(", %d optional missing", missingOptional)
	}

	lines := []string{renderStatusLine("Summary", kind, summary, colorize)}
	for _, dep := range statuses {
		depKind := statusOK
		detail := dep.Command
		if dep.Version != "" {
			detail = strings.TrimSpace(detail + " " + dep.Version)
		}
		if !dep.Available {
			depKind = statusError
			if dep.Optional {
				depKind = statusWarn
			}
			detail = dep.Detail
			if detail == "" {
				detail = "not found"
			}
		}
		lines = append(lines, renderStatusLine(dep.Name, depKind, detail, colorize))
	}
	return lines
}
