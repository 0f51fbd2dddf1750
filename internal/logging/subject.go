package logging

import "strings"

// FormatSubject builds the "session · file (stage)" prefix used in console output.
// Session identifiers are shortened to their first eight characters.
func FormatSubject(sessionID, fileName, stage string) string {
	sessionID = strings.TrimSpace(sessionID)
	fileName = strings.TrimSpace(fileName)
	stage = strings.TrimSpace(stage)

	parts := make([]string, 0, 2)
	if sessionID != "" {
		if len(sessionID) > 8 {
			sessionID = sessionID[:8]
		}
		parts = append(parts, "Session "+sessionID)
	}
	switch {
	case fileName != "" && stage != "":
		parts = append(parts, fileName+" ("+stage+")")
	case fileName != "":
		parts = append(parts, fileName)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
