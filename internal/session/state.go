package session

import "strings"

// FileProcessingState is the lifecycle of a single audio file.
type FileProcessingState string

const (
	FilePending              FileProcessingState = "pending"
	FileConverting           FileProcessingState = "converting_to_standard_format"
	FileConvertedReady       FileProcessingState = "converted_ready"
	FileReadyToUpload        FileProcessingState = "ready_to_upload"
	FileUploading            FileProcessingState = "uploading"
	FileUploaded             FileProcessingState = "uploaded"
	FileAwaitingTranscript   FileProcessingState = "awaiting_transcript"
	FileTranscriptDownloaded FileProcessingState = "transcript_downloaded"
	FileWaitingForSiblings   FileProcessingState = "waiting_for_siblings"
	FileMergingAttribution   FileProcessingState = "merging_attribution"
	FileReadyForAnalysis     FileProcessingState = "ready_for_analysis"
	FileAnalyzingWithAI      FileProcessingState = "analyzing_with_ai"
	FileComplete             FileProcessingState = "complete"
	FileFailed               FileProcessingState = "failed"
)

var fileStates = []FileProcessingState{
	FilePending,
	FileConverting,
	FileConvertedReady,
	FileReadyToUpload,
	FileUploading,
	FileUploaded,
	FileAwaitingTranscript,
	FileTranscriptDownloaded,
	FileWaitingForSiblings,
	FileMergingAttribution,
	FileReadyForAnalysis,
	FileAnalyzingWithAI,
	FileComplete,
	FileFailed,
}

// collective states are only entered after the barrier releases a file.
var collectiveStates = map[FileProcessingState]struct{}{
	FileMergingAttribution: {},
	FileReadyForAnalysis:   {},
	FileAnalyzingWithAI:    {},
	FileComplete:           {},
}

var fileStateLabels = map[FileProcessingState]string{
	FilePending:              "Queued",
	FileConverting:           "Converting to MP3",
	FileConvertedReady:       "Converted",
	FileReadyToUpload:        "Ready to upload",
	FileUploading:            "Uploading",
	FileUploaded:             "Uploaded",
	FileAwaitingTranscript:   "Transcribing",
	FileTranscriptDownloaded: "Transcript downloaded",
	FileWaitingForSiblings:   "Waiting for other recordings",
	FileMergingAttribution:   "Merging speakers",
	FileReadyForAnalysis:     "Ready for analysis",
	FileAnalyzingWithAI:      "Analyzing",
	FileComplete:             "Complete",
	FileFailed:               "Failed",
}

// AllFileStates returns the ordered list of file states.
func AllFileStates() []FileProcessingState {
	return append([]FileProcessingState(nil), fileStates...)
}

// ParseFileState converts a stored value into a known state.
func ParseFileState(value string) (FileProcessingState, bool) {
	normalized := FileProcessingState(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range fileStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions will run for the file.
func (s FileProcessingState) IsTerminal() bool {
	return s == FileComplete || s == FileFailed
}

// IsCollective reports whether the state belongs to session-level processing.
func (s FileProcessingState) IsCollective() bool {
	_, ok := collectiveStates[s]
	return ok
}

// Label is the human-readable step text for the state.
func (s FileProcessingState) Label() string {
	if label, ok := fileStateLabels[s]; ok {
		return label
	}
	return string(s)
}

// SessionProcessingState is the lifecycle of a whole session.
type SessionProcessingState string

const (
	SessionPending      SessionProcessingState = "pending"
	SessionValidating   SessionProcessingState = "validating"
	SessionTranscribing SessionProcessingState = "transcribing"
	SessionAnalyzing    SessionProcessingState = "analyzing"
	SessionComplete     SessionProcessingState = "complete"
	SessionFailed       SessionProcessingState = "failed"
)

var sessionStates = []SessionProcessingState{
	SessionPending,
	SessionValidating,
	SessionTranscribing,
	SessionAnalyzing,
	SessionComplete,
	SessionFailed,
}

// AllSessionStates returns the ordered list of session states.
func AllSessionStates() []SessionProcessingState {
	return append([]SessionProcessingState(nil), sessionStates...)
}

// ParseSessionState converts a stored value into a known state.
func ParseSessionState(value string) (SessionProcessingState, bool) {
	normalized := SessionProcessingState(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range sessionStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// IsTerminal reports whether the session finished, successfully or not.
func (s SessionProcessingState) IsTerminal() bool {
	return s == SessionComplete || s == SessionFailed
}

// IsActive reports whether work is in flight for the session.
func (s SessionProcessingState) IsActive() bool {
	switch s {
	case SessionValidating, SessionTranscribing, SessionAnalyzing:
		return true
	default:
		return false
	}
}

// NonTerminalSessionStates lists states considered by stuck-session scans.
func NonTerminalSessionStates() []SessionProcessingState {
	return []SessionProcessingState{SessionPending, SessionValidating, SessionTranscribing, SessionAnalyzing}
}
