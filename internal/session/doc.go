// Package session defines the recording-session aggregate: a Session owns an
// ordered set of AudioFile records, each moving through its own
// FileProcessingState while the session advances through SessionProcessingState.
//
// The package also scans recording folders into new sessions and decides
// which file is the combined master recording.
package session
