package pipeline

import (
	"context"

	"roundtable/internal/session"
)

// handler performs one unit of work and returns the next state.
type handler func(ctx context.Context, t *fileTask) (session.FileProcessingState, error)

// transitionTable maps each individual-processing state to its handler.
// States absent from the table stop the driver.
type transitionTable map[session.FileProcessingState]handler

func advanceTo(next session.FileProcessingState) handler {
	return func(context.Context, *fileTask) (session.FileProcessingState, error) {
		return next, nil
	}
}

// newTransitionTable wires the executors into the individual pipeline:
//
//	Pending -> ConvertingToStandardFormat | ReadyToUpload
//	ConvertingToStandardFormat -> ConvertedReady
//	ConvertedReady | ReadyToUpload -> Uploading
//	Uploading -> Uploaded -> AwaitingTranscript -> TranscriptDownloaded
//	TranscriptDownloaded -> WaitingForSiblings (barrier)
func newTransitionTable(e *StageExecutors) transitionTable {
	return transitionTable{
		session.FilePending:              e.classify,
		session.FileConverting:           e.convert,
		session.FileConvertedReady:       advanceTo(session.FileUploading),
		session.FileReadyToUpload:        advanceTo(session.FileUploading),
		session.FileUploading:            e.upload,
		session.FileUploaded:             e.startTranscription,
		session.FileAwaitingTranscript:   e.awaitTranscript,
		session.FileTranscriptDownloaded: advanceTo(session.FileWaitingForSiblings),
	}
}

// stopsDriver reports whether the driver must return at state.
func stopsDriver(state session.FileProcessingState) bool {
	return state == session.FileFailed || state == session.FileWaitingForSiblings || state.IsCollective()
}

// individualOrder ranks the individual states for progress aggregation.
var individualOrder = map[session.FileProcessingState]int{
	session.FilePending:              0,
	session.FileConverting:           1,
	session.FileConvertedReady:       2,
	session.FileReadyToUpload:        2,
	session.FileUploading:            3,
	session.FileUploaded:             4,
	session.FileAwaitingTranscript:   5,
	session.FileTranscriptDownloaded: 6,
	session.FileWaitingForSiblings:   7,
}

// fileFraction is how far through individual processing a file is, 0..1.
// Failed and collective files count as finished.
func fileFraction(f *session.AudioFile) float64 {
	if f.State == session.FileFailed || f.State.IsCollective() {
		return 1
	}
	const last = 7
	rank, ok := individualOrder[f.State]
	if !ok {
		return 0
	}
	if rank == last {
		return 1
	}
	return (float64(rank) + float64(f.Progress)/100) / last
}
