// Package transcription is the client for the remote speech-to-text provider
// (AssemblyAI v2 API shape).
//
// A file is transcribed in three steps: Upload streams the local file and
// returns the provider's audio URL, StartJob submits a transcript job for that
// URL, and PollUntilDone waits until the job finishes. FetchResult reads a
// finished job again without polling, which maintenance uses to re-download
// lost transcript text.
//
// A job that finishes with status "error" is returned as a Result, not as a Go
// error; callers inspect Result.Succeeded. Transport and HTTP failures are
// returned as errors and retried according to package retry.
package transcription
