// Package ffmpeg converts recordings to the MP3 format accepted by the
// transcription provider. Conversion runs the ffmpeg binary with
// machine-readable progress on stdout and writes through a temporary file so
// an interrupted run never leaves a truncated target behind.
package ffmpeg
