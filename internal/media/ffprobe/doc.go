// Package ffprobe wraps the ffprobe binary to read duration and stream
// details from recordings in formats the pure-Go decoders do not cover.
package ffprobe
