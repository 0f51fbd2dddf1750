// Package flacinfo reads FLAC stream metadata without invoking external tools.
package flacinfo

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// Info summarizes a FLAC stream.
type Info struct {
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
	Samples       uint64
}

// DurationSeconds returns the stream length, or 0 when the sample rate is unknown.
func (i Info) DurationSeconds() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.Samples) / float64(i.SampleRate)
}

// Read parses the StreamInfo block of the FLAC file at path. When the
// encoder left the total sample count unset, frames are walked to count it.
func Read(path string) (Info, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open flac: %w", err)
	}
	defer stream.Close()

	info := Info{
		SampleRate:    stream.Info.SampleRate,
		Channels:      stream.Info.NChannels,
		BitsPerSample: stream.Info.BitsPerSample,
		Samples:       stream.Info.NSamples,
	}
	if info.Samples > 0 {
		return info, nil
	}

	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Info{}, fmt.Errorf("parse flac frame: %w", err)
		}
		info.Samples += uint64(f.BlockSize)
	}
	return info, nil
}
