// Package media measures recordings. FLAC files are read natively; every
// other container goes through ffprobe.
package media

import (
	"context"
	"path/filepath"
	"strings"

	"roundtable/internal/media/ffprobe"
	"roundtable/internal/media/flacinfo"
)

// DurationReader reports recording durations in seconds.
type DurationReader struct {
	FFprobeBinary string
}

// NewDurationReader returns a reader that shells out to binary for non-FLAC inputs.
func NewDurationReader(binary string) *DurationReader {
	return &DurationReader{FFprobeBinary: binary}
}

// Duration returns the length of the recording at path.
func (p *DurationReader) Duration(ctx context.Context, path string) (float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".flac") {
		info, err := flacinfo.Read(path)
		if err == nil && info.DurationSeconds() > 0 {
			return info.DurationSeconds(), nil
		}
	}
	result, err := ffprobe.Inspect(ctx, p.FFprobeBinary, path)
	if err != nil {
		return 0, err
	}
	return result.DurationSeconds(), nil
}
