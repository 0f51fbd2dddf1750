package logging

import "strings"

// ProgressSampler throttles per-file progress reporting. It emits when the
// step label changes, when the percentage enters a new bucket, and always at
// completion.
type ProgressSampler struct {
	bucket     int
	lastStep   string
	lastBucket int
}

// NewProgressSampler returns a sampler with the given bucket width (default 10).
func NewProgressSampler(bucket int) *ProgressSampler {
	if bucket <= 0 {
		bucket = 10
	}
	return &ProgressSampler{bucket: bucket, lastBucket: -1}
}

// Observe reports whether an update for step at percent should be forwarded.
func (s *ProgressSampler) Observe(step string, percent int) bool {
	if s == nil {
		return true
	}
	step = strings.TrimSpace(step)
	emit := false
	if step != s.lastStep {
		s.lastStep = step
		s.lastBucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	if percent > 100 {
		percent = 100
	}
	b := percent / s.bucket
	if percent == 100 {
		b = 100/s.bucket + 1
	}
	if b > s.lastBucket {
		s.lastBucket = b
		emit = true
	}
	return emit
}

// Reset forgets the last observed step and bucket.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStep = ""
	s.lastBucket = -1
}
