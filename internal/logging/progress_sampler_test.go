package logging

import "testing"

func TestProgressSamplerEmitsOnStepChange(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.Observe("Converting", 0) {
		t.Fatal("first observation should emit")
	}
	if s.Observe("Converting", 3) {
		t.Fatal("same bucket should not emit")
	}
	if !s.Observe(" Uploading ", 3) {
		t.Fatal("step change should emit")
	}
	if s.lastStep != "Uploading" {
		t.Fatalf("lastStep = %q, want trimmed label", s.lastStep)
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		percent int
		want    bool
	}{
		{0, true},
		{20, false},
		{25, true},
		{49, false},
		{50, true},
		{99, true},
		{100, true},
		{100, false},
		{140, false},
	}
	for _, step := range steps {
		if got := s.Observe("Transcribing", step.percent); got != step.want {
			t.Fatalf("Observe(%d) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucket != 10 {
		t.Fatalf("default bucket = %d, want 10", s.bucket)
	}
	if !s.Observe("Polling", -1) {
		t.Fatal("step change with unknown percent should emit")
	}
	if s.Observe("Polling", -1) {
		t.Fatal("unknown percent should not emit on its own")
	}
}

func TestProgressSamplerResetAndNil(t *testing.T) {
	var nilSampler *ProgressSampler
	if !nilSampler.Observe("x", 5) {
		t.Fatal("nil sampler should always emit")
	}
	nilSampler.Reset()

	s := NewProgressSampler(10)
	s.Observe("Converting", 50)
	s.Reset()
	if !s.Observe("Converting", 50) {
		t.Fatal("observation after reset should emit")
	}
}
