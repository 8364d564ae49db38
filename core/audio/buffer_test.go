package audio

import (
	"testing"
	"time"
)

func TestBufferFramesAndDuration(t *testing.T) {
	t.Parallel()

	// One second of stereo samples.
	b := NewBuffer(make([]int16, SampleRate*ChannelCount))
	if got := b.Frames(); got != SampleRate {
		t.Errorf("Frames() = %d, want %d", got, SampleRate)
	}
	if got := b.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want %v", got, time.Second)
	}
}

func TestBufferDropsPartialFrame(t *testing.T) {
	t.Parallel()

	b := NewBuffer(make([]int16, 5))
	if got := b.Frames(); got != 2 {
		t.Errorf("Frames() = %d, want 2 (trailing partial frame dropped)", got)
	}
}

func TestEmptyBuffer(t *testing.T) {
	t.Parallel()

	b := NewBuffer(nil)
	if got := b.Duration(); got != 0 {
		t.Errorf("Duration() = %v, want 0", got)
	}
}
