// Package audio implements the real-time mixing subsystem the playback
// engine drives: decoded sample buffers, per-track gain controls, live
// playback handles, and a ticker-paced renderer that mixes all live
// handles into a single PCM output fanned out to sinks.
package audio

import "time"

const (
	// SampleRate is the engine's fixed output rate. Decoded sources are
	// resampled to it.
	SampleRate = 44100

	// ChannelCount is the engine's fixed channel layout (stereo).
	ChannelCount = 2

	// BytesPerSample is the output sample width (int16).
	BytesPerSample = 2

	// FrameDuration is the render quantum.
	FrameDuration = 20 * time.Millisecond

	// QuantumFrames is the number of sample frames per render quantum.
	QuantumFrames = SampleRate / 50
)

// Buffer holds fully decoded audio: interleaved int16 stereo at
// SampleRate. Buffers are immutable after creation and shared freely
// between the cache, handles and the renderer.
type Buffer struct {
	samples []int16
}

// NewBuffer wraps interleaved stereo samples. A trailing partial frame
// is dropped.
func NewBuffer(samples []int16) *Buffer {
	n := len(samples) - len(samples)%ChannelCount
	return &Buffer{samples: samples[:n]}
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	return len(b.samples) / ChannelCount
}

// Duration returns the buffer's play time at the engine rate.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / SampleRate
}
