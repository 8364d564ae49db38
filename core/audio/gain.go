package audio

import (
	"math"
	"sync/atomic"
)

// Gain is one track's applied loudness. It outlives playback handles:
// the gain stage keeps writing it across play/pause/seek cycles while
// the renderer reads it every quantum, so access is atomic.
type Gain struct {
	bits atomic.Uint64
}

// NewGain returns a gain initialized to v.
func NewGain(v float64) *Gain {
	g := &Gain{}
	g.Set(v)
	return g
}

// Set replaces the applied gain. Takes effect on the next render quantum.
func (g *Gain) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Value returns the currently applied gain.
func (g *Gain) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}
