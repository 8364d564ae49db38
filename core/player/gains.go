package player

import (
	"sync"

	"stemdeck/core/audio"
	"stemdeck/model"
)

// TrackState is the per-track gain tuple the stage maintains.
type TrackState struct {
	Volume float64
	Muted  bool
	Soloed bool
}

// GainStage owns every track's (volume, muted, soloed) tuple and its
// persistent gain control. Mutations recompute the effective gain and
// apply it immediately, audible mid-playback without a restart.
// Controls are created lazily on first wiring and survive across
// play/pause/seek cycles.
type GainStage struct {
	mu       sync.Mutex
	states   map[string]*TrackState
	controls map[string]*audio.Gain
}

// NewGainStage returns an empty stage.
func NewGainStage() *GainStage {
	return &GainStage{
		states:   make(map[string]*TrackState),
		controls: make(map[string]*audio.Gain),
	}
}

// Register seeds a track's gain tuple from its record. Existing state
// is kept; registering is idempotent.
func (s *GainStage) Register(t model.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[t.Name]; ok {
		return
	}
	s.states[t.Name] = &TrackState{
		Volume: clampVolume(t.Volume),
		Muted:  t.Muted,
		Soloed: t.Soloed,
	}
}

// SetVolume sets a track's volume, clamped to [0, 1], and reapplies
// that track's effective gain.
func (s *GainStage) SetVolume(name string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return ErrUnknownTrack
	}
	st.Volume = clampVolume(v)
	s.applyLocked(name)
	return nil
}

// ToggleMute flips a track's mute flag and reapplies that track's
// effective gain. Returns the new flag.
func (s *GainStage) ToggleMute(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return false, ErrUnknownTrack
	}
	st.Muted = !st.Muted
	s.applyLocked(name)
	return st.Muted, nil
}

// ToggleSolo flips a track's solo flag. Because "any soloed" is global,
// every track's effective gain is recomputed. Returns the new flag.
func (s *GainStage) ToggleSolo(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return false, ErrUnknownTrack
	}
	st.Soloed = !st.Soloed
	for other := range s.states {
		s.applyLocked(other)
	}
	return st.Soloed, nil
}

// Control returns the track's persistent gain control, creating it on
// first use with the current effective gain already applied.
func (s *GainStage) Control(name string) *audio.Gain {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[name]; !ok {
		s.states[name] = &TrackState{Volume: 1.0}
	}
	g, ok := s.controls[name]
	if !ok {
		g = audio.NewGain(s.effectiveLocked(name))
		s.controls[name] = g
	} else {
		// Re-wiring an existing control: make sure it carries the
		// current effective value, not a stale one.
		g.Set(s.effectiveLocked(name))
	}
	return g
}

// State returns a track's gain tuple.
func (s *GainStage) State(name string) (TrackState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[name]
	if !ok {
		return TrackState{}, false
	}
	return *st, true
}

// Effective computes a track's effective gain under the current global
// solo state.
func (s *GainStage) Effective(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveLocked(name)
}

// Merge returns copies of tracks with the stage's current gain state
// written back onto the records.
func (s *GainStage) Merge(tracks []model.Track) []model.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Track, len(tracks))
	for i, t := range tracks {
		if st, ok := s.states[t.Name]; ok {
			t.Volume = st.Volume
			t.Muted = st.Muted
			t.Soloed = st.Soloed
		}
		out[i] = t
	}
	return out
}

// applyLocked writes a track's effective gain to its control, if one
// exists yet.
func (s *GainStage) applyLocked(name string) {
	if g, ok := s.controls[name]; ok {
		g.Set(s.effectiveLocked(name))
	}
}

// effectiveLocked resolves the solo/mute/volume rule:
// with any track soloed, only soloed-and-unmuted tracks sound at their
// volume; otherwise every unmuted track sounds at its volume.
func (s *GainStage) effectiveLocked(name string) float64 {
	st, ok := s.states[name]
	if !ok {
		return 0
	}
	if s.anySoloedLocked() {
		if st.Soloed && !st.Muted {
			return st.Volume
		}
		return 0
	}
	if st.Muted {
		return 0
	}
	return st.Volume
}

func (s *GainStage) anySoloedLocked() bool {
	for _, st := range s.states {
		if st.Soloed {
			return true
		}
	}
	return false
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
