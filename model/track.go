package model

// Track is one named audio source in the player's active set.
// Volume is clamped to [0, 1]; mute/solo resolution happens in the
// engine's gain stage, the record only carries the last known state.
type Track struct {
	Name   string  `json:"name"`
	URL    string  `json:"url"`
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
	Soloed bool    `json:"soloed"`
}

// NewTrack returns a track with default playback state.
func NewTrack(name, url string) Track {
	return Track{Name: name, URL: url, Volume: 1.0}
}
