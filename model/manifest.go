package model

import "sort"

// Stem is one separated component of a recording, addressable over the
// stem-serving API and on disk.
type Stem struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Path string `json:"path"`
}

// ChildStem is a stem produced by a secondary split of a parent stem,
// e.g. vocals -> lead/backing.
type ChildStem struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Path   string `json:"path"`
	Parent string `json:"parent"`
}

// Manifest describes the complete output of one separation job. The JSON
// field names are the wire contract shared with the editor frontend.
type Manifest struct {
	Status      string                 `json:"status"`
	JobID       string                 `json:"job_id"`
	Splitter    string                 `json:"splitter"`
	Model       string                 `json:"model"`
	OutputDir   string                 `json:"output_dir"`
	Stems       []Stem                 `json:"stems"`
	Mix         *Stem                  `json:"mix,omitempty"`
	ChildSplits map[string][]ChildStem `json:"child_splits,omitempty"`
}

// AddChildren merges split results for a parent stem into the manifest.
// An existing child keeps its position and only has its URL and path
// refreshed; new children are appended.
func (m *Manifest) AddChildren(parent string, children []ChildStem) {
	if m.ChildSplits == nil {
		m.ChildSplits = make(map[string][]ChildStem)
	}
	existing := m.ChildSplits[parent]
	for _, child := range children {
		child.Parent = parent
		found := false
		for i := range existing {
			if existing[i].Name == child.Name {
				existing[i].URL = child.URL
				existing[i].Path = child.Path
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, child)
		}
	}
	m.ChildSplits[parent] = existing
}

// PlayerTracks flattens the manifest into the track set the playback
// engine consumes: the mix first, then stems, then split children named
// "{parent}_{child}". All tracks start with default playback state.
func (m *Manifest) PlayerTracks() []Track {
	tracks := make([]Track, 0, 1+len(m.Stems))
	if m.Mix != nil {
		tracks = append(tracks, NewTrack("mix", m.Mix.URL))
	}
	for _, stem := range m.Stems {
		tracks = append(tracks, NewTrack(stem.Name, stem.URL))
	}

	parents := make([]string, 0, len(m.ChildSplits))
	for parent := range m.ChildSplits {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	for _, parent := range parents {
		for _, child := range m.ChildSplits[parent] {
			tracks = append(tracks, NewTrack(parent+"_"+child.Name, child.URL))
		}
	}
	return tracks
}
