package model

import "testing"

func sampleManifest() *Manifest {
	return &Manifest{
		Status:    "success",
		JobID:     "my_song",
		Splitter:  "demucs",
		Model:     "htdemucs_6s",
		OutputDir: "separated/htdemucs_6s/my_song",
		Mix:       &Stem{Name: "mix", URL: "/api/stems/my_song/mix", Path: "uploads/my_song.mp3"},
		Stems: []Stem{
			{Name: "vocals", URL: "/api/stems/my_song/vocals", Path: "separated/htdemucs_6s/my_song/vocals.mp3"},
			{Name: "drums", URL: "/api/stems/my_song/drums", Path: "separated/htdemucs_6s/my_song/drums.mp3"},
		},
		ChildSplits: map[string][]ChildStem{
			"vocals": {
				{Name: "lead", URL: "/api/stems/my_song/vocals/lead", Parent: "vocals"},
				{Name: "backing", URL: "/api/stems/my_song/vocals/backing", Parent: "vocals"},
			},
		},
	}
}

func TestPlayerTracks(t *testing.T) {
	tracks := sampleManifest().PlayerTracks()

	want := []string{"mix", "vocals", "drums", "vocals_lead", "vocals_backing"}
	if len(tracks) != len(want) {
		t.Fatalf("PlayerTracks returned %d tracks, want %d", len(tracks), len(want))
	}
	for i, name := range want {
		if tracks[i].Name != name {
			t.Errorf("tracks[%d].Name = %q, want %q", i, tracks[i].Name, name)
		}
	}
	for _, tr := range tracks {
		if tr.Volume != 1.0 || tr.Muted || tr.Soloed {
			t.Errorf("track %q has state (%v, %v, %v), want default (1, false, false)",
				tr.Name, tr.Volume, tr.Muted, tr.Soloed)
		}
	}
}

func TestAddChildrenMergesByName(t *testing.T) {
	m := sampleManifest()

	m.AddChildren("vocals", []ChildStem{
		{Name: "lead", URL: "/api/stems/my_song/vocals/lead?v=2", Path: "new/lead.mp3"},
		{Name: "harmony", URL: "/api/stems/my_song/vocals/harmony"},
	})

	children := m.ChildSplits["vocals"]
	if len(children) != 3 {
		t.Fatalf("got %d children, want 3", len(children))
	}
	if children[0].Name != "lead" || children[0].URL != "/api/stems/my_song/vocals/lead?v=2" {
		t.Errorf("existing child not refreshed in place: %+v", children[0])
	}
	if children[2].Name != "harmony" || children[2].Parent != "vocals" {
		t.Errorf("new child not appended with parent set: %+v", children[2])
	}
}

func TestAddChildrenOnEmptyManifest(t *testing.T) {
	var m Manifest
	m.AddChildren("drums", []ChildStem{{Name: "kick"}})

	if len(m.ChildSplits["drums"]) != 1 {
		t.Fatalf("ChildSplits not initialized: %+v", m.ChildSplits)
	}
}

func TestProjectManifestRoundTrip(t *testing.T) {
	var p Project
	if err := p.SetManifest(sampleManifest()); err != nil {
		t.Fatalf("SetManifest: %v", err)
	}
	if p.JobID != "my_song" || p.Splitter != "demucs" {
		t.Errorf("headline fields not mirrored: jobID=%q splitter=%q", p.JobID, p.Splitter)
	}

	m, err := p.Manifest()
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.Mix == nil || m.Mix.URL != "/api/stems/my_song/mix" {
		t.Errorf("mix lost in round trip: %+v", m.Mix)
	}
	if len(m.Stems) != 2 {
		t.Errorf("got %d stems, want 2", len(m.Stems))
	}
}
