package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(filepath.Join(root, "uploads"), filepath.Join(root, "separated"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSanitizeJobID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"My Song.mp3", "My_Song"},
		{"track-01_final.flac", "track-01_final"},
		{"héllo.mp3", "h_llo"},
		{"weird/../name.wav", "name"},
		{"...mp3", "job"},
		{"", "job"},
	}
	for _, c := range cases {
		if got := SanitizeJobID(c.in); got != c.want {
			t.Errorf("SanitizeJobID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAllowedExtension(t *testing.T) {
	for _, name := range []string{"song.mp3", "song.MP3", "take.wav", "clip.ogg", "a.aiff"} {
		if !AllowedExtension(name) {
			t.Errorf("AllowedExtension(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"notes.txt", "song", "archive.zip"} {
		if AllowedExtension(name) {
			t.Errorf("AllowedExtension(%q) = true, want false", name)
		}
	}
}

func TestSaveSourceAndSourcePath(t *testing.T) {
	s := newTestStore(t)

	path, err := s.SaveSource("song", ".mp3", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("SaveSource: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload" {
		t.Fatalf("saved file = %q, %v", data, err)
	}

	got, ok := s.SourcePath("song")
	if !ok || got != path {
		t.Fatalf("SourcePath = %q, %v; want %q, true", got, ok, path)
	}
	if _, ok := s.SourcePath("missing"); ok {
		t.Fatal("SourcePath found a job that was never saved")
	}

	if _, err := s.SaveSource("song", ".txt", strings.NewReader("x")); err == nil {
		t.Fatal("SaveSource accepted a non-audio extension")
	}
	if _, err := s.SaveSource("../song", ".mp3", strings.NewReader("x")); err == nil {
		t.Fatal("SaveSource accepted a traversing job id")
	}
}

func TestResolveStemFlatLayout(t *testing.T) {
	s := newTestStore(t)
	want := filepath.Join(s.SeparatedDir, "htdemucs", "song", "vocals.mp3")
	writeFile(t, want)

	got, err := s.ResolveStem("song", "vocals")
	if err != nil {
		t.Fatalf("ResolveStem: %v", err)
	}
	if got != want {
		t.Fatalf("ResolveStem = %q, want %q", got, want)
	}
}

func TestResolveStemNestedChild(t *testing.T) {
	s := newTestStore(t)
	want := filepath.Join(s.SeparatedDir, "htdemucs", "song", "vocals", "lead.wav")
	writeFile(t, want)

	got, err := s.ResolveStem("song", "vocals/lead")
	if err != nil {
		t.Fatalf("ResolveStem nested: %v", err)
	}
	if got != want {
		t.Fatalf("ResolveStem nested = %q, want %q", got, want)
	}
}

func TestResolveStemSpleeterLayout(t *testing.T) {
	s := newTestStore(t)
	want := filepath.Join(s.SeparatedDir, "song", "accompaniment.wav")
	writeFile(t, want)

	got, err := s.ResolveStem("song", "accompaniment")
	if err != nil || got != want {
		t.Fatalf("ResolveStem = %q, %v; want %q", got, err, want)
	}
}

func TestResolveStemGenericWalk(t *testing.T) {
	s := newTestStore(t)
	want := filepath.Join(s.SeparatedDir, "custom_model", "song", "drums.mp3")
	writeFile(t, want)

	got, err := s.ResolveStem("song", "drums")
	if err != nil || got != want {
		t.Fatalf("ResolveStem = %q, %v; want %q", got, err, want)
	}
}

func TestResolveMixPrefersUpload(t *testing.T) {
	s := newTestStore(t)
	mixture := filepath.Join(s.SeparatedDir, "htdemucs", "song", "mixture.mp3")
	writeFile(t, mixture)
	uploaded, err := s.SaveSource("song", ".wav", strings.NewReader("original"))
	if err != nil {
		t.Fatalf("SaveSource: %v", err)
	}

	got, err := s.ResolveStem("song", "mix")
	if err != nil || got != uploaded {
		t.Fatalf("mix = %q, %v; want the upload %q", got, err, uploaded)
	}

	os.Remove(uploaded)
	got, err = s.ResolveStem("song", "mix")
	if err != nil || got != mixture {
		t.Fatalf("mix fallback = %q, %v; want %q", got, err, mixture)
	}
}

func TestResolveStemRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	writeFile(t, filepath.Join(s.SeparatedDir, "htdemucs", "song", "vocals.mp3"))

	for _, bad := range [][2]string{
		{"song", "../secret"},
		{"song", "vocals/../../secret"},
		{"../song", "vocals"},
		{"song", ""},
	} {
		if _, err := s.ResolveStem(bad[0], bad[1]); !errors.Is(err, ErrStemNotFound) {
			t.Errorf("ResolveStem(%q, %q) err = %v, want ErrStemNotFound", bad[0], bad[1], err)
		}
	}
}

func TestResolveStemMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ResolveStem("song", "vocals"); !errors.Is(err, ErrStemNotFound) {
		t.Fatalf("err = %v, want ErrStemNotFound", err)
	}
}

func TestRemoveJob(t *testing.T) {
	s := newTestStore(t)
	uploaded, err := s.SaveSource("song", ".mp3", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("SaveSource: %v", err)
	}
	stem := filepath.Join(s.SeparatedDir, "htdemucs", "song", "vocals.mp3")
	writeFile(t, stem)
	other := filepath.Join(s.SeparatedDir, "htdemucs", "other", "vocals.mp3")
	writeFile(t, other)

	if err := s.RemoveJob("song"); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if _, err := os.Stat(uploaded); !os.IsNotExist(err) {
		t.Error("uploaded source still present after RemoveJob")
	}
	if _, err := os.Stat(filepath.Dir(stem)); !os.IsNotExist(err) {
		t.Error("output folder still present after RemoveJob")
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("unrelated job was touched: %v", err)
	}
}

func TestJobFolderAndSaveStem(t *testing.T) {
	s := newTestStore(t)
	folder := filepath.Join(s.SeparatedDir, "htdemucs", "song")
	writeFile(t, filepath.Join(folder, "vocals.mp3"))

	got, ok := s.JobFolder("song")
	if !ok || got != folder {
		t.Fatalf("JobFolder = %q, %v; want %q", got, ok, folder)
	}

	name, path, err := s.SaveStem("song", "click track.wav", strings.NewReader("tick"))
	if err != nil {
		t.Fatalf("SaveStem: %v", err)
	}
	if name != "click_track" {
		t.Errorf("stem name = %q, want click_track", name)
	}
	if want := filepath.Join(folder, "click_track.wav"); path != want {
		t.Errorf("stem path = %q, want %q", path, want)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "tick" {
		t.Errorf("stem content = %q, %v", data, err)
	}

	if _, _, err := s.SaveStem("missing", "x.wav", strings.NewReader("x")); err == nil {
		t.Error("SaveStem accepted a job with no output folder")
	}
	if _, _, err := s.SaveStem("song", "x.txt", strings.NewReader("x")); err == nil {
		t.Error("SaveStem accepted a non-audio extension")
	}
}

func TestListFoldersNewestFirst(t *testing.T) {
	base := t.TempDir()
	now := time.Now()
	for i, name := range []string{"oldest", "middle", "newest"} {
		dir := filepath.Join(base, name)
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		stamp := now.Add(time.Duration(i-3) * time.Hour)
		if err := os.Chtimes(dir, stamp, stamp); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	writeFile(t, filepath.Join(base, "stray.txt"))

	folders, err := ListFolders(base)
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 3 {
		t.Fatalf("got %d folders, want 3", len(folders))
	}
	wantOrder := []string{"newest", "middle", "oldest"}
	for i, want := range wantOrder {
		if folders[i].Name != want {
			t.Errorf("folders[%d] = %q, want %q", i, folders[i].Name, want)
		}
		if folders[i].Path != filepath.Join(base, want) {
			t.Errorf("folders[%d].Path = %q", i, folders[i].Path)
		}
	}
}
