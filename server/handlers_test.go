package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stemdeck/cache"
	"stemdeck/config"
	"stemdeck/core/audio"
	"stemdeck/core/player"
	"stemdeck/core/separator"
	"stemdeck/repository"
	"stemdeck/storage"
)

func newTestHandler(t *testing.T) *APIHandler {
	t.Helper()
	return newTestHandlerWithSplitter(t, nil)
}

func newTestHandlerWithSplitter(t *testing.T, splitter player.Splitter) *APIHandler {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Host:            "127.0.0.1",
		Port:            "0",
		UploadDir:       filepath.Join(root, "uploads"),
		SeparatedDir:    filepath.Join(root, "separated"),
		MaxUploadMB:     16,
		DemucsPath:      "demucs-not-on-this-host",
		SpleeterPath:    "spleeter-not-on-this-host",
		DefaultSplitter: "demucs",
		DefaultModel:    "htdemucs_6s",
	}

	store, err := storage.NewStore(cfg.UploadDir, cfg.SeparatedDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	actx := audio.NewContext()
	t.Cleanup(actx.Shutdown)
	engine := player.New(actx, newStoreFetcher(store), splitter)

	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	sep := separator.New(separator.Config{
		DemucsPath:   cfg.DemucsPath,
		SpleeterPath: cfg.SpleeterPath,
		SeparatedDir: cfg.SeparatedDir,
		DefaultTool:  cfg.DefaultSplitter,
		DefaultModel: cfg.DefaultModel,
	})

	return NewAPIHandler(cfg, store, sep, engine, actx,
		repository.NewMemoryProjectRepository(),
		cache.NewProjectCache(nil), nil, hub, splitter)
}

func doJSON(t *testing.T, h *APIHandler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

// seedStems writes fake stem files into the standard demucs layout.
func seedStems(t *testing.T, h *APIHandler, jobID string, stems ...string) string {
	t.Helper()
	folder := filepath.Join(h.store.SeparatedDir, "htdemucs", jobID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, stem := range stems {
		path := filepath.Join(folder, stem+".mp3")
		if err := os.WriteFile(path, []byte("audio:"+stem), 0o644); err != nil {
			t.Fatalf("write stem: %v", err)
		}
	}
	return folder
}

func TestUploadHandler(t *testing.T) {
	h := newTestHandler(t)

	body, ct := multipartUpload(t, "file", "My Song.mp3", []byte("mp3data"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	decodeResponse(t, rr, &resp)
	if resp["job_id"] != "My_Song" {
		t.Errorf("job_id = %q, want My_Song", resp["job_id"])
	}
	if _, ok := h.store.SourcePath("My_Song"); !ok {
		t.Error("uploaded source not findable in the store")
	}
}

func TestUploadRejectsBadExtension(t *testing.T) {
	h := newTestHandler(t)

	body, ct := multipartUpload(t, "file", "notes.txt", []byte("text"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp map[string]string
	decodeResponse(t, rr, &resp)
	if resp["error"] == "" || !strings.Contains(resp["note"], "mp3") {
		t.Errorf("error body = %+v", resp)
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	h := newTestHandler(t)

	body, ct := multipartUpload(t, "wrong", "song.mp3", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSplittersHandler(t *testing.T) {
	h := newTestHandler(t)

	rr := doJSON(t, h, http.MethodGet, "/api/splitters", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Splitters []struct {
			Name      string   `json:"name"`
			Models    []string `json:"models"`
			Available bool     `json:"available"`
		} `json:"splitters"`
		DefaultSplitter string `json:"default_splitter"`
		DefaultModel    string `json:"default_model"`
	}
	decodeResponse(t, rr, &resp)
	if len(resp.Splitters) != 2 {
		t.Fatalf("got %d splitters, want 2", len(resp.Splitters))
	}
	if resp.DefaultSplitter != "demucs" || resp.DefaultModel != "htdemucs_6s" {
		t.Errorf("defaults = %q/%q", resp.DefaultSplitter, resp.DefaultModel)
	}
	for _, s := range resp.Splitters {
		if s.Available {
			t.Errorf("splitter %s reported available with a bogus path", s.Name)
		}
		if len(s.Models) == 0 {
			t.Errorf("splitter %s has no models", s.Name)
		}
	}
}

func TestSeparateUnknownJob(t *testing.T) {
	h := newTestHandler(t)

	rr := doJSON(t, h, http.MethodPost, "/api/separate/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestSeparateToolUnavailable(t *testing.T) {
	h := newTestHandler(t)
	if _, err := h.store.SaveSource("song", ".mp3", strings.NewReader("x")); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}

	rr := doJSON(t, h, http.MethodPost, "/api/separate/song", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body %s", rr.Code, rr.Body.String())
	}
}

func TestStemHandlerServesFiles(t *testing.T) {
	h := newTestHandler(t)
	seedStems(t, h, "song", "vocals")

	rr := doJSON(t, h, http.MethodGet, "/api/stems/song/vocals", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Body.String(); got != "audio:vocals" {
		t.Errorf("body = %q", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type = %q", ct)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/stems/song/bass", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing stem status = %d, want 404", rr.Code)
	}
}

func TestStemHandlerNestedChild(t *testing.T) {
	h := newTestHandler(t)
	folder := seedStems(t, h, "song", "vocals")
	child := filepath.Join(folder, "vocals", "lead.wav")
	if err := os.MkdirAll(filepath.Dir(child), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(child, []byte("lead"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rr := doJSON(t, h, http.MethodGet, "/api/stems/song/vocals/lead", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.String() != "lead" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestBrowseFolders(t *testing.T) {
	h := newTestHandler(t)
	seedStems(t, h, "first", "vocals")
	seedStems(t, h, "second", "vocals")

	rr := doJSON(t, h, http.MethodPost, "/api/browse-folders", map[string]string{})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Folders []storage.Folder `json:"folders"`
	}
	decodeResponse(t, rr, &resp)
	if len(resp.Folders) != 1 || resp.Folders[0].Name != "htdemucs" {
		t.Fatalf("folders = %+v", resp.Folders)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/browse-folders",
		map[string]string{"path": resp.Folders[0].Path})
	decodeResponse(t, rr, &resp)
	if len(resp.Folders) != 2 {
		t.Fatalf("job folders = %+v", resp.Folders)
	}
}

func TestBrowseFoldersRejectsEscape(t *testing.T) {
	h := newTestHandler(t)

	rr := doJSON(t, h, http.MethodPost, "/api/browse-folders",
		map[string]string{"path": "/etc"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestLoadProjectFromFolder(t *testing.T) {
	h := newTestHandler(t)
	folder := seedStems(t, h, "song", "vocals", "drums")

	rr := doJSON(t, h, http.MethodPost, "/api/load-project",
		map[string]string{"path": folder})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if h.engine.JobID() != "song" {
		t.Errorf("engine job = %q", h.engine.JobID())
	}
	names := trackNames(h)
	if len(names) != 2 || names[0] != "vocals" || names[1] != "drums" {
		t.Errorf("tracks = %v", names)
	}

	// A project row appears in the library.
	lib := doJSON(t, h, http.MethodGet, "/api/projects", nil)
	var listed struct {
		Projects []struct {
			JobID string `json:"jobId"`
		} `json:"projects"`
	}
	decodeResponse(t, lib, &listed)
	if len(listed.Projects) != 1 || listed.Projects[0].JobID != "song" {
		t.Errorf("projects = %+v", listed.Projects)
	}
}

func TestLoadProjectMissingFolder(t *testing.T) {
	h := newTestHandler(t)

	rr := doJSON(t, h, http.MethodPost, "/api/load-project",
		map[string]string{"path": filepath.Join(h.store.SeparatedDir, "nothing")})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestCleanupRemovesEverything(t *testing.T) {
	h := newTestHandler(t)
	folder := seedStems(t, h, "song", "vocals")
	if _, err := h.store.SaveSource("song", ".mp3", strings.NewReader("x")); err != nil {
		t.Fatalf("SaveSource: %v", err)
	}
	rr := doJSON(t, h, http.MethodPost, "/api/load-project",
		map[string]string{"path": folder})
	if rr.Code != http.StatusOK {
		t.Fatalf("load status = %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodDelete, "/api/cleanup/song", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rr.Code)
	}
	if _, err := os.Stat(folder); !os.IsNotExist(err) {
		t.Error("output folder survived cleanup")
	}
	if _, ok := h.store.SourcePath("song"); ok {
		t.Error("source survived cleanup")
	}
	lib := doJSON(t, h, http.MethodGet, "/api/projects", nil)
	var listed struct {
		Projects []json.RawMessage `json:"projects"`
	}
	decodeResponse(t, lib, &listed)
	if len(listed.Projects) != 0 {
		t.Errorf("library still has %d projects", len(listed.Projects))
	}
}

func TestAddStem(t *testing.T) {
	h := newTestHandler(t)
	folder := seedStems(t, h, "song", "vocals")

	body, ct := multipartUpload(t, "file", "click track.wav", []byte("tick"))
	req := httptest.NewRequest(http.MethodPost, "/api/add-stem/song", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Stem struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"stem"`
	}
	decodeResponse(t, rr, &resp)
	if resp.Stem.Name != "click_track" {
		t.Errorf("stem name = %q", resp.Stem.Name)
	}
	if resp.Stem.URL != "/api/stems/song/click_track" {
		t.Errorf("stem url = %q", resp.Stem.URL)
	}
	if _, err := os.Stat(filepath.Join(folder, "click_track.wav")); err != nil {
		t.Errorf("stem file missing: %v", err)
	}
}

func TestAddStemUnknownJob(t *testing.T) {
	h := newTestHandler(t)

	body, ct := multipartUpload(t, "file", "x.wav", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/add-stem/missing", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func trackNames(h *APIHandler) []string {
	tracks := h.engine.Tracks()
	names := make([]string, len(tracks))
	for i, tr := range tracks {
		names[i] = tr.Name
	}
	return names
}
