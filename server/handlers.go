// Package server exposes the engine over HTTP: uploads, separation,
// the project library, stem files, transport and mixer control, a live
// WAV stream of the mix, and a websocket feed of engine events.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"stemdeck/cache"
	"stemdeck/config"
	"stemdeck/core/audio"
	"stemdeck/core/player"
	"stemdeck/core/separator"
	"stemdeck/logger"
	"stemdeck/repository"
	"stemdeck/storage"
)

// APIHandler carries the wired subsystems behind every HTTP endpoint.
type APIHandler struct {
	cfg       *config.Config
	store     *storage.Store
	separator *separator.Service
	engine    *player.Player
	actx      *audio.Context
	projects  repository.ProjectRepository
	cache     *cache.ProjectCache
	mirror    *storage.Mirror
	hub       *Hub
	splitter  player.Splitter

	separating sync.Map // job id -> struct{}, one separation per job
}

// NewAPIHandler creates the handler set around the wired subsystems.
// mirror and splitter may be nil.
func NewAPIHandler(
	cfg *config.Config,
	store *storage.Store,
	sep *separator.Service,
	engine *player.Player,
	actx *audio.Context,
	projects repository.ProjectRepository,
	projectCache *cache.ProjectCache,
	mirror *storage.Mirror,
	hub *Hub,
	splitter player.Splitter,
) *APIHandler {
	return &APIHandler{
		cfg:       cfg,
		store:     store,
		separator: sep,
		engine:    engine,
		actx:      actx,
		projects:  projects,
		cache:     projectCache,
		mirror:    mirror,
		hub:       hub,
		splitter:  splitter,
	}
}

// Routes assembles the HTTP surface.
func (h *APIHandler) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Upload and separation
	router.HandleFunc("/api/upload", h.UploadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/splitters", h.SplittersHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/separate/{jobID}", h.SeparateHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/split-vocals/{jobID}", h.SplitStemHandler("vocals")).Methods(http.MethodPost)
	router.HandleFunc("/api/split-drums/{jobID}", h.SplitStemHandler("drums")).Methods(http.MethodPost)

	// Project library
	router.HandleFunc("/api/projects", h.ProjectsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/browse-folders", h.BrowseFoldersHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/load-project", h.LoadProjectHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/cleanup/{jobID}", h.CleanupHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/add-stem/{jobID}", h.AddStemHandler).Methods(http.MethodPost)

	// Stem files
	router.HandleFunc("/api/stems/{jobID}/{stemPath:.+}", h.StemHandler).Methods(http.MethodGet, http.MethodHead)

	// Engine transport and mixer
	router.HandleFunc("/api/player/load/{jobID}", h.PlayerLoadHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/state", h.PlayerStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/play", h.PlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/pause", h.PauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/seek", h.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/tracks", h.PlayerTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/tracks/{name}/volume", h.VolumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/tracks/{name}/mute", h.MuteHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/tracks/{name}/solo", h.SoloHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/tracks/{name}/split", h.SplitHandler).Methods(http.MethodPost)

	// Live outputs
	router.HandleFunc("/api/player/stream", h.StreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws", h.WSHandler).Methods(http.MethodGet)

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("response encoding failed", logger.ErrorField(err))
	}
}

// respondError writes the error contract shared with the editor
// frontend: {"error": "...", "note": "..."}.
func respondError(w http.ResponseWriter, status int, message, note string) {
	body := map[string]string{"error": message}
	if note != "" {
		body["note"] = note
	}
	respondJSON(w, status, body)
}

// engineError maps engine sentinels onto HTTP statuses.
func engineError(w http.ResponseWriter, err error) {
	var se *player.SplitError
	switch {
	case errors.Is(err, player.ErrTransportBusy):
		respondError(w, http.StatusConflict, "engine is busy with another transport operation", "")
	case errors.Is(err, player.ErrNoPlayableTracks):
		respondError(w, http.StatusUnprocessableEntity, "no track could be loaded for playback", "")
	case errors.Is(err, player.ErrUnknownTrack):
		respondError(w, http.StatusNotFound, "unknown track", "")
	case errors.Is(err, player.ErrNotSplittable):
		respondError(w, http.StatusBadRequest, "only vocal and drum stems can be split", "")
	case errors.Is(err, player.ErrSplitInFlight):
		respondError(w, http.StatusConflict, "a split is already running for this track", "")
	case errors.Is(err, player.ErrNoSplitBackend):
		respondError(w, http.StatusServiceUnavailable, "no split backend configured", "")
	case errors.As(err, &se):
		respondError(w, http.StatusBadGateway, se.Message, se.Note)
	default:
		respondError(w, http.StatusInternalServerError, err.Error(), "")
	}
}

// decodeBody decodes an optional JSON request body into dst. An empty
// body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// UploadHandler accepts a multipart source recording under the "file"
// field and stores it keyed by its sanitized filename.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "could not read upload", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing 'file' field", "")
		return
	}
	defer file.Close()

	if !storage.AllowedExtension(header.Filename) {
		respondError(w, http.StatusBadRequest, "unsupported file type",
			"allowed: "+strings.Join(storage.AllowedExtensions(), ", "))
		return
	}

	jobID := storage.SanitizeJobID(header.Filename)
	ext := strings.ToLower(filepath.Ext(header.Filename))
	path, err := h.store.SaveSource(jobID, ext, file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not store upload", err.Error())
		return
	}

	logger.Info("source uploaded",
		logger.String("job", jobID),
		logger.String("file", filepath.Base(path)),
		logger.Int64("bytes", header.Size))
	respondJSON(w, http.StatusOK, map[string]string{
		"job_id":   jobID,
		"filename": filepath.Base(path),
	})
}

// SplittersHandler lists the separation tools, their models, and
// whether each binary is installed.
func (h *APIHandler) SplittersHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"splitters":        h.separator.Tools(),
		"default_splitter": h.cfg.DefaultSplitter,
		"default_model":    h.cfg.DefaultModel,
	})
}
