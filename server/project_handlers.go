package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"stemdeck/core/player"
	"stemdeck/core/separator"
	"stemdeck/logger"
	"stemdeck/model"
	"stemdeck/storage"
)

type separateRequest struct {
	Splitter string `json:"splitter"`
	Model    string `json:"model"`
}

// SeparateHandler runs a separation for an uploaded job and responds
// with the produced manifest. One separation per job runs at a time;
// progress is pushed to websocket clients as stems appear.
func (h *APIHandler) SeparateHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	src, ok := h.store.SourcePath(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "no uploaded source for job "+jobID, "")
		return
	}

	var req separateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}

	if _, running := h.separating.LoadOrStore(jobID, struct{}{}); running {
		respondError(w, http.StatusConflict, "separation already running for "+jobID, "")
		return
	}
	defer h.separating.Delete(jobID)

	manifest, err := h.separator.Separate(r.Context(), separator.Request{
		JobID:      jobID,
		SourcePath: src,
		Tool:       req.Splitter,
		Model:      req.Model,
		Progress: func(stem, path string) {
			h.hub.Broadcast("separation_progress", map[string]string{
				"job":  jobID,
				"stem": stem,
			})
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, separator.ErrUnknownTool), errors.Is(err, separator.ErrUnknownModel):
			respondError(w, http.StatusBadRequest, err.Error(), "")
		case errors.Is(err, separator.ErrToolUnavailable):
			respondError(w, http.StatusServiceUnavailable, err.Error(),
				"install the tool or point its path variable at the binary")
		default:
			respondError(w, http.StatusInternalServerError, "separation failed", err.Error())
		}
		return
	}

	h.persistManifest(r.Context(), manifest, src)
	if h.mirror != nil {
		go h.mirror.MirrorManifest(context.Background(), manifest)
	}
	respondJSON(w, http.StatusOK, manifest)
}

// persistManifest records a manifest in the project library and cache.
// Failures are logged, never surfaced: the separation already happened.
func (h *APIHandler) persistManifest(ctx context.Context, m *model.Manifest, sourceFile string) {
	if sourceFile == "" {
		if p, err := h.projects.GetByJobID(ctx, m.JobID); err == nil && p != nil {
			sourceFile = p.SourceFile
		} else if src, ok := h.store.SourcePath(m.JobID); ok {
			sourceFile = src
		}
	}
	project := &model.Project{SourceFile: sourceFile}
	if err := project.SetManifest(m); err != nil {
		logger.Warn("manifest not persistable", logger.ErrorField(err))
		return
	}
	if err := h.projects.Upsert(ctx, project); err != nil {
		logger.Warn("project row not saved",
			logger.String("job", m.JobID),
			logger.ErrorField(err))
	}
	if err := h.cache.SetManifest(ctx, m); err != nil {
		logger.Warn("manifest not cached",
			logger.String("job", m.JobID),
			logger.ErrorField(err))
	}
}

// lookupManifest resolves a job's manifest: cache first, then the
// project library, then a fresh scan of the output folder.
func (h *APIHandler) lookupManifest(ctx context.Context, jobID string) *model.Manifest {
	if m, err := h.cache.GetManifest(ctx, jobID); err == nil && m != nil {
		return m
	}
	if p, err := h.projects.GetByJobID(ctx, jobID); err == nil && p != nil {
		if m, err := p.Manifest(); err == nil {
			return m
		}
	}
	if folder, ok := h.store.JobFolder(jobID); ok {
		if m, err := separator.Scan(jobID, folder); err == nil && len(m.Stems) > 0 {
			return m
		}
	}
	return nil
}

// ProjectsHandler lists the project library, newest first.
func (h *APIHandler) ProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not list projects", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

type browseRequest struct {
	Path string `json:"path"`
}

// BrowseFoldersHandler lists candidate project folders under the
// separated tree, newest first. Paths outside the tree are rejected.
func (h *APIHandler) BrowseFoldersHandler(w http.ResponseWriter, r *http.Request) {
	var req browseRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	base := req.Path
	if base == "" {
		base = h.store.SeparatedDir
	}
	resolved, ok := h.underSeparatedDir(base)
	if !ok {
		respondError(w, http.StatusBadRequest, "path is outside the separated directory", "")
		return
	}

	folders, err := storage.ListFolders(resolved)
	if err != nil {
		respondError(w, http.StatusNotFound, "could not read folder", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

// underSeparatedDir resolves a path and reports whether it stays inside
// the separated tree.
func (h *APIHandler) underSeparatedDir(path string) (string, bool) {
	base, err := filepath.Abs(h.store.SeparatedDir)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	if resolved == base {
		return resolved, true
	}
	return resolved, strings.HasPrefix(resolved, base+string(filepath.Separator))
}

type loadProjectRequest struct {
	Path string `json:"path"`
}

// LoadProjectHandler scans a previously separated folder and loads its
// stems into the engine.
func (h *APIHandler) LoadProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req loadProjectRequest
	if err := decodeBody(r, &req); err != nil || req.Path == "" {
		respondError(w, http.StatusBadRequest, "missing 'path' in request body", "")
		return
	}
	folder, ok := h.underSeparatedDir(req.Path)
	if !ok {
		respondError(w, http.StatusBadRequest, "path is outside the separated directory", "")
		return
	}

	jobID := filepath.Base(folder)
	manifest, err := separator.Scan(jobID, folder)
	if err != nil || (len(manifest.Stems) == 0 && manifest.Mix == nil) {
		respondError(w, http.StatusNotFound, "no stems found in folder", "")
		return
	}

	if err := h.loadIntoEngine(jobID, manifest); err != nil {
		engineError(w, err)
		return
	}
	h.persistManifest(r.Context(), manifest, "")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"manifest": manifest,
		"tracks":   h.engine.Tracks(),
	})
}

// loadIntoEngine replaces the engine's track set with a manifest's
// stems, adding a mix track backed by the uploaded original when the
// manifest itself has none.
func (h *APIHandler) loadIntoEngine(jobID string, manifest *model.Manifest) error {
	tracks := manifest.PlayerTracks()
	if manifest.Mix == nil {
		if _, ok := h.store.SourcePath(jobID); ok {
			mix := model.NewTrack("mix", separator.StemURL(jobID, "mix"))
			tracks = append([]model.Track{mix}, tracks...)
		}
	}
	return h.engine.LoadProject(jobID, tracks)
}

// CleanupHandler removes a job's files, library row, cache entries and
// mirrored objects.
func (h *APIHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]

	if err := h.store.RemoveJob(jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "could not remove job files", err.Error())
		return
	}
	if err := h.projects.Delete(r.Context(), jobID); err != nil {
		logger.Warn("project row not deleted",
			logger.String("job", jobID),
			logger.ErrorField(err))
	}
	if err := h.cache.Invalidate(r.Context(), jobID); err != nil {
		logger.Warn("cache not invalidated",
			logger.String("job", jobID),
			logger.ErrorField(err))
	}
	if h.mirror != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			h.mirror.RemoveJob(ctx, jobID)
		}()
	}

	logger.Info("job removed", logger.String("job", jobID))
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed", "job_id": jobID})
}

// AddStemHandler stores an extra stem file in a job's output folder and
// registers it in the manifest.
func (h *APIHandler) AddStemHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]

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

	name, path, err := h.store.SaveStem(jobID, header.Filename, file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not store stem", err.Error())
		return
	}
	stem := model.Stem{Name: name, URL: separator.StemURL(jobID, name), Path: path}

	// Keep the persisted manifest in step when the job is in the library.
	if p, err := h.projects.GetByJobID(r.Context(), jobID); err == nil && p != nil {
		if m, err := p.Manifest(); err == nil {
			replaced := false
			for i := range m.Stems {
				if m.Stems[i].Name == stem.Name {
					m.Stems[i] = stem
					replaced = true
					break
				}
			}
			if !replaced {
				m.Stems = append(m.Stems, stem)
			}
			h.persistManifest(r.Context(), m, p.SourceFile)
		}
	}

	logger.Info("stem added",
		logger.String("job", jobID),
		logger.String("stem", name))
	respondJSON(w, http.StatusOK, map[string]interface{}{"stem": stem})
}

// SplitStemHandler decomposes a produced stem through the configured
// split backend and reports the children in the manifest's child_splits
// shape. The endpoint works from disk, without the job being loaded in
// the engine, so one instance can serve as another's split backend.
func (h *APIHandler) SplitStemHandler(parent string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := mux.Vars(r)["jobID"]
		if h.splitter == nil {
			engineError(w, player.ErrNoSplitBackend)
			return
		}

		children, err := h.splitter.Split(r.Context(), jobID, parent)
		if err != nil {
			engineError(w, err)
			return
		}

		if h.mirror != nil {
			go h.mirror.MirrorChildren(context.Background(), jobID, children)
		}
		if m := h.lookupManifest(r.Context(), jobID); m != nil {
			m.AddChildren(parent, children)
			h.persistManifest(r.Context(), m, "")
		}

		logger.Info("stem split",
			logger.String("job", jobID),
			logger.String("parent", parent),
			logger.Int("children", len(children)))
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"child_splits": map[string][]model.ChildStem{parent: children},
		})
	}
}
