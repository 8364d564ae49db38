package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"stemdeck/core/player"
	"stemdeck/logger"
)

// PlayerLoadHandler loads a separated job into the engine, replacing
// whatever was loaded before.
func (h *APIHandler) PlayerLoadHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]

	manifest := h.lookupManifest(r.Context(), jobID)
	if manifest == nil {
		respondError(w, http.StatusNotFound, "no separation found for job "+jobID, "")
		return
	}

	if err := h.loadIntoEngine(jobID, manifest); err != nil {
		engineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "loaded",
		"job_id": jobID,
		"tracks": h.engine.Tracks(),
	})
}

// PlayerStateHandler reports the transport snapshot.
func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.State())
}

// PlayHandler starts synchronized playback of every loaded track from
// the current position.
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Play(r.Context()); err != nil {
		engineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.State())
}

// PauseHandler freezes playback at the current position.
func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Pause(); err != nil {
		engineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.State())
}

type seekRequest struct {
	Time float64 `json:"time"`
}

// SeekHandler moves the playhead to a position in seconds, clamped to
// the loaded duration.
func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	target := time.Duration(req.Time * float64(time.Second))
	if err := h.engine.Seek(r.Context(), target); err != nil {
		engineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.State())
}

// PlayerTracksHandler reports the loaded track set with its gain state
// and parent/child grouping.
func (h *APIHandler) PlayerTracksHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, player.TracksData{
		JobID:     h.engine.JobID(),
		Tracks:    h.engine.Tracks(),
		Hierarchy: h.engine.Hierarchy(),
	})
}

type volumeRequest struct {
	Volume float64 `json:"volume"`
}

// VolumeHandler sets a track's volume, clamped to [0, 1].
func (h *APIHandler) VolumeHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req volumeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	if err := h.engine.SetVolume(name, req.Volume); err != nil {
		engineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"track":  name,
		"tracks": h.engine.Tracks(),
	})
}

// MuteHandler toggles a track's mute flag.
func (h *APIHandler) MuteHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	muted, err := h.engine.ToggleMute(name)
	if err != nil {
		engineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"track": name,
		"muted": muted,
	})
}

// SoloHandler toggles a track's solo flag.
func (h *APIHandler) SoloHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	soloed, err := h.engine.ToggleSolo(name)
	if err != nil {
		engineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"track":  name,
		"soloed": soloed,
	})
}

// SplitHandler runs a secondary split on a parent stem and merges the
// produced children into the track set. The request blocks until the
// backend finishes.
func (h *APIHandler) SplitHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	children, err := h.engine.RequestSplit(r.Context(), name)
	if err != nil {
		engineError(w, err)
		return
	}

	jobID := h.engine.JobID()
	if h.mirror != nil {
		go h.mirror.MirrorChildren(context.Background(), jobID, children)
	}
	// The manifest on record grows the new children too.
	if m := h.lookupManifest(r.Context(), jobID); m != nil {
		m.AddChildren(name, children)
		h.persistManifest(r.Context(), m, "")
	}

	logger.Info("split merged",
		logger.String("job", jobID),
		logger.String("track", name),
		logger.Int("children", len(children)))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"track":    name,
		"children": children,
		"tracks":   h.engine.Tracks(),
	})
}
