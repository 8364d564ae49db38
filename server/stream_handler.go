package server

import (
	"net/http"

	"stemdeck/core/audio"
	"stemdeck/logger"
)

// StreamHandler serves the engine's live mix as an endless WAV stream.
// Every listener gets the same frames the renderer publishes; a
// listener that cannot keep up misses frames rather than stalling the
// engine.
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported by this connection", "")
		return
	}

	frames := h.actx.Output().Subscribe()
	defer h.actx.Output().Unsubscribe(frames)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.StreamHeader()); err != nil {
		return
	}
	flusher.Flush()

	logger.Info("stream listener attached", logger.String("remote", r.RemoteAddr))
	defer logger.Info("stream listener detached", logger.String("remote", r.RemoteAddr))

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if _, err := w.Write(audio.FrameBytes(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
