package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"stemdeck/storage"
)

// StemHandler serves a stem file. The stem path may be flat ("vocals"),
// nested ("vocals/lead"), or the literal "mix" for the uploaded
// original. Range requests are honored so editors can scrub.
func (h *APIHandler) StemHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	path, err := h.store.ResolveStem(vars["jobID"], vars["stemPath"])
	if err != nil {
		if errors.Is(err, storage.ErrStemNotFound) {
			respondError(w, http.StatusNotFound, "stem not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not resolve stem", err.Error())
		return
	}

	w.Header().Set("Content-Type", storage.ContentTypeFor(path))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}
