package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lectern-ai/lectern/internal/core"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the typed domain errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation  *core.ValidationError
		unsupported *core.UnsupportedFormatError
		notFound    *core.NotFoundError
	)
	switch {
	case errors.As(err, &unsupported):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": unsupported.Error()})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
