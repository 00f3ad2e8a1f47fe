package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/AppHub/internal/domain"
)

const maxRequestBodySize = 1 << 16 // 64 KB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "validation")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body", "validation")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// writeDomainError maps a service error onto the error envelope. Store and
// unexpected failures are logged and reported without internal detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	switch kind {
	case "not_found":
		writeError(w, http.StatusNotFound, err.Error(), kind)
	case "forbidden":
		writeError(w, http.StatusForbidden, err.Error(), kind)
	case "invalid_operation", "validation":
		writeError(w, http.StatusBadRequest, err.Error(), kind)
	case "store_unavailable":
		slog.ErrorContext(r.Context(), "store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry later", kind)
	default:
		writeInternalError(w, r, err)
	}
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error", "internal")
}
