package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors after headers are sent cannot be reported to the
	// client.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response using the application error mapping.
func writeError(w http.ResponseWriter, err error) {
	apperrors.WriteError(w, err)
}
