package server

import (
	"net/http"
	"strconv"

	"github.com/evalstudio/eval-studio/internal/docs"
)

// DocsHandler handles document catalog requests.
type DocsHandler struct {
	catalog *docs.Catalog
}

// NewDocsHandler creates a docs handler.
func NewDocsHandler(catalog *docs.Catalog) *DocsHandler {
	return &DocsHandler{catalog: catalog}
}

// RegisterRoutes registers catalog routes.
func (h *DocsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/documents", h.handleList)
}

// handleList handles GET /api/documents?limit&search&allow_stale&clear_cache.
// Staleness defaults to allowed; a response served from the fallback cache
// carries stale/cached_at markers the client must surface.
func (h *DocsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	result, err := h.catalog.List(r.Context(), docs.ListOptions{
		Search:     query.Get("search"),
		Limit:      limit,
		AllowStale: query.Get("allow_stale") != "false",
		ClearCache: query.Get("clear_cache") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
