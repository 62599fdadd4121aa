package server

import (
	"net/http"
	"strconv"

	"github.com/evalstudio/eval-studio/internal/store"
)

// RunHandler handles run read requests.
type RunHandler struct {
	svc *store.Service
}

// NewRunHandler creates a run handler.
func NewRunHandler(svc *store.Service) *RunHandler {
	return &RunHandler{svc: svc}
}

// RegisterRoutes registers run routes.
func (h *RunHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/runs", h.handleList)
	mux.HandleFunc("GET /api/runs/{id}", h.handleGet)
	mux.HandleFunc("GET /api/runs/{id}/questions/{qid}", h.handleGetQuestion)
}

// handleList handles GET /api/runs?suite_id&limit.
func (h *RunHandler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	runs, err := h.svc.ListRuns(r.Context(), query.Get("suite_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGet handles GET /api/runs/{id}, returning the run plus its
// per-question metrics so far.
func (h *RunHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.svc.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics, err := h.svc.ListQuestionMetrics(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":       run,
		"questions": metrics,
	})
}

// handleGetQuestion handles GET /api/runs/{id}/questions/{qid}.
func (h *RunHandler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetRunQuestion(r.Context(), r.PathValue("id"), r.PathValue("qid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
