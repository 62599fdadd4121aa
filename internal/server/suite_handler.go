package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/evalstudio/eval-studio/internal/bus"
	"github.com/evalstudio/eval-studio/internal/evaluation"
	"github.com/evalstudio/eval-studio/internal/generator"
	apperrors "github.com/evalstudio/eval-studio/internal/pkg/errors"
	"github.com/evalstudio/eval-studio/internal/pkg/logger"
	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

// SuiteHandler handles suite, question, and run-creation requests.
type SuiteHandler struct {
	svc       *store.Service
	generator *generator.Generator
	executor  *evaluation.Executor
	events    bus.Bus
	log       *logger.Logger
}

// NewSuiteHandler creates a suite handler.
func NewSuiteHandler(svc *store.Service, gen *generator.Generator, exec *evaluation.Executor, events bus.Bus, log *logger.Logger) *SuiteHandler {
	return &SuiteHandler{
		svc:       svc,
		generator: gen,
		executor:  exec,
		events:    events,
		log:       log,
	}
}

// RegisterRoutes registers suite routes.
func (h *SuiteHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/suites", h.handleList)
	mux.HandleFunc("POST /api/suites", h.handleCreate)
	mux.HandleFunc("GET /api/suites/{id}", h.handleGet)
	mux.HandleFunc("POST /api/suites/{id}/spec", h.handleUpdateSpec)
	mux.HandleFunc("POST /api/suites/{id}/questions/import-yaml", h.handleImportYAML)
	mux.HandleFunc("POST /api/suites/{id}/questions/auto-generate", h.handleAutoGenerate)
	mux.HandleFunc("POST /api/suites/{id}/runs", h.handleCreateRun)
}

// handleList handles GET /api/suites.
func (h *SuiteHandler) handleList(w http.ResponseWriter, r *http.Request) {
	suites, err := h.svc.ListSuites(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suites": suites})
}

type createSuiteRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Spec        suite.Spec `json:"suite_spec"`
}

// handleCreate handles POST /api/suites.
func (h *SuiteHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSuiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidRequestError("invalid request body"))
		return
	}

	st, err := h.svc.CreateSuite(r.Context(), req.Name, req.Description, req.Spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"suite_id": st.ID,
		"suite":    st,
	})
}

// handleGet handles GET /api/suites/{id}.
func (h *SuiteHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := h.svc.GetSuite(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	questions, err := h.svc.ListQuestions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suite":     st,
		"questions": questions,
	})
}

type updateSpecRequest struct {
	Spec json.RawMessage `json:"suite_spec"`
}

// handleUpdateSpec handles POST /api/suites/{id}/spec.
func (h *SuiteHandler) handleUpdateSpec(w http.ResponseWriter, r *http.Request) {
	var req updateSpecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidRequestError("invalid request body"))
		return
	}
	if len(req.Spec) == 0 {
		writeError(w, apperrors.InvalidRequestError("suite_spec is required"))
		return
	}

	st, err := h.svc.UpdateSpec(r.Context(), r.PathValue("id"), req.Spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suite": st})
}

type importYAMLRequest struct {
	YAML string `json:"yaml"`
}

// handleImportYAML handles POST /api/suites/{id}/questions/import-yaml.
func (h *SuiteHandler) handleImportYAML(w http.ResponseWriter, r *http.Request) {
	var req importYAMLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidRequestError("invalid request body"))
		return
	}
	if strings.TrimSpace(req.YAML) == "" {
		writeError(w, apperrors.InvalidRequestError("yaml is required"))
		return
	}

	report, err := h.svc.ImportQuestions(r.Context(), r.PathValue("id"), req.YAML)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleAutoGenerate handles POST /api/suites/{id}/questions/auto-generate.
func (h *SuiteHandler) handleAutoGenerate(w http.ResponseWriter, r *http.Request) {
	var req generator.Request
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.InvalidRequestError("invalid request body"))
			return
		}
	}

	result, err := h.generator.Generate(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createRunRequest struct {
	SpecOverride json.RawMessage `json:"suite_spec_override"`
}

// handleCreateRun handles POST /api/suites/{id}/runs. The run is created
// pending and executed in the background; the caller polls it to a
// terminal state.
func (h *SuiteHandler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperrors.InvalidRequestError("invalid request body"))
			return
		}
	}

	run, err := h.svc.CreateRun(r.Context(), r.PathValue("id"), req.SpecOverride)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.events != nil {
		event := bus.NewEvent(bus.TopicRunCreated, "eval-studio-server", run.ID, run.SuiteID, nil)
		if err := h.events.Publish(r.Context(), bus.TopicRunCreated, event); err != nil {
			h.log.WithRun(run.ID).Warn("failed to publish run created event", "error", err)
		}
	}

	// The request context dies with the response; the run does not.
	go h.executor.Execute(context.Background(), run.ID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"run":    run,
	})
}
