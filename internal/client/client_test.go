package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": "1.2.3"})
	})

	c := newTestClient(t, mux)
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.2.3" {
		t.Errorf("Health() = %+v", resp)
	}
}

func TestSuiteEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/suites", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string     `json:"name"`
			Spec suite.Spec `json:"suite_spec"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode create request: %v", err)
		}
		if req.Name != "payer-a" || len(req.Spec.DocumentIDs) != 1 {
			t.Errorf("unexpected create request: %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"suite_id": "s-1",
			"suite":    &suite.Suite{ID: "s-1", Name: req.Name, Spec: req.Spec},
		})
	})
	mux.HandleFunc("GET /api/suites/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"suite":     &suite.Suite{ID: r.PathValue("id"), Name: "payer-a"},
			"questions": []*suite.Question{{QID: "Q001", Text: "what is covered"}},
		})
	})
	mux.HandleFunc("POST /api/suites/{id}/spec", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Spec json.RawMessage `json:"suite_spec"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Spec) == 0 {
			t.Error("spec update carried no suite_spec")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"suite": &suite.Suite{ID: r.PathValue("id"), Spec: suite.Spec{TopK: 5}},
		})
	})
	mux.HandleFunc("POST /api/suites/{id}/questions/import-yaml", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&suite.ImportReport{Inserted: 2})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	created, err := c.CreateSuite(ctx, "payer-a", "", suite.Spec{DocumentIDs: []string{"doc-A"}})
	if err != nil {
		t.Fatalf("CreateSuite() error = %v", err)
	}
	if created.ID != "s-1" {
		t.Errorf("CreateSuite() id = %q, want s-1", created.ID)
	}

	detail, err := c.GetSuite(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSuite() error = %v", err)
	}
	if detail.Suite.ID != "s-1" || len(detail.Questions) != 1 {
		t.Errorf("GetSuite() = %+v", detail)
	}

	updated, err := c.UpdateSpec(ctx, "s-1", json.RawMessage(`{"top_k": 5}`))
	if err != nil {
		t.Fatalf("UpdateSpec() error = %v", err)
	}
	if updated.Spec.TopK != 5 {
		t.Errorf("UpdateSpec() top_k = %d, want 5", updated.Spec.TopK)
	}

	report, err := c.ImportQuestions(ctx, "s-1", "questions:\n  - qid: Q001\n")
	if err != nil {
		t.Fatalf("ImportQuestions() error = %v", err)
	}
	if report.Inserted != 2 {
		t.Errorf("ImportQuestions() inserted = %d, want 2", report.Inserted)
	}
}

func TestRunEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/suites/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Override json.RawMessage `json:"suite_spec_override"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Override) == 0 {
			t.Error("run create carried no override")
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"run_id": "r-1",
			"run":    &store.Run{ID: "r-1", SuiteID: r.PathValue("id"), Status: store.RunPending},
		})
	})
	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("suite_id"); got != "s-1" {
			t.Errorf("suite_id = %q, want s-1", got)
		}
		if got := r.URL.Query().Get("limit"); got != "3" {
			t.Errorf("limit = %q, want 3", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"runs": []*store.Run{{ID: "r-1", Status: store.RunCompleted}},
		})
	})
	mux.HandleFunc("GET /api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"run":       &store.Run{ID: r.PathValue("id"), Status: store.RunCompleted},
			"questions": []store.QuestionMetric{{QID: "Q001"}},
		})
	})
	mux.HandleFunc("GET /api/runs/{id}/questions/{qid}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&store.QuestionResult{
			Metric: store.QuestionMetric{QID: r.PathValue("qid")},
		})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	run, err := c.CreateRun(ctx, "s-1", json.RawMessage(`{"top_k": 10}`))
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.ID != "r-1" || run.Status != store.RunPending {
		t.Errorf("CreateRun() = %+v", run)
	}

	runs, err := c.ListRuns(ctx, "s-1", 3)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() returned %d runs, want 1", len(runs))
	}

	detail, err := c.GetRun(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if detail.Run.Status != store.RunCompleted || len(detail.Questions) != 1 {
		t.Errorf("GetRun() = %+v", detail)
	}

	result, err := c.GetRunQuestion(ctx, "r-1", "Q001")
	if err != nil {
		t.Fatalf("GetRunQuestion() error = %v", err)
	}
	if result.Metric.QID != "Q001" {
		t.Errorf("GetRunQuestion() qid = %q, want Q001", result.Metric.QID)
	}
}

func TestListDocuments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "payer" {
			t.Errorf("search = %q, want payer", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"documents": []map[string]any{{"document_id": "doc-A", "document_label": "Manual A"}},
			"stale":     true,
		})
	})

	c := newTestClient(t, mux)
	result, err := c.ListDocuments(context.Background(), DocumentsOptions{Search: "payer", Limit: 10})
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(result.Documents) != 1 || !result.Stale {
		t.Errorf("ListDocuments() = %+v", result)
	}
}

func TestAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/suites/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "NOT_FOUND",
			"message": "suite not found",
		})
	})

	c := newTestClient(t, mux)
	_, err := c.GetSuite(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetSuite() expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("GetSuite() error type = %T, want *APIError", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", apiErr.Code)
	}
}

func TestPollerTerminal(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		status := store.RunRunning
		if calls.Add(1) >= 3 {
			status = store.RunCompleted
		}
		json.NewEncoder(w).Encode(map[string]any{
			"run": &store.Run{ID: r.PathValue("id"), Status: status},
		})
	})

	c := newTestClient(t, mux)
	p := NewPoller(c, PollerConfig{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second})

	run, err := p.Wait(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if run == nil || run.Status != store.RunCompleted {
		t.Errorf("Wait() = %+v, want completed", run)
	}
	if calls.Load() < 3 {
		t.Errorf("Wait() polled %d times, want at least 3", calls.Load())
	}
}

func TestPollerTimeoutStopsQuietly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"run": &store.Run{ID: r.PathValue("id"), Status: store.RunRunning},
		})
	})

	c := newTestClient(t, mux)
	p := NewPoller(c, PollerConfig{Interval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond})

	run, err := p.Wait(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if run == nil || run.Status != store.RunRunning {
		t.Errorf("Wait() = %+v, want last running state", run)
	}
}

func TestPollerFetchErrorStopsQuietly(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) >= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"run": &store.Run{ID: r.PathValue("id"), Status: store.RunRunning},
		})
	})

	c := newTestClient(t, mux)
	p := NewPoller(c, PollerConfig{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second})

	run, err := p.Wait(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if run == nil || run.Status != store.RunRunning {
		t.Errorf("Wait() = %+v, want last seen state before the fetch error", run)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval-studio", "settings.json")

	loaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if loaded.APIBaseURL != DefaultBaseURL {
		t.Errorf("missing file base URL = %q, want %q", loaded.APIBaseURL, DefaultBaseURL)
	}

	loaded.APIBaseURL = "http://10.0.0.5:8090"
	if err := SaveSettings(path, loaded); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	reloaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() after save error = %v", err)
	}
	if reloaded.APIBaseURL != "http://10.0.0.5:8090" {
		t.Errorf("reloaded base URL = %q", reloaded.APIBaseURL)
	}
}
