// Package client provides an HTTP client for the evaluation harness API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/evalstudio/eval-studio/internal/docs"
	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

// DefaultBaseURL is the loopback server address used when no endpoint is
// configured.
const DefaultBaseURL = "http://127.0.0.1:8090"

// Client is an HTTP client for the harness API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// BaseURL returns the configured API endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// SuiteDetail is a suite together with its question set.
type SuiteDetail struct {
	Suite     *suite.Suite      `json:"suite"`
	Questions []*suite.Question `json:"questions"`
}

// RunDetail is a run together with its per-question metrics so far.
type RunDetail struct {
	Run       *store.Run            `json:"run"`
	Questions []store.QuestionMetric `json:"questions"`
}

// GenerateRequest controls question auto-generation.
type GenerateRequest struct {
	NTotal       int `json:"n_total,omitempty"`
	NCanonical   int `json:"n_canonical,omitempty"`
	NOutOfManual int `json:"n_out_of_manual,omitempty"`
}

// GenerateResult is the auto-generation outcome.
type GenerateResult struct {
	SuiteID       string              `json:"suite_id"`
	YAML          string              `json:"yaml"`
	Import        *suite.ImportReport `json:"import"`
	EvidenceCount int                 `json:"evidence_count"`
}

// DocumentsOptions filters a catalog listing.
type DocumentsOptions struct {
	Search string
	Limit  int
}

// APIError represents an API error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks if the API is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDocuments returns the document catalog, possibly served stale.
func (c *Client) ListDocuments(ctx context.Context, opts DocumentsOptions) (*docs.ListResult, error) {
	query := url.Values{}
	if opts.Search != "" {
		query.Set("search", opts.Search)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/documents"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var result docs.ListResult
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSuites returns all suites, newest first.
func (c *Client) ListSuites(ctx context.Context) ([]*suite.Suite, error) {
	var resp struct {
		Suites []*suite.Suite `json:"suites"`
	}
	if err := c.get(ctx, "/api/suites", &resp); err != nil {
		return nil, err
	}
	return resp.Suites, nil
}

// CreateSuite creates a suite.
func (c *Client) CreateSuite(ctx context.Context, name, description string, spec suite.Spec) (*suite.Suite, error) {
	req := map[string]any{
		"name":        name,
		"description": description,
		"suite_spec":  spec,
	}
	var resp struct {
		Suite *suite.Suite `json:"suite"`
	}
	if err := c.post(ctx, "/api/suites", req, &resp); err != nil {
		return nil, err
	}
	return resp.Suite, nil
}

// GetSuite returns a suite and its questions.
func (c *Client) GetSuite(ctx context.Context, id string) (*SuiteDetail, error) {
	var detail SuiteDetail
	if err := c.get(ctx, "/api/suites/"+id, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateSpec merges a partial spec update onto a suite's stored spec.
func (c *Client) UpdateSpec(ctx context.Context, id string, spec json.RawMessage) (*suite.Suite, error) {
	req := map[string]any{"suite_spec": spec}
	var resp struct {
		Suite *suite.Suite `json:"suite"`
	}
	if err := c.post(ctx, "/api/suites/"+id+"/spec", req, &resp); err != nil {
		return nil, err
	}
	return resp.Suite, nil
}

// ImportQuestions imports a YAML question batch into a suite.
func (c *Client) ImportQuestions(ctx context.Context, id, yamlText string) (*suite.ImportReport, error) {
	req := map[string]string{"yaml": yamlText}
	var report suite.ImportReport
	if err := c.post(ctx, "/api/suites/"+id+"/questions/import-yaml", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GenerateQuestions auto-generates and imports a question set.
func (c *Client) GenerateQuestions(ctx context.Context, id string, req GenerateRequest) (*GenerateResult, error) {
	var result GenerateResult
	if err := c.post(ctx, "/api/suites/"+id+"/questions/auto-generate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRun creates a pending run for a suite. The optional override is
// merged onto the stored spec for this run only.
func (c *Client) CreateRun(ctx context.Context, suiteID string, override json.RawMessage) (*store.Run, error) {
	var req any
	if len(override) > 0 {
		req = map[string]any{"suite_spec_override": override}
	}
	var resp struct {
		Run *store.Run `json:"run"`
	}
	if err := c.post(ctx, "/api/suites/"+suiteID+"/runs", req, &resp); err != nil {
		return nil, err
	}
	return resp.Run, nil
}

// ListRuns returns runs newest first, optionally filtered by suite.
func (c *Client) ListRuns(ctx context.Context, suiteID string, limit int) ([]*store.Run, error) {
	query := url.Values{}
	if suiteID != "" {
		query.Set("suite_id", suiteID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/runs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Runs []*store.Run `json:"runs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun returns a run and its per-question metrics.
func (c *Client) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	var detail RunDetail
	if err := c.get(ctx, "/api/runs/"+id, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// GetRunQuestion returns one question's metric and evidence rows.
func (c *Client) GetRunQuestion(ctx context.Context, runID, qid string) (*store.QuestionResult, error) {
	var result store.QuestionResult
	if err := c.get(ctx, "/api/runs/"+runID+"/questions/"+qid, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return &apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
