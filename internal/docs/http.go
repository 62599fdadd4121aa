package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// HTTPSourceConfig configures the HTTP catalog source.
type HTTPSourceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultHTTPSourceConfig returns sensible defaults.
func DefaultHTTPSourceConfig() HTTPSourceConfig {
	return HTTPSourceConfig{
		BaseURL: "http://localhost:8093",
		Timeout: 15 * time.Second,
	}
}

// HTTPSource lists documents from the corpus catalog service.
type HTTPSource struct {
	cfg        HTTPSourceConfig
	httpClient *http.Client
}

// NewHTTPSource creates a catalog source backed by an HTTP service.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	defaults := DefaultHTTPSourceConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &HTTPSource{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type listDocumentsResponse struct {
	Documents []Document `json:"documents"`
}

// List implements Source.
func (s *HTTPSource) List(ctx context.Context, search string, limit int) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if search != "" {
		query.Set("search", search)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/v1/documents?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create catalog request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "catalog request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to read catalog response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.New(errors.CodeUnavailable,
			fmt.Sprintf("catalog returned HTTP %d", resp.StatusCode))
	}

	var listResp listDocumentsResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to decode catalog response", err)
	}
	return listResp.Documents, nil
}
