package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// Embedder turns a question into a dense query vector. The embedding model
// itself is an external collaborator.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedderConfig configures the HTTP embedder client.
type HTTPEmbedderConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultHTTPEmbedderConfig returns sensible defaults.
func DefaultHTTPEmbedderConfig() HTTPEmbedderConfig {
	return HTTPEmbedderConfig{
		BaseURL: "http://localhost:8092",
		Timeout: 30 * time.Second,
	}
}

// HTTPEmbedder calls an external embedding service.
type HTTPEmbedder struct {
	cfg        HTTPEmbedderConfig
	httpClient *http.Client
}

// NewHTTPEmbedder creates an embedder backed by an HTTP service.
func NewHTTPEmbedder(cfg HTTPEmbedderConfig) *HTTPEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHTTPEmbedderConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHTTPEmbedderConfig().Timeout
	}
	return &HTTPEmbedder{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, errors.ProviderError("failed to marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/v1/embed", bytes.NewReader(data))
	if err != nil {
		return nil, errors.ProviderError("failed to create embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, errors.ProviderError("embed request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ProviderError("failed to read embed response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.ProviderError(
			fmt.Sprintf("embed service returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)), nil)
	}

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, errors.ProviderError("failed to decode embed response", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, errors.ProviderError("embed service returned an empty embedding", nil)
	}
	return embedResp.Embedding, nil
}
