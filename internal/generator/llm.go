package generator

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

// HTTPLLMConfig configures the HTTP LLM client.
type HTTPLLMConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// DefaultHTTPLLMConfig returns sensible defaults. Generation prompts are
// large, so the timeout is generous.
func DefaultHTTPLLMConfig() HTTPLLMConfig {
	return HTTPLLMConfig{
		BaseURL: "http://localhost:8094",
		Model:   "gemini-2.0-flash",
		Timeout: 120 * time.Second,
	}
}

// HTTPLLM calls an external text-generation gateway. It implements LLM.
type HTTPLLM struct {
	cfg        HTTPLLMConfig
	httpClient *http.Client
}

// NewHTTPLLM creates an LLM client backed by an HTTP service.
func NewHTTPLLM(cfg HTTPLLMConfig) *HTTPLLM {
	defaults := DefaultHTTPLLMConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &HTTPLLM{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type completeRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
}

type completeResponse struct {
	Text string `json:"text"`
}

// Complete implements LLM.
func (c *HTTPLLM) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(completeRequest{
		Model:       c.cfg.Model,
		Prompt:      prompt,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", errors.GenerationError("failed to marshal completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/complete", bytes.NewReader(data))
	if err != nil {
		return "", errors.GenerationError("failed to create completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.GenerationError("completion request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.GenerationError("failed to read completion response", err)
	}
	if resp.StatusCode >= 400 {
		return "", errors.New(errors.CodeGeneration,
			fmt.Sprintf("llm gateway returned HTTP %d", resp.StatusCode))
	}

	var completeResp completeResponse
	if err := json.Unmarshal(body, &completeResp); err != nil {
		return "", errors.GenerationError("failed to decode completion response", err)
	}
	if completeResp.Text == "" {
		return "", errors.New(errors.CodeGeneration, "llm gateway returned empty text")
	}
	return completeResp.Text, nil
}
