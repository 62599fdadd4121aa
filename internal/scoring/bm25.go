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

// BM25Config configures the BM25 provider.
type BM25Config struct {
	// BaseURL is the lexical search service endpoint.
	BaseURL string

	// Timeout bounds a single scoring call. A stuck provider call is
	// treated as a provider failure for that question, not a run failure.
	Timeout time.Duration
}

// DefaultBM25Config returns sensible defaults.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		BaseURL: "http://localhost:8091",
		Timeout: 30 * time.Second,
	}
}

// BM25Provider scores questions against an external lexical search service
// and normalizes its raw scores into (0, 1) via a calibrated sigmoid.
type BM25Provider struct {
	cfg        BM25Config
	httpClient *http.Client
}

// NewBM25Provider creates the BM25 scoring provider.
func NewBM25Provider(cfg BM25Config) *BM25Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBM25Config().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultBM25Config().Timeout
	}
	return &BM25Provider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Method implements Provider.
func (p *BM25Provider) Method() Method {
	return MethodBM25
}

type bm25SearchRequest struct {
	Query          string   `json:"query"`
	AuthorityLevel string   `json:"authority_level,omitempty"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	TopK           int      `json:"top_k"`
}

type bm25SearchResult struct {
	ItemID     string  `json:"item_id"`
	RawScore   float64 `json:"raw_score"`
	PageNumber *int    `json:"page_number,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
}

type bm25SearchResponse struct {
	Results []bm25SearchResult `json:"results"`
}

// Score implements Provider. Results come back ordered by raw score; the
// normalized Score preserves that order because the sigmoid is monotonic.
func (p *BM25Provider) Score(ctx context.Context, question string, scope Scope, topK int) ([]ScoredItem, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	reqBody := bm25SearchRequest{
		Query:          question,
		AuthorityLevel: scope.AuthorityLevel,
		DocumentIDs:    scope.DocumentIDs,
		TopK:           topK,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.ProviderError("failed to marshal bm25 request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/search", bytes.NewReader(data))
	if err != nil {
		return nil, errors.ProviderError("failed to create bm25 request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.ProviderError("bm25 search request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ProviderError("failed to read bm25 response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.ProviderError(
			fmt.Sprintf("bm25 search returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)), nil)
	}

	var searchResp bm25SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, errors.ProviderError("failed to decode bm25 response", err)
	}

	results := searchResp.Results
	if len(results) > topK {
		results = results[:topK]
	}

	rawScores := make([]float64, len(results))
	for i, r := range results {
		rawScores[i] = r.RawScore
	}
	k, x0 := SigmoidParams(rawScores)
	normScores := NormalizeScores(rawScores, k, x0)

	items := make([]ScoredItem, len(results))
	for i, r := range results {
		raw := r.RawScore
		items[i] = ScoredItem{
			ItemID:     r.ItemID,
			Score:      normScores[i],
			RawScore:   &raw,
			PageNumber: r.PageNumber,
			SourceType: "hierarchical",
			Snippet:    truncate(r.Snippet, 240),
		}
	}
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
