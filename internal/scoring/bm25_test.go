package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/evalstudio/eval-studio/internal/pkg/errors"
)

func TestBM25ProviderScore(t *testing.T) {
	var gotReq bm25SearchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("path = %s, want /v1/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		page := 3
		resp := bm25SearchResponse{
			Results: []bm25SearchResult{
				{ItemID: "item-a", RawScore: 14.2, PageNumber: &page, Snippet: "prior authorization is required"},
				{ItemID: "item-b", RawScore: 11.0},
				{ItemID: "item-c", RawScore: 9.4},
				{ItemID: "item-d", RawScore: 2.1},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewBM25Provider(BM25Config{BaseURL: server.URL})
	if provider.Method() != MethodBM25 {
		t.Errorf("Method() = %s, want %s", provider.Method(), MethodBM25)
	}

	scope := Scope{AuthorityLevel: "payer", DocumentIDs: []string{"doc-1"}}
	items, err := provider.Score(context.Background(), "is prior auth required", scope, 3)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	if gotReq.Query != "is prior auth required" {
		t.Errorf("request query = %q", gotReq.Query)
	}
	if gotReq.AuthorityLevel != "payer" {
		t.Errorf("request authority_level = %q", gotReq.AuthorityLevel)
	}
	if gotReq.TopK != 3 {
		t.Errorf("request top_k = %d, want 3", gotReq.TopK)
	}

	if len(items) != 3 {
		t.Fatalf("got %d items, want top 3", len(items))
	}
	if items[0].ItemID != "item-a" {
		t.Errorf("items[0] = %s, want item-a", items[0].ItemID)
	}
	if items[0].RawScore == nil || *items[0].RawScore != 14.2 {
		t.Errorf("items[0].RawScore = %v, want 14.2", items[0].RawScore)
	}
	if items[0].PageNumber == nil || *items[0].PageNumber != 3 {
		t.Errorf("items[0].PageNumber = %v, want 3", items[0].PageNumber)
	}
	if items[0].SourceType != "hierarchical" {
		t.Errorf("items[0].SourceType = %q", items[0].SourceType)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Score > items[i-1].Score {
			t.Errorf("normalized scores out of order at %d", i)
		}
	}
	for i, it := range items {
		if it.Score <= 0 || it.Score >= 1 {
			t.Errorf("items[%d].Score = %v, want inside (0, 1)", i, it.Score)
		}
	}
}

func TestBM25ProviderScoreEmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	provider := NewBM25Provider(BM25Config{BaseURL: server.URL})
	items, err := provider.Score(context.Background(), "anything", Scope{}, 10)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestBM25ProviderScoreServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewBM25Provider(BM25Config{BaseURL: server.URL})
	_, err := provider.Score(context.Background(), "anything", Scope{}, 10)
	if err == nil {
		t.Fatal("expected error for HTTP 503")
	}
	if !apperrors.IsProvider(err) {
		t.Errorf("expected provider error, got %v", err)
	}
}
