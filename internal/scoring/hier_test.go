package scoring

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/evalstudio/eval-studio/internal/pkg/errors"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeSearcher struct {
	neighbors []Neighbor
	err       error

	gotScope Scope
	gotLimit int
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, scope Scope, limit int) ([]Neighbor, error) {
	f.gotScope = scope
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.neighbors, nil
}

func intPtr(v int) *int { return &v }

func TestHierProviderScore(t *testing.T) {
	searcher := &fakeSearcher{
		neighbors: []Neighbor{
			{ID: "n1", Similarity: 0.93, DocumentID: "doc-a", PageNumber: intPtr(2), SourceType: "hierarchical", Text: "coverage applies\nto inpatient stays"},
			{ID: "n2", Similarity: 0.88, DocumentID: "doc-a", SourceType: "hierarchical", Text: "second paragraph"},
		},
	}
	provider := NewHierProvider(&fakeEmbedder{vector: []float32{0.1, 0.2}}, searcher)

	if provider.Method() != MethodHier {
		t.Errorf("Method() = %s, want %s", provider.Method(), MethodHier)
	}

	items, err := provider.Score(context.Background(), "is inpatient covered", Scope{AuthorityLevel: "payer"}, 10)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	if searcher.gotLimit != 10 {
		t.Errorf("fetch limit = %d, want topK when no document filter", searcher.gotLimit)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ItemID != "n1" || items[0].Score != 0.93 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[0].RawScore != nil {
		t.Error("hier items should not carry a raw score")
	}
	if strings.Contains(items[0].Snippet, "\n") {
		t.Errorf("snippet not flattened: %q", items[0].Snippet)
	}
}

func TestHierProviderDocumentFilter(t *testing.T) {
	searcher := &fakeSearcher{
		neighbors: []Neighbor{
			{ID: "n1", Similarity: 0.95, DocumentID: "doc-b"},
			{ID: "n2", Similarity: 0.91, DocumentID: "doc-a"},
			{ID: "n3", Similarity: 0.85, DocumentID: "doc-c"},
			{ID: "n4", Similarity: 0.80, DocumentID: "doc-a"},
		},
	}
	provider := NewHierProvider(&fakeEmbedder{vector: []float32{0.3}}, searcher)

	scope := Scope{DocumentIDs: []string{"doc-a"}}
	items, err := provider.Score(context.Background(), "q", scope, 2)
	if err != nil {
		t.Fatalf("Score() error: %v", err)
	}

	// topK*8 clamped to the 50 floor
	if searcher.gotLimit != 50 {
		t.Errorf("fetch limit = %d, want 50", searcher.gotLimit)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ItemID != "n2" || items[1].ItemID != "n4" {
		t.Errorf("filtered items = %s, %s; want n2, n4", items[0].ItemID, items[1].ItemID)
	}
}

func TestHierProviderFetchClamp(t *testing.T) {
	searcher := &fakeSearcher{}
	provider := NewHierProvider(&fakeEmbedder{vector: []float32{0.3}}, searcher)

	scope := Scope{DocumentIDs: []string{"doc-a"}}
	if _, err := provider.Score(context.Background(), "q", scope, 40); err != nil {
		t.Fatalf("Score() error: %v", err)
	}
	if searcher.gotLimit != 200 {
		t.Errorf("fetch limit = %d, want ceiling 200", searcher.gotLimit)
	}
}

func TestHierProviderEmbedFailure(t *testing.T) {
	provider := NewHierProvider(
		&fakeEmbedder{err: apperrors.ProviderError("embed service down", nil)},
		&fakeSearcher{},
	)

	_, err := provider.Score(context.Background(), "q", Scope{}, 5)
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if !apperrors.IsProvider(err) {
		t.Errorf("expected provider error, got %v", err)
	}
}
