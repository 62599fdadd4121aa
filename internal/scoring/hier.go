package scoring

import (
	"context"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// Neighbor is one vector search result with its payload fields.
type Neighbor struct {
	ID         string
	Similarity float64
	DocumentID string
	PageNumber *int
	SourceType string
	Text       string
}

// VectorSearcher finds nearest neighbors for a query vector within a
// document scope. Implemented by QdrantSearcher; faked in tests.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, scope Scope, limit int) ([]Neighbor, error)
}

// HierProvider scores questions by embedding them and querying the
// hierarchical paragraph index.
type HierProvider struct {
	embedder Embedder
	searcher VectorSearcher
}

// NewHierProvider creates the hierarchical scoring provider.
func NewHierProvider(embedder Embedder, searcher VectorSearcher) *HierProvider {
	return &HierProvider{
		embedder: embedder,
		searcher: searcher,
	}
}

// Method implements Provider.
func (p *HierProvider) Method() Method {
	return MethodHier
}

// Score implements Provider. When the scope names explicit documents the
// index is over-fetched and post-filtered by document id, since the vector
// index only filters on coarse metadata.
func (p *HierProvider) Score(ctx context.Context, question string, scope Scope, topK int) ([]ScoredItem, error) {
	vector, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	fetchK := topK
	docAllow := make(map[string]bool, len(scope.DocumentIDs))
	for _, id := range scope.DocumentIDs {
		docAllow[id] = true
	}
	if len(docAllow) > 0 {
		fetchK = topK * 8
		if fetchK < 50 {
			fetchK = 50
		}
		if fetchK > 200 {
			fetchK = 200
		}
	}

	neighbors, err := p.searcher.Search(ctx, vector, scope, fetchK)
	if err != nil {
		if _, ok := err.(*errors.AppError); ok {
			return nil, err
		}
		return nil, errors.ProviderError("hierarchical vector search failed", err)
	}

	items := make([]ScoredItem, 0, topK)
	for _, n := range neighbors {
		if len(docAllow) > 0 && !docAllow[n.DocumentID] {
			continue
		}
		items = append(items, ScoredItem{
			ItemID:     n.ID,
			Score:      n.Similarity,
			PageNumber: n.PageNumber,
			SourceType: n.SourceType,
			Snippet:    snippetOf(n.Text),
		})
		if len(items) >= topK {
			break
		}
	}
	return items, nil
}

// snippetOf flattens paragraph text into a short single-line snippet.
func snippetOf(text string) string {
	flat := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' || c == '\r' || c == '\t' {
			c = ' '
		}
		flat = append(flat, c)
	}
	return truncate(string(flat), 220)
}
