// Package scoring defines the scoring provider contract and the two
// provider implementations the harness compares: lexical BM25 scoring and
// hierarchical embedding similarity scoring.
package scoring

import (
	"context"
)

// Method identifies a scoring method. The harness always runs exactly the
// two methods below; there is no open provider registry.
type Method string

const (
	MethodBM25 Method = "bm25"
	MethodHier Method = "hier"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m == MethodBM25 || m == MethodHier
}

// Scope restricts scoring to a slice of the document corpus.
type Scope struct {
	AuthorityLevel string
	DocumentIDs    []string

	// Optional metadata filters, honored by the hierarchical provider.
	Payer   string
	State   string
	Program string
}

// ScoredItem is one ranked candidate returned by a provider. Score is the
// method's comparable score: a normalized score for BM25, a similarity for
// the hierarchical method. RawScore carries the unnormalized BM25 score.
type ScoredItem struct {
	ItemID     string
	Score      float64
	RawScore   *float64
	PageNumber *int
	SourceType string
	Snippet    string
}

// Provider scores a question against a document scope and returns at most
// topK candidates ordered best-first.
type Provider interface {
	Method() Method
	Score(ctx context.Context, question string, scope Scope, topK int) ([]ScoredItem, error)
}

// Pair is the fixed provider pair every run evaluates.
type Pair struct {
	BM25 Provider
	Hier Provider
}
