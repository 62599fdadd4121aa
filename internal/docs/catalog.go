// Package docs exposes the published document catalog that suites scope
// their evaluations to. The upstream catalog is an external collaborator;
// a last-known-good cache keeps document selection usable when it is down.
package docs

import (
	"context"
	"time"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// Limit clamps for catalog listing.
const (
	DefaultListLimit = 200
	MaxListLimit     = 2000
)

// Document is one published document in the corpus.
type Document struct {
	DocumentID       string     `json:"document_id"`
	DisplayName      string     `json:"document_display_name,omitempty"`
	Filename         string     `json:"document_filename,omitempty"`
	Label            string     `json:"document_label"`
	AuthorityLevel   string     `json:"document_authority_level,omitempty"`
	Payer            string     `json:"document_payer,omitempty"`
	State            string     `json:"document_state,omitempty"`
	Program          string     `json:"document_program,omitempty"`
	HierarchicalRows int64      `json:"hierarchical_rows"`
	FactRows         int64      `json:"fact_rows"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Source lists documents from the upstream catalog.
type Source interface {
	List(ctx context.Context, search string, limit int) ([]Document, error)
}

// ListOptions controls one catalog listing.
type ListOptions struct {
	Search     string
	Limit      int
	AllowStale bool
	ClearCache bool
}

// ListResult is the catalog response. Stale is true when the upstream
// failed and the documents came from the cache; CachedAt then says how old
// they are. Callers must surface staleness, never treat stale as fresh.
type ListResult struct {
	Documents []Document `json:"documents"`
	Stale     bool       `json:"stale"`
	Error     string     `json:"error,omitempty"`
	CachedAt  *time.Time `json:"cached_at,omitempty"`
}

// Catalog serves document listings with a stale-fallback cache.
type Catalog struct {
	source Source
	cache  Cache
}

// NewCatalog creates a catalog over a source and a cache. A nil cache
// disables the stale fallback.
func NewCatalog(source Source, cache Cache) *Catalog {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Catalog{source: source, cache: cache}
}

// List fetches documents from the upstream, refreshing the cache on
// success. On upstream failure it degrades to the last-known-good cache
// with an explicit stale marker, availability over freshness.
func (c *Catalog) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	if opts.ClearCache {
		if err := c.cache.Clear(ctx); err != nil {
			return nil, errors.StoreError("failed to clear document cache", err)
		}
	}

	documents, err := c.source.List(ctx, opts.Search, limit)
	if err == nil {
		// Best-effort refresh; a cache write failure must not fail a
		// successful listing.
		_ = c.cache.Set(ctx, documents)
		return &ListResult{Documents: documents, Stale: false}, nil
	}

	if opts.AllowStale {
		cached, cachedAt, cacheErr := c.cache.Get(ctx)
		if cacheErr == nil && len(cached) > 0 {
			return &ListResult{
				Documents: cached,
				Stale:     true,
				Error:     err.Error(),
				CachedAt:  &cachedAt,
			}, nil
		}
	}

	return nil, errors.Wrap(errors.CodeUnavailable, "failed to load documents", err)
}
