package scoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

const (
	// DefaultQdrantHost is the default Qdrant host.
	DefaultQdrantHost = "localhost"

	// DefaultQdrantPort is the default Qdrant gRPC port.
	DefaultQdrantPort = 6334

	// DefaultQdrantCollection holds the published hierarchical paragraphs.
	DefaultQdrantCollection = "published_rag_metadata"

	// DefaultQdrantTimeout is the default operation timeout.
	DefaultQdrantTimeout = 30 * time.Second
)

// QdrantConfig holds configuration for the Qdrant-backed vector searcher.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Timeout    time.Duration
}

// DefaultQdrantConfig returns sensible defaults for local development.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:       DefaultQdrantHost,
		Port:       DefaultQdrantPort,
		Collection: DefaultQdrantCollection,
		Timeout:    DefaultQdrantTimeout,
	}
}

// QdrantSearcher implements VectorSearcher against a Qdrant collection of
// hierarchical paragraphs.
type QdrantSearcher struct {
	client *qdrant.Client
	config QdrantConfig
	mu     sync.RWMutex
	closed bool
}

// NewQdrantSearcher creates a new Qdrant-backed vector searcher.
func NewQdrantSearcher(cfg QdrantConfig) (*QdrantSearcher, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultQdrantHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultQdrantPort
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultQdrantCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultQdrantTimeout
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantSearcher{
		client: client,
		config: cfg,
	}, nil
}

// Close closes the underlying connection.
func (s *QdrantSearcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// HealthCheck verifies the Qdrant server is reachable.
func (s *QdrantSearcher) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("qdrant searcher is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Search implements VectorSearcher with a dense query filtered to
// hierarchical source rows plus any scope metadata filters. Explicit
// document-id scoping is handled by the caller via post-filtering.
func (s *QdrantSearcher) Search(ctx context.Context, vector []float32, scope Scope, limit int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.ProviderError("qdrant searcher is closed", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         buildScopeFilter(scope),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classifyQdrantError(err)
	}

	neighbors := make([]Neighbor, 0, len(points))
	for _, p := range points {
		neighbors = append(neighbors, scoredPointToNeighbor(p))
	}
	return neighbors, nil
}

// buildScopeFilter converts a document scope into a Qdrant filter.
func buildScopeFilter(scope Scope) *qdrant.Filter {
	conditions := []*qdrant.Condition{
		keywordCondition("source_type", "hierarchical"),
	}

	if scope.AuthorityLevel != "" {
		conditions = append(conditions, keywordCondition("document_authority_level", scope.AuthorityLevel))
	}
	if scope.Payer != "" {
		conditions = append(conditions, keywordCondition("document_payer", scope.Payer))
	}
	if scope.State != "" {
		conditions = append(conditions, keywordCondition("document_state", scope.State))
	}
	if scope.Program != "" {
		conditions = append(conditions, keywordCondition("document_program", scope.Program))
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{
						Keyword: value,
					},
				},
			},
		},
	}
}

// scoredPointToNeighbor converts a scored point and its payload.
func scoredPointToNeighbor(p *qdrant.ScoredPoint) Neighbor {
	var id string
	switch v := p.Id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		id = v.Uuid
	case *qdrant.PointId_Num:
		id = fmt.Sprintf("%d", v.Num)
	}

	n := Neighbor{
		ID:         id,
		Similarity: float64(p.Score),
		DocumentID: getStringValue(p.Payload, "document_id"),
		SourceType: getStringValue(p.Payload, "source_type"),
		Text:       getStringValue(p.Payload, "text"),
	}
	if page, ok := getIntValue(p.Payload, "page_number"); ok {
		n.PageNumber = &page
	}
	return n
}

// classifyQdrantError maps gRPC transport errors onto provider errors so
// the run executor can tell a flaky provider from a broken run.
func classifyQdrantError(err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded:
			return errors.Wrap(errors.CodeProvider, "qdrant query timed out", err)
		case codes.Unavailable:
			return errors.Wrap(errors.CodeProvider, "qdrant is unavailable", err)
		case codes.NotFound, codes.InvalidArgument:
			return errors.Wrap(errors.CodeProvider, fmt.Sprintf("qdrant rejected query: %s", st.Message()), err)
		}
	}
	return errors.ProviderError("qdrant query failed", err)
}

func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func getIntValue(payload map[string]*qdrant.Value, key string) (int, bool) {
	if v, ok := payload[key]; ok {
		if iv, ok := v.Kind.(*qdrant.Value_IntegerValue); ok {
			return int(iv.IntegerValue), true
		}
	}
	return 0, false
}
