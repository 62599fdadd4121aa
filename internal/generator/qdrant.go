package generator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Qdrant evidence source defaults.
const (
	defaultEvidenceCollection = "published_rag_metadata"
	defaultEvidenceTimeout    = 60 * time.Second
	scrollBatchSize           = 256
)

// QdrantEvidenceConfig configures the Qdrant-backed evidence source.
type QdrantEvidenceConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Timeout    time.Duration
}

// QdrantEvidence reads hierarchical paragraphs from the published corpus
// collection. It implements EvidenceSource.
type QdrantEvidence struct {
	client *qdrant.Client
	config QdrantEvidenceConfig
}

// NewQdrantEvidence creates an evidence source over a Qdrant collection.
func NewQdrantEvidence(cfg QdrantEvidenceConfig) (*QdrantEvidence, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultEvidenceCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultEvidenceTimeout
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
	return &QdrantEvidence{client: client, config: cfg}, nil
}

// Close releases the underlying connection.
func (s *QdrantEvidence) Close() error {
	return s.client.Close()
}

// Paragraphs implements EvidenceSource. Results are ordered by document,
// then page and paragraph index within each document.
func (s *QdrantEvidence) Paragraphs(ctx context.Context, documentIDs []string) ([]Paragraph, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var out []Paragraph
	for _, docID := range documentIDs {
		filter := &qdrant.Filter{
			Must: []*qdrant.Condition{
				evidenceKeywordCondition("source_type", "hierarchical"),
				evidenceKeywordCondition("document_id", docID),
			},
		}

		points, err := s.scrollAll(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll document %s: %w", docID, err)
		}

		paragraphs := make([]paragraphWithIndex, 0, len(points))
		for _, p := range points {
			paragraphs = append(paragraphs, retrievedPointToParagraph(p))
		}
		sort.SliceStable(paragraphs, func(i, j int) bool {
			if c := compareNullableInt(paragraphs[i].Paragraph.PageNumber, paragraphs[j].Paragraph.PageNumber); c != 0 {
				return c < 0
			}
			if c := compareNullableInt(paragraphs[i].paragraphIndex, paragraphs[j].paragraphIndex); c != 0 {
				return c < 0
			}
			return paragraphs[i].Paragraph.ID < paragraphs[j].Paragraph.ID
		})
		for _, p := range paragraphs {
			out = append(out, p.Paragraph)
		}
	}
	return out, nil
}

// DocumentIDsByAuthority implements EvidenceSource.
func (s *QdrantEvidence) DocumentIDsByAuthority(ctx context.Context, authority string, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			evidenceKeywordCondition("source_type", "hierarchical"),
			evidenceKeywordCondition("document_authority_level", authority),
		},
	}

	points, err := s.scrollAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll authority %s: %w", authority, err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, p := range points {
		docID := evidenceStringValue(p.Payload, "document_id")
		if docID == "" || seen[docID] {
			continue
		}
		seen[docID] = true
		ids = append(ids, docID)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// scrollAll pages through every point matching the filter.
func (s *QdrantEvidence) scrollAll(ctx context.Context, filter *qdrant.Filter) ([]*qdrant.RetrievedPoint, error) {
	var all []*qdrant.RetrievedPoint
	var offset *qdrant.PointId

	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.Collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(scrollBatchSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			Offset:         offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, points...)

		if len(points) < scrollBatchSize {
			return all, nil
		}
		offset = points[len(points)-1].Id
	}
}

type paragraphWithIndex struct {
	Paragraph      Paragraph
	paragraphIndex *int
}

func retrievedPointToParagraph(p *qdrant.RetrievedPoint) paragraphWithIndex {
	var id string
	switch v := p.Id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		id = v.Uuid
	case *qdrant.PointId_Num:
		id = fmt.Sprintf("%d", v.Num)
	}

	docID := evidenceStringValue(p.Payload, "document_id")
	name := evidenceStringValue(p.Payload, "document_display_name")
	if name == "" {
		name = evidenceStringValue(p.Payload, "document_filename")
	}
	if name == "" {
		name = docID
	}

	out := paragraphWithIndex{
		Paragraph: Paragraph{
			ID:           id,
			DocumentID:   docID,
			DocumentName: name,
			SectionPath:  evidenceStringValue(p.Payload, "section_path"),
			ChapterPath:  evidenceStringValue(p.Payload, "chapter_path"),
			Text:         evidenceStringValue(p.Payload, "text"),
		},
	}
	if page, ok := evidenceIntValue(p.Payload, "page_number"); ok {
		out.Paragraph.PageNumber = &page
	}
	if idx, ok := evidenceIntValue(p.Payload, "paragraph_index"); ok {
		out.paragraphIndex = &idx
	}
	return out
}

// compareNullableInt orders values ascending with nil last.
func compareNullableInt(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func evidenceKeywordCondition(key, value string) *qdrant.Condition {
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

func evidenceStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func evidenceIntValue(payload map[string]*qdrant.Value, key string) (int, bool) {
	if v, ok := payload[key]; ok {
		if iv, ok := v.Kind.(*qdrant.Value_IntegerValue); ok {
			return int(iv.IntegerValue), true
		}
	}
	return 0, false
}
