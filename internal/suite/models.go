// Package suite provides evaluation suite, question, and gold spec models.
// A suite is a named, reusable evaluation configuration plus its question set.
package suite

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// Default tuning values applied when the suite spec leaves them unset.
const (
	DefaultTopK                = 10
	DefaultBM25AnswerThreshold = 0.65
	DefaultHierAnswerThreshold = 0.88
)

// BucketOutOfManual marks questions whose correct outcome is abstention.
const BucketOutOfManual = "out_of_manual"

// Spec configures how a suite is evaluated: which documents are in scope,
// how many results to consider per method, and the answer thresholds.
type Spec struct {
	DocumentAuthorityLevel string   `json:"document_authority_level,omitempty" yaml:"document_authority_level,omitempty"`
	DocumentIDs            []string `json:"document_ids,omitempty" yaml:"document_ids,omitempty"`
	TopK                   int      `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	LimitQuestions         *int     `json:"limit_questions,omitempty" yaml:"limit_questions,omitempty"`
	BM25AnswerThreshold    float64  `json:"bm25_answer_threshold,omitempty" yaml:"bm25_answer_threshold,omitempty"`
	HierAnswerThreshold    float64  `json:"hier_answer_threshold,omitempty" yaml:"hier_answer_threshold,omitempty"`

	// Optional metadata filters forwarded to the hierarchical provider.
	DocumentPayer   string `json:"document_payer,omitempty" yaml:"document_payer,omitempty"`
	DocumentState   string `json:"document_state,omitempty" yaml:"document_state,omitempty"`
	DocumentProgram string `json:"document_program,omitempty" yaml:"document_program,omitempty"`
}

// Normalized returns a copy with defaults applied and scope values trimmed.
func (s Spec) Normalized() Spec {
	out := s
	out.DocumentAuthorityLevel = strings.TrimSpace(s.DocumentAuthorityLevel)
	out.DocumentIDs = cleanStrings(s.DocumentIDs)
	if out.TopK <= 0 {
		out.TopK = DefaultTopK
	}
	if out.BM25AnswerThreshold <= 0 {
		out.BM25AnswerThreshold = DefaultBM25AnswerThreshold
	}
	if out.HierAnswerThreshold <= 0 {
		out.HierAnswerThreshold = DefaultHierAnswerThreshold
	}
	return out
}

// ValidateScope checks the invariant that a run needs a non-empty document
// scope: an authority level or at least one document id.
func (s Spec) ValidateScope() error {
	n := s.Normalized()
	if n.DocumentAuthorityLevel == "" && len(n.DocumentIDs) == 0 {
		return errors.ValidationError("suite_spec requires either document_authority_level or document_ids")
	}
	return nil
}

// MergeSpec applies a one-off override on top of a stored spec without
// mutating it. Only keys present in the override JSON replace base values,
// so an override of {"top_k": 5} leaves the document scope untouched.
func MergeSpec(base Spec, override json.RawMessage) (Spec, error) {
	if len(override) == 0 {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return Spec{}, errors.InternalError("failed to encode suite spec", err)
	}

	var baseMap map[string]json.RawMessage
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return Spec{}, errors.InternalError("failed to decode suite spec", err)
	}
	var overrideMap map[string]json.RawMessage
	if err := json.Unmarshal(override, &overrideMap); err != nil {
		return Spec{}, errors.InvalidRequestError("suite_spec_override must be an object")
	}
	if baseMap == nil {
		baseMap = make(map[string]json.RawMessage)
	}
	for k, v := range overrideMap {
		baseMap[k] = v
	}

	mergedJSON, err := json.Marshal(baseMap)
	if err != nil {
		return Spec{}, errors.InternalError("failed to encode merged suite spec", err)
	}
	var merged Spec
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return Spec{}, errors.InvalidRequestError("suite_spec_override has invalid field types")
	}
	return merged, nil
}

// Suite is a named evaluation configuration.
type Suite struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Spec        Spec      `json:"suite_spec"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks suite-level invariants. Scope is validated separately at
// run creation so a suite can be drafted before documents are selected.
func (s *Suite) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.ValidationError("name is required")
	}
	return nil
}

// Gold is the ground-truth criteria used to judge whether a retrieved item
// correctly answers a question. An item matches when its id is one of
// ParentMetadataIDs, or when every CruxContains substring appears in its
// text (case-insensitive). The two criteria are ORed.
type Gold struct {
	ExpectInManual    *bool    `json:"expect_in_manual,omitempty" yaml:"expect_in_manual,omitempty"`
	ParentMetadataIDs []string `json:"parent_metadata_ids,omitempty" yaml:"parent_metadata_ids,omitempty"`
	CruxContains      []string `json:"crux_contains,omitempty" yaml:"crux_contains,omitempty"`
}

// IsEmpty reports whether no gold criteria are populated.
func (g Gold) IsEmpty() bool {
	return len(cleanStrings(g.ParentMetadataIDs)) == 0 && len(cleanStrings(g.CruxContains)) == 0
}

// Question is one evaluation question within a suite, keyed by QID.
type Question struct {
	QID       string    `json:"qid"`
	Intent    string    `json:"intent,omitempty"`
	Bucket    string    `json:"bucket,omitempty"`
	Text      string    `json:"question"`
	Gold      Gold      `json:"gold"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ExpectInManual reports whether a correct retrieval should find an answer.
// The explicit gold flag wins; otherwise anything outside the out_of_manual
// bucket is expected to be answerable.
func (q Question) ExpectInManual() bool {
	if q.Gold.ExpectInManual != nil {
		return *q.Gold.ExpectInManual
	}
	return strings.ToLower(strings.TrimSpace(q.Bucket)) != BucketOutOfManual
}

// HasGold reports whether the question carries any gold criteria. Questions
// without gold are excluded from hit-rate denominators.
func (q Question) HasGold() bool {
	return !q.Gold.IsEmpty()
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
