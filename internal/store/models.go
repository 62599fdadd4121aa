// Package store persists suites, questions, runs, and their evaluation
// output (question metrics and evidence rows).
package store

import (
	"time"

	"github.com/evalstudio/eval-studio/internal/scoring"
	"github.com/evalstudio/eval-studio/internal/suite"
)

// RunStatus is the lifecycle state of an evaluation run.
type RunStatus string

// Run lifecycle: pending -> running -> completed | failed.
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunPending:
		return next == RunRunning || next == RunFailed
	case RunRunning:
		return next == RunCompleted || next == RunFailed
	default:
		return false
	}
}

// MethodSummary aggregates one scoring method across a run's questions.
// Hit rates use questions-with-gold as the denominator.
type MethodSummary struct {
	HitAt1                   float64 `json:"hit_at_1"`
	HitAt3                   float64 `json:"hit_at_3"`
	HitAt5                   float64 `json:"hit_at_5"`
	HitAt10                  float64 `json:"hit_at_10"`
	FalsePositiveAnswerCount int     `json:"false_positive_answer_count"`
}

// Summary is the run-level aggregate stored when a run completes.
type Summary struct {
	QuestionsTotal       int           `json:"questions_total"`
	QuestionsWithGold    int           `json:"questions_with_gold"`
	QuestionsOutOfManual int           `json:"questions_out_of_manual"`
	BM25                 MethodSummary `json:"bm25"`
	Hier                 MethodSummary `json:"hier"`
}

// Run is one execution of a suite against both scoring methods. Spec is a
// snapshot taken at creation; later edits to the suite do not affect it.
type Run struct {
	ID          string     `json:"id"`
	SuiteID     string     `json:"suite_id"`
	Status      RunStatus  `json:"status"`
	Spec        suite.Spec `json:"suite_spec"`
	Summary     *Summary   `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// QuestionMetric holds one question's per-method outcome within a run.
// Gold ranks are 1-based; nil means no retrieved item matched the gold
// spec within top_k. Score pointers are nil when a provider failed or
// returned nothing.
type QuestionMetric struct {
	QID            string   `json:"qid"`
	Intent         string   `json:"intent,omitempty"`
	Bucket         string   `json:"bucket,omitempty"`
	Question       string   `json:"question"`
	ExpectInManual bool     `json:"expect_in_manual"`
	GoldParentIDs  []string `json:"gold_parent_ids,omitempty"`

	BM25GoldRank      *int     `json:"bm25_gold_rank,omitempty"`
	BM25MaxNormScore  *float64 `json:"bm25_max_norm_score,omitempty"`
	BM25WouldAnswer   *bool    `json:"bm25_would_answer,omitempty"`
	BM25FalsePositive *bool    `json:"bm25_false_positive_answer,omitempty"`

	HierGoldRank       *int     `json:"hier_gold_rank,omitempty"`
	HierTop1Similarity *float64 `json:"hier_top1_similarity,omitempty"`
	HierWouldAnswer    *bool    `json:"hier_would_answer,omitempty"`
	HierFalsePositive  *bool    `json:"hier_false_positive_answer,omitempty"`
}

// HitAt reports whether rank indicates a hit within the first k items.
func HitAt(rank *int, k int) bool {
	return rank != nil && *rank <= k
}

// EvidenceRow is one retrieved candidate item for one method, with its
// score, rank, and match verdict against the question's gold spec.
type EvidenceRow struct {
	Method     scoring.Method `json:"method"`
	Rank       int            `json:"rank"`
	ItemID     string         `json:"item_id"`
	Score      *float64       `json:"score,omitempty"`
	RawScore   *float64       `json:"raw_score,omitempty"`
	Match      bool           `json:"match"`
	MatchWhy   string         `json:"match_why,omitempty"`
	PageNumber *int           `json:"page_number,omitempty"`
	SourceType string         `json:"source_type,omitempty"`
	Snippet    string         `json:"snippet,omitempty"`
}

// QuestionResult couples a question's metric with its evidence rows. The
// two are persisted together so evidence is never visible without its
// metric.
type QuestionResult struct {
	Metric QuestionMetric `json:"metric"`
	Rows   []EvidenceRow  `json:"rows"`
}
