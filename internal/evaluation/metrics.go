// Package evaluation runs evaluation suites against the scoring provider
// pair and computes per-question metrics and run summaries.
package evaluation

import (
	"strings"

	"github.com/evalstudio/eval-studio/internal/scoring"
	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

const matchWhyNeedleLimit = 48

// MatchItem judges one retrieved item against a gold spec. An item matches
// when its id is listed in parent_metadata_ids, or when every crux_contains
// substring appears in its text (case-insensitive). The two criteria are
// ORed: either one satisfied counts as a hit.
//
// The returned reason is "parent_metadata_id" for an id match and
// "contains:<needle>" (needle truncated to 48 chars) for a crux match.
func MatchItem(itemID, text string, gold suite.Gold) (bool, string) {
	for _, pid := range gold.ParentMetadataIDs {
		if pid != "" && pid == itemID {
			return true, "parent_metadata_id"
		}
	}

	needles := make([]string, 0, len(gold.CruxContains))
	for _, n := range gold.CruxContains {
		if t := strings.TrimSpace(n); t != "" {
			needles = append(needles, t)
		}
	}
	if len(needles) == 0 {
		return false, ""
	}

	hay := strings.ToLower(text)
	for _, n := range needles {
		if !strings.Contains(hay, strings.ToLower(n)) {
			return false, ""
		}
	}
	why := needles[0]
	if len(why) > matchWhyNeedleLimit {
		why = why[:matchWhyNeedleLimit]
	}
	return true, "contains:" + why
}

// MethodMetric is one method's outcome for one question, before it is
// folded into the stored QuestionMetric.
type MethodMetric struct {
	// GoldRank is the 1-based rank of the first matching item, nil when
	// nothing in the list matched.
	GoldRank *int

	// TopScore is the method's headline score: max normalized score for
	// BM25, rank-1 similarity for hier. Nil for an empty list.
	TopScore *float64

	WouldAnswer   bool
	FalsePositive bool
}

// Compute evaluates a ranked result list against a gold spec. It is a pure
// function: identical inputs always produce identical output.
//
// expectInManual and threshold feed the answer verdict: the method "would
// answer" when its top score reaches the threshold, and a would-answer on a
// question that should have no answer is a false positive.
func Compute(items []scoring.ScoredItem, gold suite.Gold, expectInManual bool, threshold float64) (MethodMetric, []store.EvidenceRow) {
	var m MethodMetric
	rows := make([]store.EvidenceRow, 0, len(items))

	for i, item := range items {
		rank := i + 1
		matched, why := MatchItem(item.ItemID, item.Snippet, gold)
		if matched && m.GoldRank == nil {
			r := rank
			m.GoldRank = &r
		}

		score := item.Score
		rows = append(rows, store.EvidenceRow{
			Rank:       rank,
			ItemID:     item.ItemID,
			Score:      &score,
			RawScore:   item.RawScore,
			Match:      matched,
			MatchWhy:   why,
			PageNumber: item.PageNumber,
			SourceType: item.SourceType,
			Snippet:    item.Snippet,
		})
	}

	if len(items) > 0 {
		top := items[0].Score
		m.TopScore = &top
		m.WouldAnswer = top >= threshold
		m.FalsePositive = !expectInManual && m.WouldAnswer
	}
	return m, rows
}

// Summarize aggregates per-question metrics into the run summary. Hit rates
// use questions-with-gold as the denominator; an all-questions-without-gold
// run yields zero rates, not a division error.
func Summarize(questions []*suite.Question, metrics map[string]store.QuestionMetric) *store.Summary {
	s := &store.Summary{
		QuestionsTotal: len(questions),
	}

	for _, q := range questions {
		m, ok := metrics[q.QID]
		if !ok {
			continue
		}

		if !m.ExpectInManual {
			s.QuestionsOutOfManual++
			if m.BM25FalsePositive != nil && *m.BM25FalsePositive {
				s.BM25.FalsePositiveAnswerCount++
			}
			if m.HierFalsePositive != nil && *m.HierFalsePositive {
				s.Hier.FalsePositiveAnswerCount++
			}
		}

		if !q.HasGold() {
			continue
		}
		s.QuestionsWithGold++

		if store.HitAt(m.BM25GoldRank, 1) {
			s.BM25.HitAt1++
		}
		if store.HitAt(m.BM25GoldRank, 3) {
			s.BM25.HitAt3++
		}
		if store.HitAt(m.BM25GoldRank, 5) {
			s.BM25.HitAt5++
		}
		if store.HitAt(m.BM25GoldRank, 10) {
			s.BM25.HitAt10++
		}

		if store.HitAt(m.HierGoldRank, 1) {
			s.Hier.HitAt1++
		}
		if store.HitAt(m.HierGoldRank, 3) {
			s.Hier.HitAt3++
		}
		if store.HitAt(m.HierGoldRank, 5) {
			s.Hier.HitAt5++
		}
		if store.HitAt(m.HierGoldRank, 10) {
			s.Hier.HitAt10++
		}
	}

	rate := func(hits float64) float64 {
		if s.QuestionsWithGold == 0 {
			return 0
		}
		return hits / float64(s.QuestionsWithGold)
	}
	s.BM25.HitAt1 = rate(s.BM25.HitAt1)
	s.BM25.HitAt3 = rate(s.BM25.HitAt3)
	s.BM25.HitAt5 = rate(s.BM25.HitAt5)
	s.BM25.HitAt10 = rate(s.BM25.HitAt10)
	s.Hier.HitAt1 = rate(s.Hier.HitAt1)
	s.Hier.HitAt3 = rate(s.Hier.HitAt3)
	s.Hier.HitAt5 = rate(s.Hier.HitAt5)
	s.Hier.HitAt10 = rate(s.Hier.HitAt10)
	return s
}
