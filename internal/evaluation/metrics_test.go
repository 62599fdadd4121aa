package evaluation

import (
	"testing"

	"github.com/evalstudio/eval-studio/internal/scoring"
	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func TestMatchItem(t *testing.T) {
	tests := []struct {
		name    string
		itemID  string
		text    string
		gold    suite.Gold
		want    bool
		wantWhy string
	}{
		{
			name:    "parent id match",
			itemID:  "item-7",
			gold:    suite.Gold{ParentMetadataIDs: []string{"item-3", "item-7"}},
			want:    true,
			wantWhy: "parent_metadata_id",
		},
		{
			name:   "parent id miss",
			itemID: "item-9",
			gold:   suite.Gold{ParentMetadataIDs: []string{"item-3", "item-7"}},
		},
		{
			name:    "crux containment is case-insensitive",
			itemID:  "item-1",
			text:    "Prior Authorization is REQUIRED for imaging",
			gold:    suite.Gold{CruxContains: []string{"prior authorization", "required"}},
			want:    true,
			wantWhy: "contains:prior authorization",
		},
		{
			name:   "all crux substrings must appear",
			itemID: "item-1",
			text:   "prior authorization only",
			gold:   suite.Gold{CruxContains: []string{"prior authorization", "within 14 days"}},
		},
		{
			name:    "id match wins over crux when both populated",
			itemID:  "item-7",
			text:    "unrelated text",
			gold:    suite.Gold{ParentMetadataIDs: []string{"item-7"}, CruxContains: []string{"no such text"}},
			want:    true,
			wantWhy: "parent_metadata_id",
		},
		{
			name:    "crux can match when id does not",
			itemID:  "item-9",
			text:    "the copay is $25",
			gold:    suite.Gold{ParentMetadataIDs: []string{"item-7"}, CruxContains: []string{"copay"}},
			want:    true,
			wantWhy: "contains:copay",
		},
		{
			name:   "empty gold never matches",
			itemID: "item-1",
			text:   "anything",
			gold:   suite.Gold{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, why := MatchItem(tt.itemID, tt.text, tt.gold)
			if got != tt.want {
				t.Errorf("MatchItem() = %v, want %v", got, tt.want)
			}
			if why != tt.wantWhy {
				t.Errorf("why = %q, want %q", why, tt.wantWhy)
			}
		})
	}
}

func TestMatchItemTruncatesNeedleInReason(t *testing.T) {
	long := "this needle is much longer than forty-eight characters in total length"
	_, why := MatchItem("x", long, suite.Gold{CruxContains: []string{long}})
	if want := "contains:" + long[:48]; why != want {
		t.Errorf("why = %q, want %q", why, want)
	}
}

func TestCompute(t *testing.T) {
	gold := suite.Gold{ParentMetadataIDs: []string{"doc-A"}}
	items := []scoring.ScoredItem{
		{ItemID: "doc-B", Score: 0.91},
		{ItemID: "doc-A", Score: 0.82},
		{ItemID: "doc-C", Score: 0.40},
	}

	m, rows := Compute(items, gold, true, 0.65)

	if m.GoldRank == nil || *m.GoldRank != 2 {
		t.Errorf("GoldRank = %v, want 2", m.GoldRank)
	}
	if m.TopScore == nil || *m.TopScore != 0.91 {
		t.Errorf("TopScore = %v, want 0.91", m.TopScore)
	}
	if !m.WouldAnswer {
		t.Error("WouldAnswer = false, top score is above threshold")
	}
	if m.FalsePositive {
		t.Error("FalsePositive = true for an in-manual question")
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	for i, row := range rows {
		if row.Rank != i+1 {
			t.Errorf("rows[%d].Rank = %d", i, row.Rank)
		}
	}
	if rows[0].Match || !rows[1].Match || rows[2].Match {
		t.Errorf("match flags = %v %v %v, want only rank 2", rows[0].Match, rows[1].Match, rows[2].Match)
	}
	if rows[1].MatchWhy != "parent_metadata_id" {
		t.Errorf("MatchWhy = %q", rows[1].MatchWhy)
	}
}

func TestComputeNoMatchWithinList(t *testing.T) {
	gold := suite.Gold{ParentMetadataIDs: []string{"doc-A"}}
	items := []scoring.ScoredItem{
		{ItemID: "doc-C", Score: 0.5},
		{ItemID: "doc-D", Score: 0.4},
	}

	m, _ := Compute(items, gold, true, 0.88)
	if m.GoldRank != nil {
		t.Errorf("GoldRank = %v, want nil", m.GoldRank)
	}
	if m.WouldAnswer {
		t.Error("WouldAnswer = true below threshold")
	}
}

func TestComputeEmptyList(t *testing.T) {
	m, rows := Compute(nil, suite.Gold{ParentMetadataIDs: []string{"doc-A"}}, true, 0.65)
	if m.GoldRank != nil || m.TopScore != nil || m.WouldAnswer {
		t.Errorf("metric for empty list = %+v", m)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows for empty list", len(rows))
	}
}

func TestComputeFalsePositive(t *testing.T) {
	// Out-of-manual question where the method still answers confidently.
	items := []scoring.ScoredItem{{ItemID: "doc-X", Score: 0.95}}
	m, _ := Compute(items, suite.Gold{ExpectInManual: boolPtr(false)}, false, 0.88)
	if !m.WouldAnswer || !m.FalsePositive {
		t.Errorf("metric = %+v, want confident false positive", m)
	}
}

func TestSummarize(t *testing.T) {
	questions := []*suite.Question{
		{QID: "Q1", Gold: suite.Gold{ParentMetadataIDs: []string{"a"}}},
		{QID: "Q2", Gold: suite.Gold{CruxContains: []string{"copay"}}},
		{QID: "Q3", Bucket: suite.BucketOutOfManual, Gold: suite.Gold{ExpectInManual: boolPtr(false)}},
		{QID: "Q4"}, // no gold at all
	}
	metrics := map[string]store.QuestionMetric{
		"Q1": {QID: "Q1", ExpectInManual: true, BM25GoldRank: intPtr(1), HierGoldRank: intPtr(4)},
		"Q2": {QID: "Q2", ExpectInManual: true, BM25GoldRank: intPtr(7), HierGoldRank: nil},
		"Q3": {QID: "Q3", ExpectInManual: false, BM25FalsePositive: boolPtr(true), HierFalsePositive: boolPtr(false)},
		"Q4": {QID: "Q4", ExpectInManual: true},
	}

	s := Summarize(questions, metrics)

	if s.QuestionsTotal != 4 {
		t.Errorf("QuestionsTotal = %d", s.QuestionsTotal)
	}
	if s.QuestionsWithGold != 2 {
		t.Errorf("QuestionsWithGold = %d, want 2", s.QuestionsWithGold)
	}
	if s.QuestionsOutOfManual != 1 {
		t.Errorf("QuestionsOutOfManual = %d, want 1", s.QuestionsOutOfManual)
	}

	if s.BM25.HitAt1 != 0.5 || s.BM25.HitAt3 != 0.5 || s.BM25.HitAt10 != 1.0 {
		t.Errorf("bm25 hit rates = %+v", s.BM25)
	}
	if s.Hier.HitAt3 != 0 || s.Hier.HitAt5 != 0.5 || s.Hier.HitAt10 != 0.5 {
		t.Errorf("hier hit rates = %+v", s.Hier)
	}
	if s.BM25.FalsePositiveAnswerCount != 1 || s.Hier.FalsePositiveAnswerCount != 0 {
		t.Errorf("false positive counts = %d / %d", s.BM25.FalsePositiveAnswerCount, s.Hier.FalsePositiveAnswerCount)
	}

	// Aggregation is idempotent.
	again := Summarize(questions, metrics)
	if *again != *s {
		t.Error("recomputing the summary changed the result")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, nil)
	if s.QuestionsTotal != 0 || s.QuestionsWithGold != 0 {
		t.Errorf("summary = %+v", s)
	}
	if s.BM25.HitAt3 != 0 || s.Hier.HitAt3 != 0 {
		t.Error("empty summary must have zero rates, not NaN")
	}
}
