package evaluation

import (
	"context"
	"fmt"
	"testing"

	"github.com/evalstudio/eval-studio/internal/bus"
	apperrors "github.com/evalstudio/eval-studio/internal/pkg/errors"
	"github.com/evalstudio/eval-studio/internal/pkg/logger"
	"github.com/evalstudio/eval-studio/internal/scoring"
	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

// fakeProvider returns canned items per question text.
type fakeProvider struct {
	method  scoring.Method
	results map[string][]scoring.ScoredItem
	errs    map[string]error
}

func (f *fakeProvider) Method() scoring.Method { return f.method }

func (f *fakeProvider) Score(ctx context.Context, question string, scope scoring.Scope, topK int) ([]scoring.ScoredItem, error) {
	if err := f.errs[question]; err != nil {
		return nil, err
	}
	items := f.results[question]
	if len(items) > topK {
		items = items[:topK]
	}
	return items, nil
}

func items(scores map[string]float64, order ...string) []scoring.ScoredItem {
	out := make([]scoring.ScoredItem, 0, len(order))
	for _, id := range order {
		out = append(out, scoring.ScoredItem{ItemID: id, Score: scores[id]})
	}
	return out
}

type executorFixture struct {
	store    *store.Service
	executor *Executor
	suite    *suite.Suite
}

func newExecutorFixture(t *testing.T, storage store.Storage, bm25, hier *fakeProvider) *executorFixture {
	t.Helper()

	svc := store.NewServiceWithStorage(storage)
	st, err := svc.CreateSuite(context.Background(), "exec-suite", "", suite.Spec{
		DocumentAuthorityLevel: "payer",
	})
	if err != nil {
		t.Fatalf("CreateSuite() error: %v", err)
	}

	executor := NewExecutor(svc, scoring.Pair{BM25: bm25, Hier: hier}, bus.NewMemoryBus(), logger.Default(), ExecutorConfig{Concurrency: 2})
	return &executorFixture{store: svc, executor: executor, suite: st}
}

func TestExecutorGoldRankScenario(t *testing.T) {
	const qText = "Is doc-A the right answer?"

	bm25 := &fakeProvider{
		method: scoring.MethodBM25,
		results: map[string][]scoring.ScoredItem{
			qText: items(map[string]float64{"doc-B": 0.9, "doc-A": 0.8, "doc-C": 0.4}, "doc-B", "doc-A", "doc-C"),
		},
	}
	hier := &fakeProvider{
		method: scoring.MethodHier,
		results: map[string][]scoring.ScoredItem{
			qText: items(map[string]float64{"doc-C": 0.7, "doc-D": 0.6}, "doc-C", "doc-D"),
		},
	}

	fx := newExecutorFixture(t, store.NewMemoryStorage(), bm25, hier)
	ctx := context.Background()

	if _, err := fx.store.ImportParsed(ctx, fx.suite.ID, []suite.Question{
		{QID: "Q001", Text: qText, Gold: suite.Gold{ParentMetadataIDs: []string{"doc-A"}}},
	}, nil); err != nil {
		t.Fatalf("ImportParsed() error: %v", err)
	}

	run, err := fx.store.CreateRun(ctx, fx.suite.ID, nil)
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}

	fx.executor.Execute(ctx, run.ID)

	done, err := fx.store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error: %v", err)
	}
	if done.Status != store.RunCompleted {
		t.Fatalf("Status = %s (error %q), want completed", done.Status, done.Error)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}

	result, err := fx.store.GetRunQuestion(ctx, run.ID, "Q001")
	if err != nil {
		t.Fatalf("GetRunQuestion() error: %v", err)
	}
	if result.Metric.BM25GoldRank == nil || *result.Metric.BM25GoldRank != 2 {
		t.Errorf("BM25GoldRank = %v, want 2", result.Metric.BM25GoldRank)
	}
	if result.Metric.HierGoldRank != nil {
		t.Errorf("HierGoldRank = %v, want nil", result.Metric.HierGoldRank)
	}

	// 3 bm25 rows then 2 hier rows, each method ranked independently.
	if len(result.Rows) != 5 {
		t.Fatalf("got %d evidence rows", len(result.Rows))
	}
	if result.Rows[0].Method != scoring.MethodBM25 || result.Rows[3].Method != scoring.MethodHier {
		t.Errorf("row methods = %s ... %s", result.Rows[0].Method, result.Rows[3].Method)
	}
	if result.Rows[3].Rank != 1 {
		t.Errorf("first hier row rank = %d, want 1", result.Rows[3].Rank)
	}

	if done.Summary == nil {
		t.Fatal("summary missing")
	}
	if done.Summary.QuestionsWithGold != 1 {
		t.Errorf("QuestionsWithGold = %d", done.Summary.QuestionsWithGold)
	}
	if done.Summary.BM25.HitAt3 != 1.0 || done.Summary.Hier.HitAt3 != 0.0 {
		t.Errorf("hit_at_3 = %v / %v", done.Summary.BM25.HitAt3, done.Summary.Hier.HitAt3)
	}
}

func TestExecutorProviderFailureIsPerQuestion(t *testing.T) {
	bm25 := &fakeProvider{
		method: scoring.MethodBM25,
		results: map[string][]scoring.ScoredItem{
			"good question": items(map[string]float64{"doc-A": 0.9}, "doc-A"),
		},
		errs: map[string]error{
			"bad question": apperrors.ProviderError("bm25 search timed out", nil),
		},
	}
	hier := &fakeProvider{
		method: scoring.MethodHier,
		results: map[string][]scoring.ScoredItem{
			"good question": items(map[string]float64{"doc-A": 0.95}, "doc-A"),
			"bad question":  items(map[string]float64{"doc-B": 0.91}, "doc-B"),
		},
	}

	fx := newExecutorFixture(t, store.NewMemoryStorage(), bm25, hier)
	ctx := context.Background()

	if _, err := fx.store.ImportParsed(ctx, fx.suite.ID, []suite.Question{
		{QID: "Q001", Text: "good question", Gold: suite.Gold{ParentMetadataIDs: []string{"doc-A"}}},
		{QID: "Q002", Text: "bad question", Gold: suite.Gold{ParentMetadataIDs: []string{"doc-B"}}},
	}, nil); err != nil {
		t.Fatalf("ImportParsed() error: %v", err)
	}

	run, err := fx.store.CreateRun(ctx, fx.suite.ID, nil)
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	fx.executor.Execute(ctx, run.ID)

	done, _ := fx.store.GetRun(ctx, run.ID)
	if done.Status != store.RunCompleted {
		t.Fatalf("Status = %s, one provider failure must not fail the run", done.Status)
	}

	bad, err := fx.store.GetRunQuestion(ctx, run.ID, "Q002")
	if err != nil {
		t.Fatalf("GetRunQuestion() error: %v", err)
	}
	if bad.Metric.BM25GoldRank != nil || bad.Metric.BM25MaxNormScore != nil || bad.Metric.BM25WouldAnswer != nil {
		t.Errorf("bm25 fields not nulled: %+v", bad.Metric)
	}
	if bad.Metric.HierGoldRank == nil || *bad.Metric.HierGoldRank != 1 {
		t.Errorf("HierGoldRank = %v, want 1", bad.Metric.HierGoldRank)
	}
	for _, row := range bad.Rows {
		if row.Method == scoring.MethodBM25 {
			t.Error("failed method must not contribute evidence rows")
		}
	}
}

func TestExecutorEmptySuiteCompletes(t *testing.T) {
	bm25 := &fakeProvider{method: scoring.MethodBM25}
	hier := &fakeProvider{method: scoring.MethodHier}
	fx := newExecutorFixture(t, store.NewMemoryStorage(), bm25, hier)
	ctx := context.Background()

	run, err := fx.store.CreateRun(ctx, fx.suite.ID, nil)
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	fx.executor.Execute(ctx, run.ID)

	done, _ := fx.store.GetRun(ctx, run.ID)
	if done.Status != store.RunCompleted {
		t.Fatalf("Status = %s, want completed", done.Status)
	}
	if done.Summary == nil || done.Summary.QuestionsTotal != 0 || done.Summary.QuestionsWithGold != 0 {
		t.Errorf("Summary = %+v", done.Summary)
	}
	if done.Summary.BM25.HitAt3 != 0 {
		t.Error("empty run must report zero rates")
	}
}

func TestExecutorRespectsLimitQuestions(t *testing.T) {
	results := map[string][]scoring.ScoredItem{}
	var qs []suite.Question
	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("question %d", i)
		results[text] = items(map[string]float64{"doc-A": 0.9}, "doc-A")
		qs = append(qs, suite.Question{
			QID:  fmt.Sprintf("Q%03d", i+1),
			Text: text,
			Gold: suite.Gold{ParentMetadataIDs: []string{"doc-A"}},
		})
	}
	bm25 := &fakeProvider{method: scoring.MethodBM25, results: results}
	hier := &fakeProvider{method: scoring.MethodHier, results: results}

	fx := newExecutorFixture(t, store.NewMemoryStorage(), bm25, hier)
	ctx := context.Background()
	if _, err := fx.store.ImportParsed(ctx, fx.suite.ID, qs, nil); err != nil {
		t.Fatalf("ImportParsed() error: %v", err)
	}

	run, err := fx.store.CreateRun(ctx, fx.suite.ID, []byte(`{"limit_questions": 2}`))
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	fx.executor.Execute(ctx, run.ID)

	done, _ := fx.store.GetRun(ctx, run.ID)
	if done.Status != store.RunCompleted {
		t.Fatalf("Status = %s", done.Status)
	}
	if done.Summary.QuestionsTotal != 2 {
		t.Errorf("QuestionsTotal = %d, want limit 2", done.Summary.QuestionsTotal)
	}
	metrics, _ := fx.store.ListQuestionMetrics(ctx, run.ID)
	if len(metrics) != 2 {
		t.Errorf("persisted %d metrics, want 2", len(metrics))
	}
}

// failingResultStorage breaks result writes to exercise the run-fatal path.
type failingResultStorage struct {
	store.Storage
}

func (f *failingResultStorage) SaveQuestionResult(runID string, result *store.QuestionResult) error {
	return fmt.Errorf("disk full")
}

func TestExecutorStoreFailureFailsRun(t *testing.T) {
	results := map[string][]scoring.ScoredItem{
		"q": items(map[string]float64{"doc-A": 0.9}, "doc-A"),
	}
	bm25 := &fakeProvider{method: scoring.MethodBM25, results: results}
	hier := &fakeProvider{method: scoring.MethodHier, results: results}

	storage := &failingResultStorage{Storage: store.NewMemoryStorage()}
	fx := newExecutorFixture(t, storage, bm25, hier)
	ctx := context.Background()

	if _, err := fx.store.ImportParsed(ctx, fx.suite.ID, []suite.Question{
		{QID: "Q001", Text: "q", Gold: suite.Gold{ParentMetadataIDs: []string{"doc-A"}}},
	}, nil); err != nil {
		t.Fatalf("ImportParsed() error: %v", err)
	}

	run, err := fx.store.CreateRun(ctx, fx.suite.ID, nil)
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	fx.executor.Execute(ctx, run.ID)

	done, _ := fx.store.GetRun(ctx, run.ID)
	if done.Status != store.RunFailed {
		t.Fatalf("Status = %s, want failed", done.Status)
	}
	if done.Error == "" {
		t.Error("run error not recorded")
	}
}
