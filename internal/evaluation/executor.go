package evaluation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/evalstudio/eval-studio/internal/bus"
	"github.com/evalstudio/eval-studio/internal/pkg/logger"
	"github.com/evalstudio/eval-studio/internal/scoring"
	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

const eventSource = "eval-studio"

// DefaultConcurrency bounds parallel question evaluation so a large suite
// does not overwhelm the scoring providers.
const DefaultConcurrency = 4

// ExecutorConfig tunes run execution.
type ExecutorConfig struct {
	// Concurrency is the number of questions evaluated in parallel.
	Concurrency int
}

// Executor drives a run through its state machine: it pulls the suite's
// questions, scores each with both providers, streams results into the
// store, and finishes with an aggregate summary.
type Executor struct {
	store       *store.Service
	providers   scoring.Pair
	events      bus.Bus
	log         *logger.Logger
	concurrency int
}

// NewExecutor creates a run executor.
func NewExecutor(storeSvc *store.Service, providers scoring.Pair, events bus.Bus, log *logger.Logger, cfg ExecutorConfig) *Executor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Executor{
		store:       storeSvc,
		providers:   providers,
		events:      events,
		log:         log,
		concurrency: cfg.Concurrency,
	}
}

// Execute runs one run to a terminal state. It never returns an error:
// failures land on the run record. Intended to be launched in a goroutine
// by the server after run creation.
func (e *Executor) Execute(ctx context.Context, runID string) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		e.log.WithRun(runID).Error("run not found at execution start", "error", err)
		return
	}
	log := e.log.WithRun(runID).WithSuite(run.SuiteID)

	run, err = e.store.StartRun(ctx, runID)
	if err != nil {
		log.Error("failed to start run", "error", err)
		return
	}
	e.publish(ctx, bus.TopicRunStarted, run, nil)
	log.Info("run started")

	summary, err := e.execute(ctx, run)
	if err != nil {
		log.Error("run failed", "error", err)
		if _, failErr := e.store.FailRun(ctx, runID, err.Error()); failErr != nil {
			log.Error("failed to record run failure", "error", failErr)
		}
		e.publish(ctx, bus.TopicRunFailed, run, map[string]string{"error": err.Error()})
		return
	}

	completed, err := e.store.CompleteRun(ctx, runID, summary)
	if err != nil {
		log.Error("failed to complete run", "error", err)
		if _, failErr := e.store.FailRun(ctx, runID, fmt.Sprintf("failed to persist summary: %v", err)); failErr != nil {
			log.Error("failed to record run failure", "error", failErr)
		}
		return
	}
	e.publish(ctx, bus.TopicRunCompleted, completed, summary)
	log.Info("run completed",
		"questions_total", summary.QuestionsTotal,
		"questions_with_gold", summary.QuestionsWithGold)
}

// execute does the work between running and a terminal state. A returned
// error is run-fatal.
func (e *Executor) execute(ctx context.Context, run *store.Run) (*store.Summary, error) {
	questions, err := e.store.ListQuestions(ctx, run.SuiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load suite questions: %w", err)
	}
	if run.Spec.LimitQuestions != nil {
		limit := *run.Spec.LimitQuestions
		if limit < 0 {
			limit = 0
		}
		if len(questions) > limit {
			questions = questions[:limit]
		}
	}
	if len(questions) == 0 {
		// An empty suite is a valid, if pointless, run: zero counts and
		// zero rates rather than a failure.
		return Summarize(nil, nil), nil
	}

	scope := scopeFromSpec(run.Spec)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, q := range questions {
		g.Go(func() error {
			result := e.evaluateQuestion(gctx, q, run.Spec, scope)
			// A store write failure is run-fatal; results must be durable
			// before the run can complete.
			if err := e.store.AppendQuestionResult(gctx, run.ID, result); err != nil {
				return fmt.Errorf("failed to persist result for %s: %w", q.QID, err)
			}
			e.publish(gctx, bus.TopicRunQuestion, run, map[string]string{"qid": q.QID})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Aggregate from what the store returns, not from in-memory state, so
	// the summary only ever reflects durably written rows.
	metrics, err := e.store.ListQuestionMetrics(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read back question metrics: %w", err)
	}
	byQID := make(map[string]store.QuestionMetric, len(metrics))
	for _, m := range metrics {
		byQID[m.QID] = m
	}
	return Summarize(questions, byQID), nil
}

// evaluateQuestion scores one question with both providers concurrently. A
// provider failure nulls that method's fields and the run continues.
func (e *Executor) evaluateQuestion(ctx context.Context, q *suite.Question, spec suite.Spec, scope scoring.Scope) *store.QuestionResult {
	log := e.log.With("qid", q.QID)

	var bm25Items, hierItems []scoring.ScoredItem
	var bm25Err, hierErr error

	var pg errgroup.Group
	pg.Go(func() error {
		bm25Items, bm25Err = e.providers.BM25.Score(ctx, q.Text, scope, spec.TopK)
		return nil
	})
	pg.Go(func() error {
		hierItems, hierErr = e.providers.Hier.Score(ctx, q.Text, scope, spec.TopK)
		return nil
	})
	pg.Wait()

	expect := q.ExpectInManual()
	metric := store.QuestionMetric{
		QID:            q.QID,
		Intent:         q.Intent,
		Bucket:         q.Bucket,
		Question:       q.Text,
		ExpectInManual: expect,
		GoldParentIDs:  q.Gold.ParentMetadataIDs,
	}
	var rows []store.EvidenceRow

	if bm25Err != nil {
		log.Warn("bm25 provider failed, recording null metrics", "error", bm25Err)
	} else {
		m, methodRows := Compute(bm25Items, q.Gold, expect, spec.BM25AnswerThreshold)
		metric.BM25GoldRank = m.GoldRank
		metric.BM25MaxNormScore = m.TopScore
		metric.BM25WouldAnswer = &m.WouldAnswer
		metric.BM25FalsePositive = &m.FalsePositive
		rows = append(rows, withMethod(methodRows, scoring.MethodBM25)...)
	}

	if hierErr != nil {
		log.Warn("hier provider failed, recording null metrics", "error", hierErr)
	} else {
		m, methodRows := Compute(hierItems, q.Gold, expect, spec.HierAnswerThreshold)
		metric.HierGoldRank = m.GoldRank
		metric.HierTop1Similarity = m.TopScore
		metric.HierWouldAnswer = &m.WouldAnswer
		metric.HierFalsePositive = &m.FalsePositive
		rows = append(rows, withMethod(methodRows, scoring.MethodHier)...)
	}

	return &store.QuestionResult{Metric: metric, Rows: rows}
}

func withMethod(rows []store.EvidenceRow, method scoring.Method) []store.EvidenceRow {
	for i := range rows {
		rows[i].Method = method
	}
	return rows
}

func scopeFromSpec(spec suite.Spec) scoring.Scope {
	return scoring.Scope{
		AuthorityLevel: spec.DocumentAuthorityLevel,
		DocumentIDs:    spec.DocumentIDs,
		Payer:          spec.DocumentPayer,
		State:          spec.DocumentState,
		Program:        spec.DocumentProgram,
	}
}

func (e *Executor) publish(ctx context.Context, topic string, run *store.Run, payload any) {
	if e.events == nil {
		return
	}
	event := bus.NewEvent(topic, eventSource, run.ID, run.SuiteID, payload)
	if err := e.events.Publish(ctx, topic, event); err != nil {
		e.log.WithRun(run.ID).Warn("failed to publish run event", "topic", topic, "error", err)
	}
}
