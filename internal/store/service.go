package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/evalstudio/eval-studio/internal/pkg/errors"
	"github.com/evalstudio/eval-studio/internal/suite"
)

// List clamps.
const (
	DefaultRunListLimit = 50
	MaxRunListLimit     = 500
)

// Service provides suite and run persistence operations.
type Service struct {
	storage Storage

	// runMu serializes run state transitions so a status check and the
	// following save are atomic.
	runMu sync.Mutex
}

// ServiceConfig holds configuration for the store service.
type ServiceConfig struct {
	// StoragePath is the path to data files. Empty means in-memory.
	StoragePath string
}

// NewService creates a new store service.
func NewService(cfg ServiceConfig) *Service {
	var storage Storage
	if cfg.StoragePath != "" {
		storage = NewFileStorage(cfg.StoragePath)
	} else {
		storage = NewMemoryStorage()
	}
	return NewServiceWithStorage(storage)
}

// NewServiceWithStorage creates a store service on an explicit storage
// backend (used by tests).
func NewServiceWithStorage(storage Storage) *Service {
	return &Service{storage: storage}
}

// newID returns a random 128-bit hex identifier.
func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("failed to generate id: %v", err))
	}
	return hex.EncodeToString(b)
}

// Suite operations

// CreateSuite creates a new suite. The spec is stored normalized; scope is
// validated later at run creation so a suite can be drafted first.
func (s *Service) CreateSuite(ctx context.Context, name, description string, spec suite.Spec) (*suite.Suite, error) {
	now := time.Now().UTC()
	st := &suite.Suite{
		ID:          newID(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Spec:        spec.Normalized(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}

	if err := s.storage.SaveSuite(st); err != nil {
		return nil, apperrors.StoreError("failed to save suite", err)
	}
	return st, nil
}

// GetSuite retrieves a suite by id.
func (s *Service) GetSuite(ctx context.Context, id string) (*suite.Suite, error) {
	st, err := s.storage.LoadSuite(id)
	if err != nil {
		return nil, apperrors.NotFoundError("suite")
	}
	return st, nil
}

// ListSuites returns all suites, newest first.
func (s *Service) ListSuites(ctx context.Context) ([]*suite.Suite, error) {
	suites, err := s.storage.LoadAllSuites()
	if err != nil {
		return nil, apperrors.StoreError("failed to load suites", err)
	}
	sort.Slice(suites, func(i, j int) bool {
		return suites[i].CreatedAt.After(suites[j].CreatedAt)
	})
	return suites, nil
}

// UpdateSpec merges a partial spec update onto the stored suite spec. Keys
// absent from the update are left untouched. The merged spec must carry a
// non-empty document scope.
func (s *Service) UpdateSpec(ctx context.Context, id string, update json.RawMessage) (*suite.Suite, error) {
	st, err := s.GetSuite(ctx, id)
	if err != nil {
		return nil, err
	}

	merged, err := suite.MergeSpec(st.Spec, update)
	if err != nil {
		return nil, err
	}
	if err := merged.ValidateScope(); err != nil {
		return nil, err
	}

	st.Spec = merged.Normalized()
	st.UpdatedAt = time.Now().UTC()

	if err := s.storage.SaveSuite(st); err != nil {
		return nil, apperrors.StoreError("failed to save suite", err)
	}
	return st, nil
}

// Question operations

// ImportQuestions parses a YAML question batch and upserts it into the
// suite. Bad rows are reported, not fatal.
func (s *Service) ImportQuestions(ctx context.Context, suiteID, yamlText string) (*suite.ImportReport, error) {
	questions, rowErrors, err := suite.ParseQuestionBatch(yamlText)
	if err != nil {
		return nil, err
	}
	return s.ImportParsed(ctx, suiteID, questions, rowErrors)
}

// ImportParsed upserts already-parsed questions into a suite, keyed by QID.
// Re-importing an existing QID overwrites it wholesale and counts as an
// update even when nothing changed.
func (s *Service) ImportParsed(ctx context.Context, suiteID string, questions []suite.Question, rowErrors []suite.ImportError) (*suite.ImportReport, error) {
	st, err := s.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	existing, err := s.storage.LoadQuestions(suiteID)
	if err != nil {
		return nil, apperrors.StoreError("failed to load questions", err)
	}

	index := make(map[string]int, len(existing))
	for i, q := range existing {
		index[q.QID] = i
	}

	now := time.Now().UTC()
	report := &suite.ImportReport{
		Errors: append([]suite.ImportError{}, rowErrors...),
	}
	for _, q := range questions {
		qCopy := q
		qCopy.UpdatedAt = now
		if i, found := index[q.QID]; found {
			qCopy.CreatedAt = existing[i].CreatedAt
			existing[i] = &qCopy
			report.Updated++
		} else {
			qCopy.CreatedAt = now
			index[q.QID] = len(existing)
			existing = append(existing, &qCopy)
			report.Inserted++
		}
	}
	report.Total = len(existing)

	if report.Inserted+report.Updated > 0 {
		if err := s.storage.SaveQuestions(suiteID, existing); err != nil {
			return nil, apperrors.StoreError("failed to save questions", err)
		}
		st.UpdatedAt = now
		if err := s.storage.SaveSuite(st); err != nil {
			return nil, apperrors.StoreError("failed to save suite", err)
		}
	}
	return report, nil
}

// ListQuestions returns a suite's questions in import order.
func (s *Service) ListQuestions(ctx context.Context, suiteID string) ([]*suite.Question, error) {
	if _, err := s.GetSuite(ctx, suiteID); err != nil {
		return nil, err
	}

	questions, err := s.storage.LoadQuestions(suiteID)
	if err != nil {
		return nil, apperrors.StoreError("failed to load questions", err)
	}
	return questions, nil
}

// Run operations

// CreateRun creates a pending run for a suite. The effective spec is the
// stored suite spec with the optional override merged in, snapshotted onto
// the run; the stored suite is never modified.
func (s *Service) CreateRun(ctx context.Context, suiteID string, override json.RawMessage) (*Run, error) {
	st, err := s.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	merged, err := suite.MergeSpec(st.Spec, override)
	if err != nil {
		return nil, err
	}
	spec := merged.Normalized()
	if err := spec.ValidateScope(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &Run{
		ID:        newID(),
		SuiteID:   suiteID,
		Status:    RunPending,
		Spec:      spec,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.SaveRun(run); err != nil {
		return nil, apperrors.StoreError("failed to save run", err)
	}
	return run, nil
}

// GetRun retrieves a run by id.
func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := s.storage.LoadRun(id)
	if err != nil {
		return nil, apperrors.NotFoundError("run")
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by suite. Limit
// is clamped to [1, 500] and defaults to 50.
func (s *Service) ListRuns(ctx context.Context, suiteID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}
	if limit > MaxRunListLimit {
		limit = MaxRunListLimit
	}

	runs, err := s.storage.LoadAllRuns()
	if err != nil {
		return nil, apperrors.StoreError("failed to load runs", err)
	}

	if suiteID != "" {
		filtered := make([]*Run, 0, len(runs))
		for _, run := range runs {
			if run.SuiteID == suiteID {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// StartRun transitions a run from pending to running.
func (s *Service) StartRun(ctx context.Context, id string) (*Run, error) {
	return s.transition(ctx, id, RunRunning, func(run *Run, now time.Time) {
		run.StartedAt = &now
	})
}

// CompleteRun transitions a run from running to completed and stores the
// final summary.
func (s *Service) CompleteRun(ctx context.Context, id string, summary *Summary) (*Run, error) {
	return s.transition(ctx, id, RunCompleted, func(run *Run, now time.Time) {
		run.Summary = summary
		run.CompletedAt = &now
	})
}

// FailRun transitions a run to failed with an error message. Failing an
// already-terminal run is a no-op so late executor errors do not clobber a
// recorded outcome.
func (s *Service) FailRun(ctx context.Context, id, message string) (*Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}

	now := time.Now().UTC()
	run.Status = RunFailed
	run.Error = message
	run.CompletedAt = &now
	run.UpdatedAt = now

	if err := s.storage.SaveRun(run); err != nil {
		return nil, apperrors.StoreError("failed to save run", err)
	}
	return run, nil
}

func (s *Service) transition(ctx context.Context, id string, next RunStatus, mutate func(*Run, time.Time)) (*Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.CanTransitionTo(next) {
		return nil, apperrors.InvalidRequestError(
			fmt.Sprintf("run %s cannot move from %s to %s", id, run.Status, next))
	}

	now := time.Now().UTC()
	run.Status = next
	run.UpdatedAt = now
	mutate(run, now)

	if err := s.storage.SaveRun(run); err != nil {
		return nil, apperrors.StoreError("failed to save run", err)
	}
	return run, nil
}

// AppendQuestionResult records one question's metric and evidence rows for
// a run. Results stream in while the run is still running.
func (s *Service) AppendQuestionResult(ctx context.Context, runID string, result *QuestionResult) error {
	if !s.storage.RunExists(runID) {
		return apperrors.NotFoundError("run")
	}
	if err := s.storage.SaveQuestionResult(runID, result); err != nil {
		return apperrors.StoreError("failed to save question result", err)
	}
	return nil
}

// ListQuestionMetrics returns all per-question metrics recorded for a run,
// in evaluation order.
func (s *Service) ListQuestionMetrics(ctx context.Context, runID string) ([]QuestionMetric, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	results, err := s.storage.LoadQuestionResults(runID)
	if err != nil {
		return nil, apperrors.StoreError("failed to load question results", err)
	}

	metrics := make([]QuestionMetric, len(results))
	for i, r := range results {
		metrics[i] = r.Metric
	}
	return metrics, nil
}

// GetRunQuestion returns one question's metric plus its evidence rows.
func (s *Service) GetRunQuestion(ctx context.Context, runID, qid string) (*QuestionResult, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	result, err := s.storage.LoadQuestionResult(runID, qid)
	if err != nil {
		return nil, apperrors.NotFoundError("question result")
	}
	return result, nil
}
