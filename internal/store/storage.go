package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/evalstudio/eval-studio/internal/suite"
)

// Storage is the interface for harness persistence.
type Storage interface {
	// Suite operations
	SaveSuite(s *suite.Suite) error
	LoadSuite(id string) (*suite.Suite, error)
	LoadAllSuites() ([]*suite.Suite, error)
	DeleteSuite(id string) error
	SuiteExists(id string) bool

	// Question operations. Questions are stored wholesale per suite; the
	// service layer handles per-question upsert semantics.
	SaveQuestions(suiteID string, questions []*suite.Question) error
	LoadQuestions(suiteID string) ([]*suite.Question, error)

	// Run operations
	SaveRun(run *Run) error
	LoadRun(id string) (*Run, error)
	LoadAllRuns() ([]*Run, error)
	RunExists(id string) bool

	// Question result operations, keyed by run then question id.
	SaveQuestionResult(runID string, result *QuestionResult) error
	LoadQuestionResult(runID, qid string) (*QuestionResult, error)
	LoadQuestionResults(runID string) ([]*QuestionResult, error)
}

// MemoryStorage stores everything in memory (for testing).
type MemoryStorage struct {
	suites    map[string]*suite.Suite
	questions map[string][]*suite.Question
	runs      map[string]*Run
	results   map[string]map[string]*QuestionResult
	resultQID map[string][]string
	mu        sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		suites:    make(map[string]*suite.Suite),
		questions: make(map[string][]*suite.Question),
		runs:      make(map[string]*Run),
		results:   make(map[string]map[string]*QuestionResult),
		resultQID: make(map[string][]string),
	}
}

func (m *MemoryStorage) SaveSuite(s *suite.Suite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	suiteCopy := *s
	m.suites[s.ID] = &suiteCopy
	return nil
}

func (m *MemoryStorage) LoadSuite(id string) (*suite.Suite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.suites[id]
	if !exists {
		return nil, fmt.Errorf("suite %s not found", id)
	}

	suiteCopy := *s
	return &suiteCopy, nil
}

func (m *MemoryStorage) LoadAllSuites() ([]*suite.Suite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	suites := make([]*suite.Suite, 0, len(m.suites))
	for _, s := range m.suites {
		suiteCopy := *s
		suites = append(suites, &suiteCopy)
	}
	return suites, nil
}

func (m *MemoryStorage) DeleteSuite(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.suites, id)
	delete(m.questions, id)
	return nil
}

func (m *MemoryStorage) SuiteExists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.suites[id]
	return exists
}

func (m *MemoryStorage) SaveQuestions(suiteID string, questions []*suite.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copies := make([]*suite.Question, len(questions))
	for i, q := range questions {
		qCopy := *q
		copies[i] = &qCopy
	}
	m.questions[suiteID] = copies
	return nil
}

func (m *MemoryStorage) LoadQuestions(suiteID string) ([]*suite.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	questions := m.questions[suiteID]
	copies := make([]*suite.Question, len(questions))
	for i, q := range questions {
		qCopy := *q
		copies[i] = &qCopy
	}
	return copies, nil
}

func (m *MemoryStorage) SaveRun(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runCopy := *run
	m.runs[run.ID] = &runCopy
	return nil
}

func (m *MemoryStorage) LoadRun(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s not found", id)
	}

	runCopy := *run
	return &runCopy, nil
}

func (m *MemoryStorage) LoadAllRuns() ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runCopy := *run
		runs = append(runs, &runCopy)
	}
	return runs, nil
}

func (m *MemoryStorage) RunExists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.runs[id]
	return exists
}

func (m *MemoryStorage) SaveQuestionResult(runID string, result *QuestionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byQID, exists := m.results[runID]
	if !exists {
		byQID = make(map[string]*QuestionResult)
		m.results[runID] = byQID
	}

	qid := result.Metric.QID
	if _, seen := byQID[qid]; !seen {
		m.resultQID[runID] = append(m.resultQID[runID], qid)
	}

	resultCopy := *result
	byQID[qid] = &resultCopy
	return nil
}

func (m *MemoryStorage) LoadQuestionResult(runID, qid string) (*QuestionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result, exists := m.results[runID][qid]
	if !exists {
		return nil, fmt.Errorf("result for question %s in run %s not found", qid, runID)
	}

	resultCopy := *result
	return &resultCopy, nil
}

func (m *MemoryStorage) LoadQuestionResults(runID string) ([]*QuestionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	qids := m.resultQID[runID]
	results := make([]*QuestionResult, 0, len(qids))
	for _, qid := range qids {
		resultCopy := *m.results[runID][qid]
		results = append(results, &resultCopy)
	}
	return results, nil
}

// FileStorage stores everything in JSON files under a base directory.
// Layout: suites/<id>.json, suites/<id>.questions.json, runs/<id>.json,
// runs/<id>.results.json.
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStorage creates a new file-based storage.
func NewFileStorage(basePath string) *FileStorage {
	return &FileStorage{
		basePath: basePath,
	}
}

func (f *FileStorage) suitesDir() string {
	return filepath.Join(f.basePath, "suites")
}

func (f *FileStorage) suitePath(id string) string {
	return filepath.Join(f.suitesDir(), id+".json")
}

func (f *FileStorage) questionsPath(suiteID string) string {
	return filepath.Join(f.suitesDir(), suiteID+".questions.json")
}

func (f *FileStorage) runsDir() string {
	return filepath.Join(f.basePath, "runs")
}

func (f *FileStorage) runPath(id string) string {
	return filepath.Join(f.runsDir(), id+".json")
}

func (f *FileStorage) resultsPath(runID string) string {
	return filepath.Join(f.runsDir(), runID+".results.json")
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (f *FileStorage) SaveSuite(s *suite.Suite) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return writeJSON(f.suitePath(s.ID), s)
}

func (f *FileStorage) LoadSuite(id string) (*suite.Suite, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var s suite.Suite
	if err := readJSON(f.suitePath(id), &s); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("suite %s not found", id)
		}
		return nil, err
	}
	return &s, nil
}

func (f *FileStorage) LoadAllSuites() ([]*suite.Suite, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := readDirEntries(f.suitesDir())
	if err != nil {
		return nil, err
	}

	var suites []*suite.Suite
	for _, name := range entries {
		if filepath.Ext(name) != ".json" || isQuestionsFile(name) {
			continue
		}

		var s suite.Suite
		if err := readJSON(filepath.Join(f.suitesDir(), name), &s); err != nil {
			continue // Skip invalid files
		}
		suites = append(suites, &s)
	}
	return suites, nil
}

func (f *FileStorage) DeleteSuite(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.suitePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete suite file: %w", err)
	}
	if err := os.Remove(f.questionsPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete questions file: %w", err)
	}
	return nil
}

func (f *FileStorage) SuiteExists(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, err := os.Stat(f.suitePath(id))
	return err == nil
}

func (f *FileStorage) SaveQuestions(suiteID string, questions []*suite.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return writeJSON(f.questionsPath(suiteID), questions)
}

func (f *FileStorage) LoadQuestions(suiteID string) ([]*suite.Question, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var questions []*suite.Question
	if err := readJSON(f.questionsPath(suiteID), &questions); err != nil {
		if os.IsNotExist(err) {
			return []*suite.Question{}, nil
		}
		return nil, err
	}
	return questions, nil
}

func (f *FileStorage) SaveRun(run *Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return writeJSON(f.runPath(run.ID), run)
}

func (f *FileStorage) LoadRun(id string) (*Run, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var run Run
	if err := readJSON(f.runPath(id), &run); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, err
	}
	return &run, nil
}

func (f *FileStorage) LoadAllRuns() ([]*Run, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := readDirEntries(f.runsDir())
	if err != nil {
		return nil, err
	}

	var runs []*Run
	for _, name := range entries {
		if filepath.Ext(name) != ".json" || isResultsFile(name) {
			continue
		}

		var run Run
		if err := readJSON(filepath.Join(f.runsDir(), name), &run); err != nil {
			continue // Skip invalid files
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

func (f *FileStorage) RunExists(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, err := os.Stat(f.runPath(id))
	return err == nil
}

func (f *FileStorage) SaveQuestionResult(runID string, result *QuestionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	results, err := f.loadResultsUnlocked(runID)
	if err != nil {
		return err
	}

	found := false
	for i, r := range results {
		if r.Metric.QID == result.Metric.QID {
			results[i] = result
			found = true
			break
		}
	}
	if !found {
		results = append(results, result)
	}

	return writeJSON(f.resultsPath(runID), results)
}

func (f *FileStorage) LoadQuestionResult(runID, qid string) (*QuestionResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	results, err := f.loadResultsUnlocked(runID)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Metric.QID == qid {
			return r, nil
		}
	}
	return nil, fmt.Errorf("result for question %s in run %s not found", qid, runID)
}

func (f *FileStorage) LoadQuestionResults(runID string) ([]*QuestionResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.loadResultsUnlocked(runID)
}

func (f *FileStorage) loadResultsUnlocked(runID string) ([]*QuestionResult, error) {
	var results []*QuestionResult
	if err := readJSON(f.resultsPath(runID), &results); err != nil {
		if os.IsNotExist(err) {
			return []*QuestionResult{}, nil
		}
		return nil, err
	}
	return results, nil
}

func readDirEntries(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func isQuestionsFile(name string) bool {
	return filepath.Ext(trimExt(name)) == ".questions"
}

func isResultsFile(name string) bool {
	return filepath.Ext(trimExt(name)) == ".results"
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
