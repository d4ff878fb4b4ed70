package archive

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]RunRecord
	history   map[string][]GenerationRecord
	solutions map[string][]SolutionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]RunRecord),
		history:   make(map[string][]GenerationRecord),
		solutions: make(map[string][]SolutionRecord),
	}
}

// Init resets the store to empty.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]RunRecord)
	s.history = make(map[string][]GenerationRecord)
	s.solutions = make(map[string][]SolutionRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStore) SaveHistory(_ context.Context, runID string, history []GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]GenerationRecord, len(history))
	copy(copied, history)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, runID string) ([]GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]GenerationRecord, len(history))
	copy(copied, history)
	return copied, true, nil
}

func (s *MemoryStore) SaveSolutions(_ context.Context, runID string, solutions []SolutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]SolutionRecord, 0, len(solutions))
	for _, solution := range solutions {
		solution.Genome = append([]byte(nil), solution.Genome...)
		copied = append(copied, solution)
	}
	s.solutions[runID] = copied
	return nil
}

func (s *MemoryStore) GetSolutions(_ context.Context, runID string) ([]SolutionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	solutions, ok := s.solutions[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]SolutionRecord, 0, len(solutions))
	for _, solution := range solutions {
		solution.Genome = append([]byte(nil), solution.Genome...)
		copied = append(copied, solution)
	}
	return copied, true, nil
}
