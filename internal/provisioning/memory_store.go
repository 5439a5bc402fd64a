package provisioning

import (
	"context"
	"sort"
	"sync"
)

// MemoryRunStore is an in-memory RunStore
type MemoryRunStore struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	byUser map[string][]string
}

// NewMemoryRunStore creates a new in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs:   make(map[string]*Run),
		byUser: make(map[string][]string),
	}
}

// SaveRun persists a new run
func (s *MemoryRunStore) SaveRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return ErrRunExists
	}

	s.runs[run.ID] = copyRun(run)
	s.byUser[run.UserID] = append(s.byUser[run.UserID], run.ID)
	return nil
}

// UpdateRun replaces an existing run
func (s *MemoryRunStore) UpdateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return ErrRunNotFound
	}

	s.runs[run.ID] = copyRun(run)
	return nil
}

// GetRun retrieves a run by id
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

// ListRunsByUser returns one page of a user's runs, newest first
func (s *MemoryRunStore) ListRunsByUser(ctx context.Context, userID string, limit, offset int) ([]*Run, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	result := make([]*Run, 0, len(ids))
	for _, id := range ids {
		result = append(result, copyRun(s.runs[id]))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	total := int64(len(result))
	if offset >= len(result) {
		return []*Run{}, total, nil
	}
	if offset > 0 {
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, total, nil
}

// Count returns the number of stored runs
func (s *MemoryRunStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func copyRun(run *Run) *Run {
	if run == nil {
		return nil
	}

	copied := *run
	copied.Steps = make([]StepResult, len(run.Steps))
	copy(copied.Steps, run.Steps)
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		copied.CompletedAt = &t
	}
	return &copied
}
