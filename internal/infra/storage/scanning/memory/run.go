package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/webscan-armada/internal/domain/scanning"
)

var _ scanning.RunRepository = (*RunStore)(nil)

// RunStore is an in-memory scanning.RunRepository used when no database is
// configured. Stored runs are copies; callers never share memory with it.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]scanning.Run
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]scanning.Run)}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run *scanning.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

// UpdateRun replaces a stored run.
func (s *RunStore) UpdateRun(_ context.Context, run *scanning.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return scanning.ErrRunNotFound
	}
	s.runs[run.ID] = *run
	return nil
}

// GetRun returns a copy of the run with id.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (*scanning.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, scanning.ErrRunNotFound
	}
	return &run, nil
}

// ListRuns returns copies of stored runs, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit, offset int) ([]*scanning.Run, error) {
	s.mu.RLock()
	all := make([]*scanning.Run, 0, len(s.runs))
	for _, run := range s.runs {
		r := run
		all = append(all, &r)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID.String() < all[j].ID.String()
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	if offset >= len(all) {
		return []*scanning.Run{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}
