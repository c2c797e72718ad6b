package store

import (
	"context"
	"sort"
	"sync"

	"github.com/snapbet/decision-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*model.PredictionJob
	positions map[string]*model.TrackedPosition
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*model.PredictionJob),
		positions: make(map[string]*model.TrackedPosition),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *model.PredictionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*model.PredictionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) ListJobsByUser(_ context.Context, userID string) ([]model.PredictionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []model.PredictionJob
	for _, j := range s.jobs {
		if j.UserID == userID {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs, nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job *model.PredictionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; !ok {
		return ErrNotFound
	}
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

func (s *MemoryStore) UpdateJobAnnotations(_ context.Context, jobID string, ann Annotations) (*model.PredictionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if ann.UserNotes != nil {
		j.UserNotes = *ann.UserNotes
	}
	if ann.ModelIdea != nil {
		j.ModelIdea = *ann.ModelIdea
	}
	if ann.Context != nil {
		j.Context = *ann.Context
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.TrackedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.positions[p.PositionID] = &cp
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, positionID string) (*model.TrackedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.TrackedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.TrackedPosition
	for _, p := range s.positions {
		if p.UserID == userID {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, k int) bool {
		return positions[i].CreatedAt.After(positions[k].CreatedAt)
	})
	return positions, nil
}

func (s *MemoryStore) ListActivePositions(_ context.Context) ([]model.TrackedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.TrackedPosition
	for _, p := range s.positions {
		if p.Status == model.PositionActive {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p *model.TrackedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[p.PositionID]; !ok {
		return ErrNotFound
	}
	cp := *p
	s.positions[p.PositionID] = &cp
	return nil
}

func (s *MemoryStore) DeletePosition(_ context.Context, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[positionID]; !ok {
		return ErrNotFound
	}
	delete(s.positions, positionID)
	return nil
}
