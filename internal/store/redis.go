package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snapbet/decision-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Jobs ---

func (s *CachedStore) CreateJob(ctx context.Context, job *model.PredictionJob) error {
	if err := s.primary.CreateJob(ctx, job); err != nil {
		return err
	}
	s.cacheJob(ctx, job)
	s.rdb.Del(ctx, userJobsKey(job.UserID))
	return nil
}

func (s *CachedStore) GetJob(ctx context.Context, jobID string) (*model.PredictionJob, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err == nil {
		var j model.PredictionJob
		if json.Unmarshal(data, &j) == nil {
			return &j, nil
		}
	}

	// Cache miss: read from primary.
	job, err := s.primary.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s.cacheJob(ctx, job)
	return job, nil
}

func (s *CachedStore) ListJobsByUser(ctx context.Context, userID string) ([]model.PredictionJob, error) {
	data, err := s.rdb.Get(ctx, userJobsKey(userID)).Bytes()
	if err == nil {
		var jobs []model.PredictionJob
		if json.Unmarshal(data, &jobs) == nil {
			return jobs, nil
		}
	}

	jobs, err := s.primary.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(jobs); err == nil {
		s.rdb.Set(ctx, userJobsKey(userID), data, s.ttl)
	}
	return jobs, nil
}

func (s *CachedStore) UpdateJob(ctx context.Context, job *model.PredictionJob) error {
	if err := s.primary.UpdateJob(ctx, job); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, jobKey(job.JobID), userJobsKey(job.UserID))
	return nil
}

func (s *CachedStore) UpdateJobAnnotations(ctx context.Context, jobID string, ann Annotations) (*model.PredictionJob, error) {
	job, err := s.primary.UpdateJobAnnotations(ctx, jobID, ann)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, userJobsKey(job.UserID))
	s.cacheJob(ctx, job)
	return job, nil
}

// --- Positions ---

func (s *CachedStore) CreatePosition(ctx context.Context, p *model.TrackedPosition) error {
	if err := s.primary.CreatePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, userPositionsKey(p.UserID))
	return nil
}

func (s *CachedStore) GetPosition(ctx context.Context, positionID string) (*model.TrackedPosition, error) {
	return s.primary.GetPosition(ctx, positionID)
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.TrackedPosition, error) {
	data, err := s.rdb.Get(ctx, userPositionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.TrackedPosition
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, userPositionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// ListActivePositions always hits the primary: the monitor needs fresh
// cross-user state, and caching it would only delay settlements.
func (s *CachedStore) ListActivePositions(ctx context.Context) ([]model.TrackedPosition, error) {
	return s.primary.ListActivePositions(ctx)
}

func (s *CachedStore) UpdatePosition(ctx context.Context, p *model.TrackedPosition) error {
	if err := s.primary.UpdatePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, userPositionsKey(p.UserID))
	return nil
}

func (s *CachedStore) DeletePosition(ctx context.Context, positionID string) error {
	p, err := s.primary.GetPosition(ctx, positionID)
	if err != nil {
		return err
	}
	if err := s.primary.DeletePosition(ctx, positionID); err != nil {
		return err
	}
	s.rdb.Del(ctx, userPositionsKey(p.UserID))
	return nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheJob(ctx context.Context, job *model.PredictionJob) {
	if data, err := json.Marshal(job); err == nil {
		s.rdb.Set(ctx, jobKey(job.JobID), data, s.ttl)
	}
}

func jobKey(id string) string            { return fmt.Sprintf("job:%s", id) }
func userJobsKey(uid string) string      { return fmt.Sprintf("jobs:%s", uid) }
func userPositionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
