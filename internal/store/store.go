// Package store defines the persistence interface for prediction jobs and
// tracked positions. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/snapbet/decision-engine/internal/model"
)

// ErrNotFound is returned by all implementations for missing records.
var ErrNotFound = errors.New("store: not found")

// Annotations carries optional metadata edits for a job. Nil fields are
// left untouched.
type Annotations struct {
	UserNotes *string
	ModelIdea *string
	Context   *string
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Prediction jobs ---

	// CreateJob persists a newly submitted job.
	CreateJob(ctx context.Context, job *model.PredictionJob) error

	// GetJob retrieves a job by its ID.
	GetJob(ctx context.Context, jobID string) (*model.PredictionJob, error)

	// ListJobsByUser returns all jobs for a user, newest first.
	ListJobsByUser(ctx context.Context, userID string) ([]model.PredictionJob, error)

	// UpdateJob replaces the stored job state as the poller observes
	// external transitions.
	UpdateJob(ctx context.Context, job *model.PredictionJob) error

	// UpdateJobAnnotations patches user notes without touching the
	// recommendation or status.
	UpdateJobAnnotations(ctx context.Context, jobID string, ann Annotations) (*model.PredictionJob, error)

	// --- Tracked positions ---

	// CreatePosition persists a newly accepted position.
	CreatePosition(ctx context.Context, p *model.TrackedPosition) error

	// GetPosition retrieves a position by its ID.
	GetPosition(ctx context.Context, positionID string) (*model.TrackedPosition, error)

	// ListPositionsByUser returns all positions for a user, newest first.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.TrackedPosition, error)

	// ListActivePositions returns every active position across users, for
	// the background monitor.
	ListActivePositions(ctx context.Context) ([]model.TrackedPosition, error)

	// UpdatePosition replaces the stored position state.
	UpdatePosition(ctx context.Context, p *model.TrackedPosition) error

	// DeletePosition removes a position. Lifecycle rules (active-only
	// deletion) are enforced by the position service, not here.
	DeletePosition(ctx context.Context, positionID string) error
}
