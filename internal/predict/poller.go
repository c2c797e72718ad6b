package predict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/snapbet/decision-engine/internal/model"
)

// Defaults give a 120s ceiling before ErrPollTimeout.
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 60
)

// ErrPollTimeout is returned when polling exhausts its attempt budget. The
// job is left as-is server-side — it may still complete later — but this
// flow must treat it as abandoned.
var ErrPollTimeout = errors.New("predict: polling timed out before job reached a terminal state")

// JobFailedError is the terminal failure of a job. The job is never retried;
// the caller may resubmit as a new job.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("predict: job %s failed: %s", e.JobID, e.Message)
}

// JobFetcher is the single read the poller needs; satisfied by *Client.
type JobFetcher interface {
	GetJob(ctx context.Context, jobID string) (*model.PredictionJob, error)
}

// Poller repeatedly fetches a job until it reaches a terminal state.
// Zero-value Interval/MaxAttempts fall back to the defaults; both are
// caller-overridable.
type Poller struct {
	Fetcher     JobFetcher
	Interval    time.Duration
	MaxAttempts int
}

// NewPoller creates a poller with the default cadence.
func NewPoller(f JobFetcher) *Poller {
	return &Poller{Fetcher: f, Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts}
}

// Poll fetches the job until its status is completed or failed, waiting
// Interval between fetches, for at most MaxAttempts fetches.
//
// A single fetch error propagates immediately — transient failures are not
// retried here; the caller may recover by re-invoking Poll. Cancelling ctx
// stops the loop between fetches so an abandoned flow issues no further
// requests and never applies a stale result.
func (p *Poller) Poll(ctx context.Context, jobID string) (*model.PredictionJob, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		job, err := p.Fetcher.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: job %s after %d attempts", ErrPollTimeout, jobID, attempts)
}

// PollCompleted is Poll for callers that only care about a usable
// recommendation: a terminal failed job comes back as *JobFailedError.
func (p *Poller) PollCompleted(ctx context.Context, jobID string) (*model.PredictionJob, error) {
	job, err := p.Poll(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobFailed {
		return nil, &JobFailedError{JobID: job.JobID, Message: job.ErrorMessage}
	}
	return job, nil
}
