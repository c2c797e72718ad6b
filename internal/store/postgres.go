package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapbet/decision-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Recommendation and quote snapshots are stored as JSONB; prices are
// integer cents, so no NUMERIC columns are needed.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.PredictionJob) error {
	rec, quote, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO prediction_jobs
		   (job_id, user_id, model, image_key, context, status,
		    recommendation, market_quote, error_message, user_notes,
		    model_idea, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.JobID, job.UserID, job.Model, job.ImageKey, job.Context,
		string(job.Status), rec, quote, job.ErrorMessage, job.UserNotes,
		job.ModelIdea, job.CreatedAt, job.CompletedAt,
	)
	return err
}

const jobColumns = `job_id, user_id, model, image_key, context, status,
	recommendation, market_quote, error_message, user_notes, model_idea,
	created_at, completed_at`

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.PredictionJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM prediction_jobs WHERE job_id = $1`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobsByUser(ctx context.Context, userID string) ([]model.PredictionJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM prediction_jobs
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.PredictionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.PredictionJob) error {
	rec, quote, err := marshalJobBlobs(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE prediction_jobs
		 SET status = $2, recommendation = $3, market_quote = $4,
		     error_message = $5, completed_at = $6
		 WHERE job_id = $1`,
		job.JobID, string(job.Status), rec, quote, job.ErrorMessage, job.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateJobAnnotations(ctx context.Context, jobID string, ann Annotations) (*model.PredictionJob, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prediction_jobs
		 SET user_notes = COALESCE($2, user_notes),
		     model_idea = COALESCE($3, model_idea),
		     context    = COALESCE($4, context)
		 WHERE job_id = $1`,
		jobID, ann.UserNotes, ann.ModelIdea, ann.Context,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetJob(ctx, jobID)
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.TrackedPosition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracked_positions
		   (position_id, user_id, job_id, ticker, title, side, entry_price,
		    status, current_price, unrealized_pnl, settlement_price,
		    realized_pnl, confidence, model, created_at, settled_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.PositionID, p.UserID, p.JobID, p.Ticker, p.Title, string(p.Side),
		p.EntryPrice, string(p.Status), p.CurrentPrice, p.UnrealizedPnL,
		p.SettlementPrice, p.RealizedPnL, p.Confidence, p.Model,
		p.CreatedAt, p.SettledAt, p.UpdatedAt,
	)
	return err
}

const positionColumns = `position_id, user_id, job_id, ticker, title, side,
	entry_price, status, current_price, unrealized_pnl, settlement_price,
	realized_pnl, confidence, model, created_at, settled_at, updated_at`

func (s *PostgresStore) GetPosition(ctx context.Context, positionID string) (*model.TrackedPosition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM tracked_positions WHERE position_id = $1`, positionID)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", positionID, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.TrackedPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM tracked_positions
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

func (s *PostgresStore) ListActivePositions(ctx context.Context) ([]model.TrackedPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM tracked_positions
		 WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPositions(rows)
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *model.TrackedPosition) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracked_positions
		 SET status = $2, current_price = $3, unrealized_pnl = $4,
		     settlement_price = $5, realized_pnl = $6, settled_at = $7,
		     updated_at = $8
		 WHERE position_id = $1`,
		p.PositionID, string(p.Status), p.CurrentPrice, p.UnrealizedPnL,
		p.SettlementPrice, p.RealizedPnL, p.SettledAt, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, positionID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tracked_positions WHERE position_id = $1`, positionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Scan helpers ---

func marshalJobBlobs(job *model.PredictionJob) (rec, quote []byte, err error) {
	if job.Rec != nil {
		if rec, err = json.Marshal(job.Rec); err != nil {
			return nil, nil, fmt.Errorf("marshal recommendation: %w", err)
		}
	}
	if job.Quote != nil {
		if quote, err = json.Marshal(job.Quote); err != nil {
			return nil, nil, fmt.Errorf("marshal quote: %w", err)
		}
	}
	return rec, quote, nil
}

func scanJob(row pgx.Row) (*model.PredictionJob, error) {
	var (
		j          model.PredictionJob
		status     string
		rec, quote []byte
	)
	err := row.Scan(&j.JobID, &j.UserID, &j.Model, &j.ImageKey, &j.Context,
		&status, &rec, &quote, &j.ErrorMessage, &j.UserNotes, &j.ModelIdea,
		&j.CreatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)

	if len(rec) > 0 {
		j.Rec = &model.Recommendation{}
		if err := json.Unmarshal(rec, j.Rec); err != nil {
			return nil, fmt.Errorf("unmarshal recommendation: %w", err)
		}
	}
	if len(quote) > 0 {
		j.Quote = &model.MarketQuote{}
		if err := json.Unmarshal(quote, j.Quote); err != nil {
			return nil, fmt.Errorf("unmarshal quote: %w", err)
		}
	}
	return &j, nil
}

func scanPosition(row pgx.Row) (*model.TrackedPosition, error) {
	var (
		p            model.TrackedPosition
		side, status string
	)
	err := row.Scan(&p.PositionID, &p.UserID, &p.JobID, &p.Ticker, &p.Title,
		&side, &p.EntryPrice, &status, &p.CurrentPrice, &p.UnrealizedPnL,
		&p.SettlementPrice, &p.RealizedPnL, &p.Confidence, &p.Model,
		&p.CreatedAt, &p.SettledAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Side = model.Side(side)
	p.Status = model.PositionStatus(status)
	return &p, nil
}

func collectPositions(rows pgx.Rows) ([]model.TrackedPosition, error) {
	var positions []model.TrackedPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}
