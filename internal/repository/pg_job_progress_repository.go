package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gamemaster-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ JobProgressRepository = (*pgJobProgressRepository)(nil)

type pgJobProgressRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgJobProgressRepository creates a PostgreSQL-backed JobProgressRepository.
func NewPgJobProgressRepository(db DBTX, logger *zap.Logger) JobProgressRepository {
	return &pgJobProgressRepository{
		db:     db,
		logger: logger.Named("PgJobProgressRepo"),
	}
}

const jobProgressColumns = `id, campaign_id, kind, steps, status, created_at, updated_at`

const createJobProgressQuery = `
INSERT INTO job_progress (` + jobProgressColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const getJobProgressByIDQuery = `
SELECT ` + jobProgressColumns + ` FROM job_progress WHERE id = $1`

const listJobProgressByCampaignQuery = `
SELECT ` + jobProgressColumns + ` FROM job_progress WHERE campaign_id = $1 ORDER BY created_at DESC`

const updateJobProgressQuery = `
UPDATE job_progress SET steps = $2, status = $3, updated_at = $4 WHERE id = $1`

func scanJobProgress(row pgx.Row) (*models.JobProgress, error) {
	j := &models.JobProgress{}
	var steps []byte
	err := row.Scan(&j.ID, &j.CampaignID, &j.Kind, &steps, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &j.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	return j, nil
}

func (r *pgJobProgressRepository) Create(ctx context.Context, j *models.JobProgress) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Steps == nil {
		j.Steps = []models.JobStep{}
	}
	steps, err := json.Marshal(j.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	_, err = r.db.Exec(ctx, createJobProgressQuery,
		j.ID, j.CampaignID, j.Kind, steps, j.Status, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create job progress", zap.Error(err), zap.String("kind", j.Kind))
		return fmt.Errorf("failed to create job progress: %w", err)
	}
	return nil
}

func (r *pgJobProgressRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.JobProgress, error) {
	j, err := scanJobProgress(r.db.QueryRow(ctx, getJobProgressByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get job progress", zap.Error(err), zap.String("jobID", id.String()))
		return nil, fmt.Errorf("failed to get job progress %s: %w", id, err)
	}
	return j, nil
}

func (r *pgJobProgressRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.JobProgress, error) {
	rows, err := r.db.Query(ctx, listJobProgressByCampaignQuery, campaignID)
	if err != nil {
		r.logger.Error("Failed to list job progress", zap.Error(err), zap.String("campaignID", campaignID.String()))
		return nil, fmt.Errorf("failed to list job progress: %w", err)
	}
	defer rows.Close()

	var jobs []*models.JobProgress
	for rows.Next() {
		j, err := scanJobProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job progress row: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *pgJobProgressRepository) Update(ctx context.Context, j *models.JobProgress) error {
	j.UpdatedAt = time.Now().UTC()
	steps, err := json.Marshal(j.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	tag, err := r.db.Exec(ctx, updateJobProgressQuery, j.ID, steps, j.Status, j.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to update job progress", zap.Error(err), zap.String("jobID", j.ID.String()))
		return fmt.Errorf("failed to update job progress %s: %w", j.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
