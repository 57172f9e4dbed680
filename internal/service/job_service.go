package service

import (
	"context"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobService exposes background job progress records for polling clients.
type JobService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.JobProgress, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.JobProgress, error)
}

type jobService struct {
	jobs   repository.JobProgressRepository
	logger *zap.Logger
}

// NewJobService creates a JobService.
func NewJobService(jobs repository.JobProgressRepository, logger *zap.Logger) JobService {
	return &jobService{jobs: jobs, logger: logger.Named("JobService")}
}

func (s *jobService) GetByID(ctx context.Context, id uuid.UUID) (*models.JobProgress, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *jobService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.JobProgress, error) {
	return s.jobs.ListByCampaign(ctx, campaignID)
}
