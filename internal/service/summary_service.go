package service

import (
	"context"
	"fmt"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Summarizer step names, shared with the worker so progress records line up.
const (
	StepCollectMessages = "collect_messages"
	StepGenerateSummary = "generate_summary"
	StepLinkMessages    = "link_messages"
)

// SummaryService exposes stored history summaries and schedules the
// history-collapsing summarizer. The actual collapse runs in a worker; the
// returned JobProgress record is what clients poll.
type SummaryService interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Summary, error)
	ScheduleSummarize(ctx context.Context, campaignID uuid.UUID) (*models.JobProgress, error)
}

type summaryService struct {
	summaries repository.SummaryRepository
	campaigns repository.CampaignRepository
	jobs      repository.JobProgressRepository
	scheduler scheduler.Scheduler
	logger    *zap.Logger
}

// NewSummaryService creates a SummaryService.
func NewSummaryService(
	summaries repository.SummaryRepository,
	campaigns repository.CampaignRepository,
	jobs repository.JobProgressRepository,
	sched scheduler.Scheduler,
	logger *zap.Logger,
) SummaryService {
	return &summaryService{
		summaries: summaries,
		campaigns: campaigns,
		jobs:      jobs,
		scheduler: sched,
		logger:    logger.Named("SummaryService"),
	}
}

func (s *summaryService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Summary, error) {
	return s.summaries.ListByCampaign(ctx, campaignID)
}

func (s *summaryService) ScheduleSummarize(ctx context.Context, campaignID uuid.UUID) (*models.JobProgress, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Archived {
		return nil, models.ErrCampaignArchived
	}

	job := &models.JobProgress{
		CampaignID: campaignID,
		Kind:       "summarize_history",
		Status:     models.StepPending,
		Steps: []models.JobStep{
			{Name: StepCollectMessages, Status: models.StepPending},
			{Name: StepGenerateSummary, Status: models.StepPending},
			{Name: StepLinkMessages, Status: models.StepPending},
		},
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job progress: %w", err)
	}

	err = s.scheduler.Enqueue(ctx, scheduler.TaskPayload{
		Task:       scheduler.TaskSummarizeHistory,
		CampaignID: campaignID,
		JobID:      job.ID,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule summarization: %w", err)
	}

	s.logger.Info("Summarization scheduled",
		zap.String("campaignID", campaignID.String()),
		zap.String("jobID", job.ID.String()))
	return job, nil
}
