package service

import (
	"context"
	"fmt"
	"strings"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateCampaignInput carries the optional seed settings of a new campaign.
// Everything may be empty: an unnamed campaign starts in the bootstrap phase
// and the model names it via set_campaign_info.
type CreateCampaignInput struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	TextModel    string        `json:"textModel"`
	ImageModel   string        `json:"imageModel"`
	GameSystemID uuid.NullUUID `json:"gameSystemId"`
}

// UpdateCampaignInput is a partial update; nil fields are left untouched.
type UpdateCampaignInput struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	ImageStyle   *string          `json:"imageStyle"`
	TextModel    *string          `json:"textModel"`
	ImageModel   *string          `json:"imageModel"`
	GameSystemID *uuid.NullUUID   `json:"gameSystemId"`
	ToolFlags    *map[string]bool `json:"toolFlags"`
}

// CampaignService exposes campaign lifecycle and state mutators. The same
// mutators the model reaches through tools are available here as explicit
// operations for the UI.
type CampaignService interface {
	Create(ctx context.Context, input CreateCampaignInput) (*models.Campaign, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	List(ctx context.Context, includeArchived bool) ([]*models.Campaign, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateCampaignInput) (*models.Campaign, error)
	Archive(ctx context.Context, id uuid.UUID) error
	Unarchive(ctx context.Context, id uuid.UUID) error

	UpdatePlan(ctx context.Context, id uuid.UUID, plan string) error
	UpsertQuest(ctx context.Context, id uuid.UUID, quest models.Quest) error
	UpsertClock(ctx context.Context, id uuid.UUID, clock models.Clock) error
	SetTemporal(ctx context.Context, id uuid.UUID, worldDate, timeOfDay string) error
}

type campaignService struct {
	campaigns        repository.CampaignRepository
	systems          repository.GameSystemRepository
	logger           *zap.Logger
	defaultTextModel string
	defaultImgModel  string
}

// NewCampaignService creates a CampaignService.
func NewCampaignService(
	campaigns repository.CampaignRepository,
	systems repository.GameSystemRepository,
	logger *zap.Logger,
	defaultTextModel, defaultImageModel string,
) CampaignService {
	return &campaignService{
		campaigns:        campaigns,
		systems:          systems,
		logger:           logger.Named("CampaignService"),
		defaultTextModel: defaultTextModel,
		defaultImgModel:  defaultImageModel,
	}
}

func (s *campaignService) Create(ctx context.Context, input CreateCampaignInput) (*models.Campaign, error) {
	if input.GameSystemID.Valid {
		if _, err := s.systems.GetByID(ctx, input.GameSystemID.UUID); err != nil {
			return nil, fmt.Errorf("game system: %w", err)
		}
	}

	campaign := &models.Campaign{
		Name:         strings.TrimSpace(input.Name),
		Description:  input.Description,
		TextModel:    input.TextModel,
		ImageModel:   input.ImageModel,
		GameSystemID: input.GameSystemID,
	}
	if campaign.TextModel == "" {
		campaign.TextModel = s.defaultTextModel
	}
	if campaign.ImageModel == "" {
		campaign.ImageModel = s.defaultImgModel
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	s.logger.Info("Campaign created",
		zap.String("campaignID", campaign.ID.String()),
		zap.Bool("bootstrap", !campaign.Defined()))
	return campaign, nil
}

func (s *campaignService) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

func (s *campaignService) List(ctx context.Context, includeArchived bool) ([]*models.Campaign, error) {
	return s.campaigns.List(ctx, includeArchived)
}

func (s *campaignService) Update(ctx context.Context, id uuid.UUID, input UpdateCampaignInput) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		campaign.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		campaign.Description = *input.Description
	}
	if input.ImageStyle != nil {
		campaign.ImageStyle = *input.ImageStyle
	}
	if input.TextModel != nil {
		campaign.TextModel = *input.TextModel
	}
	if input.ImageModel != nil {
		campaign.ImageModel = *input.ImageModel
	}
	if input.GameSystemID != nil {
		if input.GameSystemID.Valid {
			if _, err := s.systems.GetByID(ctx, input.GameSystemID.UUID); err != nil {
				return nil, fmt.Errorf("game system: %w", err)
			}
		}
		campaign.GameSystemID = *input.GameSystemID
	}
	if input.ToolFlags != nil {
		campaign.ToolFlags = *input.ToolFlags
	}
	if err := s.campaigns.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return campaign, nil
}

func (s *campaignService) Archive(ctx context.Context, id uuid.UUID) error {
	return s.campaigns.SetArchived(ctx, id, true)
}

func (s *campaignService) Unarchive(ctx context.Context, id uuid.UUID) error {
	return s.campaigns.SetArchived(ctx, id, false)
}

func (s *campaignService) UpdatePlan(ctx context.Context, id uuid.UUID, plan string) error {
	return s.mutate(ctx, id, func(c *models.Campaign) error {
		c.Plan = plan
		return nil
	})
}

func (s *campaignService) UpsertQuest(ctx context.Context, id uuid.UUID, quest models.Quest) error {
	if quest.Title == "" {
		return fmt.Errorf("%w: quest title is required", models.ErrBadRequest)
	}
	if quest.Status == "" {
		quest.Status = models.QuestActive
	}
	return s.mutate(ctx, id, func(c *models.Campaign) error {
		c.UpsertQuest(quest)
		return nil
	})
}

func (s *campaignService) UpsertClock(ctx context.Context, id uuid.UUID, clock models.Clock) error {
	if clock.Name == "" || clock.MaxTicks <= 0 {
		return fmt.Errorf("%w: clock needs a name and a positive segment count", models.ErrBadRequest)
	}
	if clock.CurrentTicks < 0 || clock.CurrentTicks > clock.MaxTicks {
		return fmt.Errorf("%w: clock ticks out of range", models.ErrBadRequest)
	}
	return s.mutate(ctx, id, func(c *models.Campaign) error {
		c.UpsertClock(clock)
		return nil
	})
}

func (s *campaignService) SetTemporal(ctx context.Context, id uuid.UUID, worldDate, timeOfDay string) error {
	return s.mutate(ctx, id, func(c *models.Campaign) error {
		if worldDate != "" {
			c.WorldDate = worldDate
		}
		if timeOfDay != "" {
			c.TimeOfDay = timeOfDay
		}
		return nil
	})
}

// mutate applies fn to a freshly loaded campaign and persists the whole row.
// Archived campaigns are read-only.
func (s *campaignService) mutate(ctx context.Context, id uuid.UUID, fn func(*models.Campaign) error) error {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Archived {
		return models.ErrCampaignArchived
	}
	if err := fn(campaign); err != nil {
		return err
	}
	return s.campaigns.Update(ctx, campaign)
}
