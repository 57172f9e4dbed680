package service

import (
	"context"
	"fmt"
	"strings"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateCharacterInput describes a character created from the UI rather than
// through the introduce_character tool.
type CreateCharacterInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePrompt string `json:"imagePrompt"`
	Active      bool   `json:"active"`
	Notes       string `json:"notes"`
}

// UpdateCharacterInput is a partial update; nil fields are left untouched.
type UpdateCharacterInput struct {
	Description *string `json:"description"`
	ImagePrompt *string `json:"imagePrompt"`
	Active      *bool   `json:"active"`
	Notes       *string `json:"notes"`
}

// CharacterService exposes character lifecycle plus outfit management. Image
// work is always asynchronous: operations schedule generation and return, the
// portrait reference lands on the record when the worker finishes.
type CharacterService interface {
	Create(ctx context.Context, campaignID uuid.UUID, input CreateCharacterInput) (*models.Character, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Character, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateCharacterInput) (*models.Character, error)

	AddOutfit(ctx context.Context, id uuid.UUID, name, description string) (*models.Character, error)
	SwitchOutfit(ctx context.Context, id uuid.UUID, name string) (*models.Character, error)
	RegeneratePortrait(ctx context.Context, id uuid.UUID) error
}

type characterService struct {
	characters repository.CharacterRepository
	campaigns  repository.CampaignRepository
	scheduler  scheduler.Scheduler
	logger     *zap.Logger
}

// NewCharacterService creates a CharacterService.
func NewCharacterService(
	characters repository.CharacterRepository,
	campaigns repository.CampaignRepository,
	sched scheduler.Scheduler,
	logger *zap.Logger,
) CharacterService {
	return &characterService{
		characters: characters,
		campaigns:  campaigns,
		scheduler:  sched,
		logger:     logger.Named("CharacterService"),
	}
}

func (s *characterService) Create(ctx context.Context, campaignID uuid.UUID, input CreateCharacterInput) (*models.Character, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: character name is required", models.ErrBadRequest)
	}
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Archived {
		return nil, models.ErrCampaignArchived
	}

	character := &models.Character{
		CampaignID:  campaignID,
		Name:        name,
		Description: input.Description,
		ImagePrompt: input.ImagePrompt,
		Active:      input.Active,
		Notes:       input.Notes,
	}
	if err := s.characters.Create(ctx, character); err != nil {
		return nil, fmt.Errorf("failed to create character: %w", err)
	}

	if character.Active {
		campaign.AddActiveCharacter(character.Name)
		if err := s.campaigns.Update(ctx, campaign); err != nil {
			return nil, err
		}
	}
	if character.ImagePrompt != "" {
		s.schedulePortrait(ctx, campaignID, character.ID, "")
	}
	return character, nil
}

func (s *characterService) GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	return s.characters.GetByID(ctx, id)
}

func (s *characterService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Character, error) {
	return s.characters.ListByCampaign(ctx, campaignID)
}

func (s *characterService) Update(ctx context.Context, id uuid.UUID, input UpdateCharacterInput) (*models.Character, error) {
	character, err := s.characters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Description != nil {
		character.Description = *input.Description
	}
	if input.ImagePrompt != nil {
		character.ImagePrompt = *input.ImagePrompt
	}
	if input.Active != nil {
		character.Active = *input.Active
	}
	if input.Notes != nil {
		character.Notes = *input.Notes
	}
	if err := s.characters.Update(ctx, character); err != nil {
		return nil, fmt.Errorf("failed to update character: %w", err)
	}
	return character, nil
}

// AddOutfit registers a new outfit and schedules its variant portrait. Adding
// an outfit that already exists is a no-op switch; the image is never
// regenerated for an existing name.
func (s *characterService) AddOutfit(ctx context.Context, id uuid.UUID, name, description string) (*models.Character, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: outfit name is required", models.ErrBadRequest)
	}
	character, err := s.characters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if character.HasOutfit(name) {
		character.CurrentOutfit = name
		if err := s.characters.Update(ctx, character); err != nil {
			return nil, err
		}
		return character, nil
	}
	if description == "" {
		return nil, fmt.Errorf("%w: %q", models.ErrOutfitNotFound, name)
	}

	if character.Outfits == nil {
		character.Outfits = make(map[string]models.Outfit)
	}
	character.Outfits[name] = models.Outfit{Description: description}
	character.CurrentOutfit = name
	if err := s.characters.Update(ctx, character); err != nil {
		return nil, err
	}
	s.schedulePortrait(ctx, character.CampaignID, character.ID, name)
	return character, nil
}

func (s *characterService) SwitchOutfit(ctx context.Context, id uuid.UUID, name string) (*models.Character, error) {
	character, err := s.characters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !character.HasOutfit(name) {
		return nil, fmt.Errorf("%w: %q", models.ErrOutfitNotFound, name)
	}
	character.CurrentOutfit = name
	if err := s.characters.Update(ctx, character); err != nil {
		return nil, err
	}
	return character, nil
}

func (s *characterService) RegeneratePortrait(ctx context.Context, id uuid.UUID) error {
	character, err := s.characters.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if character.ImagePrompt == "" {
		return fmt.Errorf("%w: character has no image prompt", models.ErrBadRequest)
	}
	return s.scheduler.Enqueue(ctx, scheduler.TaskPayload{
		Task:        scheduler.TaskGeneratePortrait,
		CampaignID:  character.CampaignID,
		CharacterID: character.ID,
		Outfit:      character.CurrentOutfit,
	}, 0)
}

func (s *characterService) schedulePortrait(ctx context.Context, campaignID, characterID uuid.UUID, outfit string) {
	err := s.scheduler.Enqueue(ctx, scheduler.TaskPayload{
		Task:        scheduler.TaskGeneratePortrait,
		CampaignID:  campaignID,
		CharacterID: characterID,
		Outfit:      outfit,
	}, 0)
	if err != nil {
		// The character exists without a portrait; regeneration can recover.
		s.logger.Error("Failed to schedule portrait generation",
			zap.String("characterID", characterID.String()), zap.Error(err))
	}
}
