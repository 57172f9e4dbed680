package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gamemaster-server/internal/gateway"
	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"

	"go.uber.org/zap"
)

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

// ImageWorker generates character portraits and scene images and attaches
// the stored media references to their entities.
type ImageWorker struct {
	campaigns  repository.CampaignRepository
	characters repository.CharacterRepository
	messages   repository.MessageRepository
	media      repository.MediaStore
	generator  gateway.ImageGenerator
	model      string
	logger     *zap.Logger
}

// NewImageWorker creates an ImageWorker.
func NewImageWorker(
	campaigns repository.CampaignRepository,
	characters repository.CharacterRepository,
	messages repository.MessageRepository,
	media repository.MediaStore,
	generator gateway.ImageGenerator,
	model string,
	logger *zap.Logger,
) *ImageWorker {
	return &ImageWorker{
		campaigns:  campaigns,
		characters: characters,
		messages:   messages,
		media:      media,
		generator:  generator,
		model:      model,
		logger:     logger.Named("ImageWorker"),
	}
}

// HandlePortrait processes a generate_portrait task. A redelivery for an
// image that already exists is a no-op.
func (w *ImageWorker) HandlePortrait(ctx context.Context, payload scheduler.TaskPayload) error {
	character, err := w.characters.GetByID(ctx, payload.CharacterID)
	if err != nil {
		if isNotFound(err) {
			w.logger.Info("Character gone, skipping portrait",
				zap.String("characterID", payload.CharacterID.String()))
			return nil
		}
		return err
	}

	if payload.Outfit == "" && character.PortraitRef != "" {
		return nil
	}
	if payload.Outfit != "" {
		outfit, ok := character.Outfits[payload.Outfit]
		if !ok {
			w.logger.Warn("Outfit gone, skipping portrait",
				zap.String("characterID", character.ID.String()),
				zap.String("outfit", payload.Outfit))
			return nil
		}
		if outfit.ImageRef != "" {
			return nil
		}
	}
	if character.ImagePrompt == "" {
		return nil
	}

	campaign, err := w.campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return err
	}

	prompt := w.portraitPrompt(campaign, character, payload.Outfit)
	ref, err := w.generateAndStore(ctx, prompt, campaign)
	if err != nil {
		return err
	}

	if payload.Outfit != "" {
		outfit := character.Outfits[payload.Outfit]
		outfit.ImageRef = ref
		character.Outfits[payload.Outfit] = outfit
	} else {
		character.PortraitRef = ref
	}
	if err := w.characters.Update(ctx, character); err != nil {
		return err
	}

	w.logger.Info("Portrait generated",
		zap.String("characterID", character.ID.String()),
		zap.String("outfit", payload.Outfit),
		zap.String("ref", ref))
	return nil
}

// HandleSceneImage processes a generate_scene_image task.
func (w *ImageWorker) HandleSceneImage(ctx context.Context, payload scheduler.TaskPayload) error {
	msg, err := w.messages.GetByID(ctx, payload.MessageID)
	if err != nil {
		if isNotFound(err) {
			w.logger.Info("Message gone, skipping scene image",
				zap.String("messageID", payload.MessageID.String()))
			return nil
		}
		return err
	}
	if msg.Scene == nil || msg.Scene.ImagePrompt == "" || msg.Scene.ImageRef != "" {
		return nil
	}

	campaign, err := w.campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return err
	}

	prompt := msg.Scene.ImagePrompt
	if campaign.ImageStyle != "" {
		prompt += ". Style: " + campaign.ImageStyle
	}
	ref, err := w.generateAndStore(ctx, prompt, campaign)
	if err != nil {
		return err
	}

	msg.Scene.ImageRef = ref
	if err := w.messages.Update(ctx, msg); err != nil {
		return err
	}

	w.logger.Info("Scene image generated",
		zap.String("messageID", msg.ID.String()),
		zap.String("ref", ref))
	return nil
}

func (w *ImageWorker) portraitPrompt(campaign *models.Campaign, character *models.Character, outfitName string) string {
	parts := []string{"Character portrait: " + character.ImagePrompt}
	if outfitName != "" {
		if outfit, ok := character.Outfits[outfitName]; ok && outfit.Description != "" {
			parts = append(parts, "Wearing: "+outfit.Description)
		}
	}
	if campaign.ImageStyle != "" {
		parts = append(parts, "Style: "+campaign.ImageStyle)
	}
	return strings.Join(parts, ". ")
}

func (w *ImageWorker) generateAndStore(ctx context.Context, prompt string, campaign *models.Campaign) (string, error) {
	model := campaign.ImageModel
	if model == "" {
		model = w.model
	}
	data, err := w.generator.GenerateImage(ctx, prompt, model)
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}
	ref, err := w.media.Save(ctx, data, "image/png")
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return ref, nil
}
