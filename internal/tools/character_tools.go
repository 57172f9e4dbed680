package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/scheduler"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

func characterTools() []Tool {
	return []Tool{
		{
			Name:        "introduce_character",
			Description: "Introduce a new named character into the campaign. Do not reuse an existing character's name.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name":         {Type: jsonschema.String},
					"description":  {Type: jsonschema.String, Description: "Who they are and how they behave."},
					"image_prompt": {Type: jsonschema.String, Description: "Prompt for the character portrait."},
				},
				Required: []string{"name", "description"},
			},
			Execute: executeIntroduceCharacter,
		},
		{
			Name:        "update_character_sheet",
			Description: "Update an existing character's description, notes or active flag. The character must already be introduced.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name":        {Type: jsonschema.String},
					"description": {Type: jsonschema.String},
					"notes":       {Type: jsonschema.String},
					"active":      {Type: jsonschema.Boolean, Description: "Whether the character is present in the scene."},
				},
				Required: []string{"name"},
			},
			Execute: executeUpdateCharacterSheet,
		},
		{
			Name:        "update_character_outfit",
			Description: "Switch a character to a named outfit. Provide a description only when the outfit is new; existing outfits switch without regenerating art.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name":        {Type: jsonschema.String, Description: "Character name."},
					"outfit":      {Type: jsonschema.String, Description: "Outfit name."},
					"description": {Type: jsonschema.String, Description: "Outfit description, required for new outfits."},
				},
				Required: []string{"name", "outfit"},
			},
			Execute: executeUpdateCharacterOutfit,
		},
	}
}

func executeIntroduceCharacter(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ImagePrompt string `json:"image_prompt"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid introduce_character args: %w", err)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("character name must not be empty")
	}

	// Name uniqueness is advisory: a collision overwrites the existing
	// record rather than erroring, so a retried step stays safe.
	existing, err := env.Characters.GetByName(ctx, env.Campaign.ID, in.Name)
	switch {
	case err == nil:
		existing.Description = in.Description
		if in.ImagePrompt != "" {
			existing.ImagePrompt = in.ImagePrompt
		}
		existing.Active = true
		if err := env.Characters.Update(ctx, existing); err != nil {
			return nil, err
		}
		env.Logger.Info("Character reintroduced",
			zap.String("campaignID", env.Campaign.ID.String()), zap.String("name", in.Name))
	case errors.Is(err, models.ErrNotFound):
		character := &models.Character{
			CampaignID:  env.Campaign.ID,
			Name:        in.Name,
			Description: in.Description,
			ImagePrompt: in.ImagePrompt,
			Active:      true,
		}
		if err := env.Characters.Create(ctx, character); err != nil {
			return nil, err
		}
		if in.ImagePrompt != "" {
			err := env.Scheduler.Enqueue(ctx, scheduler.TaskPayload{
				Task:        scheduler.TaskGeneratePortrait,
				CampaignID:  env.Campaign.ID,
				CharacterID: character.ID,
			}, 0)
			if err != nil {
				env.Logger.Error("Failed to schedule portrait generation", zap.Error(err))
			}
		}
	default:
		return nil, err
	}

	env.Campaign.AddActiveCharacter(in.Name)
	if err := env.Campaigns.Update(ctx, env.Campaign); err != nil {
		return nil, err
	}
	return map[string]any{"result": fmt.Sprintf("character %q is now in play", in.Name)}, nil
}

func executeUpdateCharacterSheet(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		Notes       *string `json:"notes"`
		Active      *bool   `json:"active"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid update_character_sheet args: %w", err)
	}

	character, err := env.Characters.GetByName(ctx, env.Campaign.ID, in.Name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("character %q not found, introduce them first", in.Name)
		}
		return nil, err
	}

	if in.Description != nil {
		character.Description = *in.Description
	}
	if in.Notes != nil {
		character.Notes = *in.Notes
	}
	if in.Active != nil {
		character.Active = *in.Active
	}
	if err := env.Characters.Update(ctx, character); err != nil {
		return nil, err
	}
	return map[string]any{"result": fmt.Sprintf("character %q updated", in.Name)}, nil
}

func executeUpdateCharacterOutfit(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Name        string `json:"name"`
		Outfit      string `json:"outfit"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid update_character_outfit args: %w", err)
	}
	if in.Outfit == "" {
		return nil, fmt.Errorf("outfit name must not be empty")
	}

	character, err := env.Characters.GetByName(ctx, env.Campaign.ID, in.Name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("character %q not found, introduce them first", in.Name)
		}
		return nil, err
	}

	// Existing outfit: pure switch, never a second image generation.
	if character.HasOutfit(in.Outfit) {
		character.CurrentOutfit = in.Outfit
		if err := env.Characters.Update(ctx, character); err != nil {
			return nil, err
		}
		return map[string]any{"result": fmt.Sprintf("%s switched to outfit %q", in.Name, in.Outfit)}, nil
	}

	if in.Description == "" {
		return nil, fmt.Errorf("outfit %q not found for %s; provide a description to create it", in.Outfit, in.Name)
	}

	if character.Outfits == nil {
		character.Outfits = map[string]models.Outfit{}
	}
	character.Outfits[in.Outfit] = models.Outfit{Description: in.Description}
	character.CurrentOutfit = in.Outfit
	if err := env.Characters.Update(ctx, character); err != nil {
		return nil, err
	}

	err = env.Scheduler.Enqueue(ctx, scheduler.TaskPayload{
		Task:        scheduler.TaskGeneratePortrait,
		CampaignID:  env.Campaign.ID,
		CharacterID: character.ID,
		Outfit:      in.Outfit,
	}, 0)
	if err != nil {
		env.Logger.Error("Failed to schedule outfit image generation", zap.Error(err))
	}
	return map[string]any{"result": fmt.Sprintf("%s is now wearing new outfit %q", in.Name, in.Outfit)}, nil
}
