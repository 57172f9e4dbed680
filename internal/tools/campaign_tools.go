package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/scheduler"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

func campaignTools() []Tool {
	return []Tool{
		{
			Name:        "set_campaign_info",
			Description: "Set the campaign's name, description and visual style once the premise is agreed. Call this exactly once, at the start of a new campaign.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name":        {Type: jsonschema.String, Description: "Short campaign title."},
					"description": {Type: jsonschema.String, Description: "One-paragraph campaign premise."},
					"image_style": {Type: jsonschema.String, Description: "Art style prompt prefix for all generated images."},
				},
				Required: []string{"name", "description"},
			},
			Execute: executeSetCampaignInfo,
		},
		{
			Name:        "update_plan",
			Description: "Replace your private GM plan. The player never sees it.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"plan": {Type: jsonschema.String, Description: "Full replacement plan text."},
				},
				Required: []string{"plan"},
			},
			Execute: executeUpdatePlan,
		},
		{
			Name:        "update_quest_log",
			Description: "Add a quest or update the quest with the same title. Titles are unique per campaign.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"title":     {Type: jsonschema.String},
					"status":    {Type: jsonschema.String, Enum: []string{"active", "completed", "failed"}},
					"objective": {Type: jsonschema.String},
				},
				Required: []string{"title", "status"},
			},
			Execute: executeUpdateQuestLog,
		},
		{
			Name:        "update_clock",
			Description: "Create or advance a progress clock. Names are unique per campaign.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name":          {Type: jsonschema.String},
					"current_ticks": {Type: jsonschema.Integer},
					"max_ticks":     {Type: jsonschema.Integer},
					"hint":          {Type: jsonschema.String, Description: "What happens when the clock fills."},
				},
				Required: []string{"name", "current_ticks", "max_ticks"},
			},
			Execute: executeUpdateClock,
		},
		{
			Name:        "update_temporal",
			Description: "Set the in-world date and time of day.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"world_date":  {Type: jsonschema.String},
					"time_of_day": {Type: jsonschema.String},
				},
			},
			Execute: executeUpdateTemporal,
		},
		{
			Name:        "change_scene",
			Description: "Change the current scene. Describe it for the player and give an image prompt; the scene image is generated asynchronously.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"description":  {Type: jsonschema.String, Description: "Player-facing scene description."},
					"image_prompt": {Type: jsonschema.String, Description: "Prompt for the scene illustration."},
				},
				Required: []string{"description"},
			},
			Execute: executeChangeScene,
		},
	}
}

func executeSetCampaignInfo(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ImageStyle  string `json:"image_style"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid set_campaign_info args: %w", err)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("campaign name must not be empty")
	}

	env.Campaign.Name = in.Name
	env.Campaign.Description = in.Description
	if in.ImageStyle != "" {
		env.Campaign.ImageStyle = in.ImageStyle
	}
	if err := env.Campaigns.Update(ctx, env.Campaign); err != nil {
		return nil, err
	}

	env.Logger.Info("Campaign info set by model",
		zap.String("campaignID", env.Campaign.ID.String()), zap.String("name", in.Name))
	return map[string]any{"result": fmt.Sprintf("campaign %q saved", in.Name)}, nil
}

func executeUpdatePlan(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid update_plan args: %w", err)
	}

	env.Campaign.Plan = in.Plan
	if err := env.Campaigns.Update(ctx, env.Campaign); err != nil {
		return nil, err
	}
	return map[string]any{"result": "plan updated"}, nil
}

func executeUpdateQuestLog(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Title     string `json:"title"`
		Status    string `json:"status"`
		Objective string `json:"objective"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid update_quest_log args: %w", err)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("quest title must not be empty")
	}
	status := models.QuestStatus(in.Status)
	switch status {
	case models.QuestActive, models.QuestCompleted, models.QuestFailed:
	case "":
		status = models.QuestActive
	default:
		return nil, fmt.Errorf("unknown quest status %q", in.Status)
	}

	created := env.Campaign.UpsertQuest(models.Quest{
		Title:     in.Title,
		Status:    status,
		Objective: in.Objective,
	})
	if err := env.Campaigns.Update(ctx, env.Campaign); err != nil {
		return nil, err
	}

	if created {
		return map[string]any{"result": fmt.Sprintf("quest %q added", in.Title)}, nil
	}
	return map[string]any{"result": fmt.Sprintf("quest %q updated", in.Title)}, nil
}

func executeUpdateClock(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Name         string `json:"name"`
		CurrentTicks int    `json:"current_ticks"`
		MaxTicks     int    `json:"max_ticks"`
		Hint         string `json:"hint"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid update_clock args: %w", err)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("clock name must not be empty")
	}
	if in.MaxTicks <= 0 {
		return nil, fmt.Errorf("clock max_ticks must be positive")
	}
	if in.CurrentTicks < 0 || in.CurrentTicks > in.MaxTicks {
		return nil, fmt.Errorf("clock current_ticks %d out of range 0..%d", in.CurrentTicks, in.MaxTicks)
	}

	env.Campaign.UpsertClock(models.Clock{
		Name:         in.Name,
		CurrentTicks: in.CurrentTicks,
		MaxTicks:     in.MaxTicks,
		Hint:         in.Hint,
	})
	if err := env.Campaigns.Update(ctx, env.Campaign); err != nil {
		return nil, err
	}
	return map[string]any{"result": fmt.Sprintf("%d/%d segments filled", in.CurrentTicks, in.MaxTicks)}, nil
}

func executeUpdateTemporal(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		WorldDate string `json:"world_date"`
		TimeOfDay string `json:"time_of_day"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid update_temporal args: %w", err)
	}

	if in.WorldDate != "" {
		env.Campaign.WorldDate = in.WorldDate
	}
	if in.TimeOfDay != "" {
		env.Campaign.TimeOfDay = in.TimeOfDay
	}
	if err := env.Campaigns.Update(ctx, env.Campaign); err != nil {
		return nil, err
	}
	return map[string]any{"result": fmt.Sprintf("it is now %s, %s", env.Campaign.WorldDate, env.Campaign.TimeOfDay)}, nil
}

func executeChangeScene(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error) {
	var in struct {
		Description string `json:"description"`
		ImagePrompt string `json:"image_prompt"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid change_scene args: %w", err)
	}
	if in.Description == "" {
		return nil, fmt.Errorf("scene description must not be empty")
	}

	// The orchestrator persists the in-flight message; mutating it here is
	// safe because the turn is single-writer.
	env.Message.Scene = &models.Scene{
		Description: in.Description,
		ImagePrompt: in.ImagePrompt,
	}

	if in.ImagePrompt != "" {
		err := env.Scheduler.Enqueue(ctx, scheduler.TaskPayload{
			Task:       scheduler.TaskGenerateSceneImage,
			CampaignID: env.Campaign.ID,
			MessageID:  env.Message.ID,
		}, 0)
		if err != nil {
			env.Logger.Error("Failed to schedule scene image generation", zap.Error(err))
		}
	}
	return map[string]any{"result": "scene changed"}, nil
}
