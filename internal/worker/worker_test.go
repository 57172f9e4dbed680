package worker

import (
	"context"
	"strings"
	"testing"

	"gamemaster-server/internal/gateway"
	gwmocks "gamemaster-server/internal/gateway/mocks"
	"gamemaster-server/internal/models"
	repomocks "gamemaster-server/internal/repository/mocks"
	"gamemaster-server/internal/scheduler"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryExtractor_StoresEmbeddedMemories(t *testing.T) {
	campaigns := new(repomocks.CampaignRepository)
	messages := new(repomocks.MessageRepository)
	memories := new(repomocks.MemoryRepository)
	chat := new(gwmocks.ChatStreamer)
	embedder := new(gwmocks.Embedder)
	w := NewMemoryExtractor(campaigns, messages, memories, chat, embedder, "gpt-4o", zap.NewNop())

	campaign := &models.Campaign{ID: uuid.New(), Name: "Neon Shadows"}
	msg := &models.Message{
		ID: uuid.New(), CampaignID: campaign.ID,
		Role: models.RoleAssistant, Status: models.MessageComplete,
		Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "Vex promises to repay the debt."}},
	}
	campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)
	messages.On("ListByCampaign", mock.Anything, campaign.ID).Return([]*models.Message{msg}, nil)

	// Model output wrapped in a code fence, as providers often do.
	chat.On("StreamStep", mock.Anything, mock.Anything, mock.Anything).Return(&gateway.StepResult{
		Text: "```json\n[{\"category\":\"promise\",\"summary\":\"Vex owes a debt\",\"context\":\"after the heist\",\"tags\":[\"vex\"]}]\n```",
	}, nil)
	embedder.On("Embed", mock.Anything, "Vex owes a debt").Return([]float32{0.1}, nil)
	memories.On("Create", mock.Anything, mock.MatchedBy(func(m *models.Memory) bool {
		return m.Summary == "Vex owes a debt" && len(m.Embedding) == 1 && m.Category == "promise"
	})).Return(nil)

	err := w.Handle(context.Background(), scheduler.TaskPayload{
		Task: scheduler.TaskExtractMemories, CampaignID: campaign.ID, MessageID: msg.ID,
	})
	require.NoError(t, err)
	memories.AssertNumberOfCalls(t, "Create", 1)
}

func TestMemoryExtractor_DeletedMessageIsNoop(t *testing.T) {
	messages := new(repomocks.MessageRepository)
	chat := new(gwmocks.ChatStreamer)
	w := NewMemoryExtractor(new(repomocks.CampaignRepository), messages,
		new(repomocks.MemoryRepository), chat, new(gwmocks.Embedder), "gpt-4o", zap.NewNop())

	id := uuid.New()
	messages.On("GetByID", mock.Anything, id).Return(nil, models.ErrNotFound)

	err := w.Handle(context.Background(), scheduler.TaskPayload{MessageID: id})
	require.NoError(t, err)
	chat.AssertNotCalled(t, "StreamStep", mock.Anything, mock.Anything, mock.Anything)
}

func TestMemoryExtractor_UnparseableOutputIsDropped(t *testing.T) {
	campaigns := new(repomocks.CampaignRepository)
	messages := new(repomocks.MessageRepository)
	memories := new(repomocks.MemoryRepository)
	chat := new(gwmocks.ChatStreamer)
	w := NewMemoryExtractor(campaigns, messages, memories, chat, new(gwmocks.Embedder), "gpt-4o", zap.NewNop())

	campaign := &models.Campaign{ID: uuid.New()}
	msg := &models.Message{
		ID: uuid.New(), CampaignID: campaign.ID,
		Role: models.RoleAssistant, Status: models.MessageComplete,
		Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "something happened"}},
	}
	campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)
	messages.On("ListByCampaign", mock.Anything, campaign.ID).Return([]*models.Message{msg}, nil)
	chat.On("StreamStep", mock.Anything, mock.Anything, mock.Anything).
		Return(&gateway.StepResult{Text: "I could not find anything."}, nil)

	// Not retryable, must not dead-letter.
	err := w.Handle(context.Background(), scheduler.TaskPayload{CampaignID: campaign.ID, MessageID: msg.ID})
	require.NoError(t, err)
	memories.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestImageWorker_PortraitRedeliveryIsNoop(t *testing.T) {
	characters := new(repomocks.CharacterRepository)
	generator := new(gwmocks.ImageGenerator)
	w := NewImageWorker(new(repomocks.CampaignRepository), characters,
		new(repomocks.MessageRepository), new(repomocks.MediaStore), generator, "dall-e-3", zap.NewNop())

	character := &models.Character{
		ID: uuid.New(), ImagePrompt: "chrome-armed fixer", PortraitRef: "already-there",
	}
	characters.On("GetByID", mock.Anything, character.ID).Return(character, nil)

	err := w.HandlePortrait(context.Background(), scheduler.TaskPayload{CharacterID: character.ID})
	require.NoError(t, err)
	generator.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestImageWorker_OutfitVariantAttachesToOutfit(t *testing.T) {
	campaigns := new(repomocks.CampaignRepository)
	characters := new(repomocks.CharacterRepository)
	media := new(repomocks.MediaStore)
	generator := new(gwmocks.ImageGenerator)
	w := NewImageWorker(campaigns, characters, new(repomocks.MessageRepository),
		media, generator, "dall-e-3", zap.NewNop())

	campaign := &models.Campaign{ID: uuid.New(), ImageStyle: "neon noir"}
	character := &models.Character{
		ID: uuid.New(), CampaignID: campaign.ID,
		ImagePrompt: "chrome-armed fixer", PortraitRef: "base-ref",
		Outfits: map[string]models.Outfit{"gala dress": {Description: "black sequined gown"}},
	}
	campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	characters.On("GetByID", mock.Anything, character.ID).Return(character, nil)
	generator.On("GenerateImage", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "chrome-armed fixer") &&
			strings.Contains(prompt, "black sequined gown") &&
			strings.Contains(prompt, "neon noir")
	}), "dall-e-3").Return([]byte{1, 2, 3}, nil)
	media.On("Save", mock.Anything, []byte{1, 2, 3}, "image/png").Return("outfit-ref", nil)
	characters.On("Update", mock.Anything, character).Return(nil)

	err := w.HandlePortrait(context.Background(), scheduler.TaskPayload{
		CampaignID: campaign.ID, CharacterID: character.ID, Outfit: "gala dress",
	})
	require.NoError(t, err)
	assert.Equal(t, "outfit-ref", character.Outfits["gala dress"].ImageRef)
	assert.Equal(t, "base-ref", character.PortraitRef)
}

func TestImageWorker_SceneImage(t *testing.T) {
	campaigns := new(repomocks.CampaignRepository)
	messages := new(repomocks.MessageRepository)
	media := new(repomocks.MediaStore)
	generator := new(gwmocks.ImageGenerator)
	w := NewImageWorker(campaigns, new(repomocks.CharacterRepository), messages,
		media, generator, "dall-e-3", zap.NewNop())

	campaign := &models.Campaign{ID: uuid.New(), ImageModel: "dall-e-3"}
	msg := &models.Message{
		ID: uuid.New(), CampaignID: campaign.ID,
		Scene: &models.Scene{Description: "a rain-slick alley", ImagePrompt: "rainy neon alley"},
	}
	campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)
	generator.On("GenerateImage", mock.Anything, mock.Anything, "dall-e-3").Return([]byte{9}, nil)
	media.On("Save", mock.Anything, []byte{9}, "image/png").Return("scene-ref", nil)
	messages.On("Update", mock.Anything, msg).Return(nil)

	err := w.HandleSceneImage(context.Background(), scheduler.TaskPayload{
		CampaignID: campaign.ID, MessageID: msg.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "scene-ref", msg.Scene.ImageRef)
}

func TestSummarizer_NotEnoughHistory(t *testing.T) {
	campaigns := new(repomocks.CampaignRepository)
	messages := new(repomocks.MessageRepository)
	jobs := new(repomocks.JobProgressRepository)
	chat := new(gwmocks.ChatStreamer)
	w := NewSummarizer(campaigns, new(repomocks.CharacterRepository), messages,
		new(repomocks.SummaryRepository), jobs, chat, "gpt-4o", zap.NewNop())

	campaign := &models.Campaign{ID: uuid.New()}
	job := &models.JobProgress{ID: uuid.New(), CampaignID: campaign.ID, Status: models.StepPending}
	jobs.On("GetByID", mock.Anything, job.ID).Return(job, nil)
	jobs.On("Update", mock.Anything, job).Return(nil)
	campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	messages.On("ListByCampaign", mock.Anything, campaign.ID).Return([]*models.Message{
		{ID: uuid.New(), Role: models.RoleUser, Status: models.MessageComplete},
	}, nil)

	err := w.Handle(context.Background(), scheduler.TaskPayload{CampaignID: campaign.ID, JobID: job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, job.Status)
	chat.AssertNotCalled(t, "StreamStep", mock.Anything, mock.Anything, mock.Anything)
}

func TestSummarizer_CollapsesHistory(t *testing.T) {
	campaigns := new(repomocks.CampaignRepository)
	characters := new(repomocks.CharacterRepository)
	messages := new(repomocks.MessageRepository)
	summaries := new(repomocks.SummaryRepository)
	jobs := new(repomocks.JobProgressRepository)
	chat := new(gwmocks.ChatStreamer)
	w := NewSummarizer(campaigns, characters, messages, summaries, jobs, chat, "gpt-4o", zap.NewNop())

	campaign := &models.Campaign{ID: uuid.New()}
	job := &models.JobProgress{ID: uuid.New(), CampaignID: campaign.ID, Status: models.StepPending}

	var history []*models.Message
	for i := 0; i < 25; i++ {
		history = append(history, &models.Message{
			ID: uuid.New(), CampaignID: campaign.ID,
			Role: models.RoleUser, Status: models.MessageComplete,
			Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "Vex does a thing."}},
		})
	}

	jobs.On("GetByID", mock.Anything, job.ID).Return(job, nil)
	jobs.On("Update", mock.Anything, job).Return(nil)
	campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	messages.On("ListByCampaign", mock.Anything, campaign.ID).Return(history, nil)
	chat.On("StreamStep", mock.Anything, mock.Anything, mock.Anything).
		Return(&gateway.StepResult{Text: "Vex did many things."}, nil)
	vex := &models.Character{ID: uuid.New(), Name: "Vex"}
	characters.On("ListByCampaign", mock.Anything, campaign.ID).Return([]*models.Character{vex}, nil)
	summaries.On("Create", mock.Anything, mock.MatchedBy(func(s *models.Summary) bool {
		return s.Text == "Vex did many things." && len(s.CharacterIDs) == 1
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Summary).ID = uuid.New()
	}).Return(nil)
	messages.On("Update", mock.Anything, mock.AnythingOfType("*models.Message")).Return(nil)

	err := w.Handle(context.Background(), scheduler.TaskPayload{CampaignID: campaign.ID, JobID: job.ID})
	require.NoError(t, err)

	assert.Equal(t, models.StepCompleted, job.Status)
	// 25 messages, last 10 spared.
	messages.AssertNumberOfCalls(t, "Update", 15)
	for _, m := range history[:15] {
		assert.True(t, m.SummaryID.Valid)
	}
	for _, m := range history[15:] {
		assert.False(t, m.SummaryID.Valid)
	}
}
