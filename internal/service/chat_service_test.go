package service

import (
	"context"
	"testing"

	"gamemaster-server/internal/models"
	repomocks "gamemaster-server/internal/repository/mocks"
	"gamemaster-server/internal/scheduler"
	schedmocks "gamemaster-server/internal/scheduler/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSpeech struct {
	mock.Mock
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	args := f.Called(ctx, text)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

type chatMocks struct {
	campaigns  *repomocks.CampaignRepository
	characters *repomocks.CharacterRepository
	messages   *repomocks.MessageRepository
	media      *repomocks.MediaStore
	speech     *fakeSpeech
	sched      *schedmocks.Scheduler
}

func newChatService() (ChatService, *chatMocks) {
	m := &chatMocks{
		campaigns:  new(repomocks.CampaignRepository),
		characters: new(repomocks.CharacterRepository),
		messages:   new(repomocks.MessageRepository),
		media:      new(repomocks.MediaStore),
		speech:     new(fakeSpeech),
		sched:      new(schedmocks.Scheduler),
	}
	svc := NewChatService(m.campaigns, m.characters, m.messages, m.media, m.speech, m.sched, nil, zap.NewNop())
	return svc, m
}

func TestPostMessage_SchedulesTurn(t *testing.T) {
	svc, m := newChatService()
	campaign := &models.Campaign{ID: uuid.New(), Name: "Neon Shadows"}

	m.campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	m.messages.On("GetLatest", mock.Anything, campaign.ID).Return(nil, models.ErrNotFound)
	m.messages.On("Create", mock.Anything, mock.AnythingOfType("*models.Message")).Return(nil)
	m.sched.On("Enqueue", mock.Anything, mock.MatchedBy(func(p scheduler.TaskPayload) bool {
		return p.Task == scheduler.TaskRunTurn && p.CampaignID == campaign.ID
	}), mock.Anything).Return(nil)

	assistant, err := svc.PostMessage(context.Background(), campaign.ID, "I open the door")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	assert.Equal(t, models.MessageGenerating, assistant.Status)
	m.messages.AssertNumberOfCalls(t, "Create", 2)
}

func TestPostMessage_RejectsWhileTurnInFlight(t *testing.T) {
	svc, m := newChatService()
	campaign := &models.Campaign{ID: uuid.New(), Name: "Neon Shadows"}

	m.campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)
	m.messages.On("GetLatest", mock.Anything, campaign.ID).
		Return(&models.Message{Role: models.RoleAssistant, Status: models.MessageGenerating}, nil)

	_, err := svc.PostMessage(context.Background(), campaign.ID, "hello?")
	assert.ErrorIs(t, err, models.ErrTurnInFlight)
	m.sched.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessage_RejectsArchivedCampaign(t *testing.T) {
	svc, m := newChatService()
	campaign := &models.Campaign{ID: uuid.New(), Name: "Old Tale", Archived: true}
	m.campaigns.On("GetByID", mock.Anything, campaign.ID).Return(campaign, nil)

	_, err := svc.PostMessage(context.Background(), campaign.ID, "anyone there?")
	assert.ErrorIs(t, err, models.ErrCampaignArchived)
}

func pendingDiceMessage() *models.Message {
	return &models.Message{
		ID:     uuid.New(),
		Role:   models.RoleAssistant,
		Status: models.MessageComplete,
		Blocks: []models.ContentBlock{
			{Type: models.BlockText, Text: "Roll for stealth."},
			{Type: models.BlockToolCall, CallID: "c1", Name: "request_dice_roll"},
		},
	}
}

func TestPerformDiceRoll_PatchesResultAfterCall(t *testing.T) {
	svc, m := newChatService()
	msg := pendingDiceMessage()
	m.messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)
	m.messages.On("Update", mock.Anything, msg).Return(nil)

	out, err := svc.PerformDiceRoll(context.Background(), msg.ID, 1, DiceRollResult{Rolls: []int{3, 5}, Total: 8})
	require.NoError(t, err)

	require.Len(t, out.Blocks, 3)
	assert.Equal(t, models.BlockToolResult, out.Blocks[2].Type)
	assert.Equal(t, "c1", out.Blocks[2].CallID)
	assert.Contains(t, string(out.Blocks[2].Result), `"total":8`)
	assert.Empty(t, out.PendingCalls())
}

func TestPerformDiceRoll_AcceptsPendingCallsIndex(t *testing.T) {
	svc, m := newChatService()
	// The pending call sits behind text and an already-resolved call, so its
	// block index differs from its ordinal among the tool calls.
	msg := &models.Message{
		ID:     uuid.New(),
		Role:   models.RoleAssistant,
		Status: models.MessageComplete,
		Blocks: []models.ContentBlock{
			{Type: models.BlockText, Text: "The guard squints."},
			{Type: models.BlockToolCall, CallID: "c1", Name: "update_plan"},
			{Type: models.BlockToolResult, CallID: "c1", Name: "update_plan"},
			{Type: models.BlockToolCall, CallID: "c2", Name: "request_dice_roll"},
		},
	}
	m.messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)
	m.messages.On("Update", mock.Anything, msg).Return(nil)

	pending := msg.PendingCalls()
	require.Equal(t, []int{3}, pending)

	out, err := svc.PerformDiceRoll(context.Background(), msg.ID, pending[0], DiceRollResult{Rolls: []int{6}, Total: 6})
	require.NoError(t, err)
	assert.Equal(t, "c2", out.Blocks[4].CallID)
	assert.Empty(t, out.PendingCalls())
}

func TestPerformDiceRoll_RejectsResolvedCall(t *testing.T) {
	svc, m := newChatService()
	msg := pendingDiceMessage()
	msg.Blocks = append(msg.Blocks, models.ContentBlock{
		Type: models.BlockToolResult, CallID: "c1", Name: "request_dice_roll",
	})
	m.messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)

	_, err := svc.PerformDiceRoll(context.Background(), msg.ID, 1, DiceRollResult{Total: 8})
	assert.ErrorIs(t, err, models.ErrCallNotPending)
}

func TestPerformDiceRoll_RejectsWrongBlock(t *testing.T) {
	svc, m := newChatService()
	msg := pendingDiceMessage()
	m.messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)

	_, err := svc.PerformDiceRoll(context.Background(), msg.ID, 0, DiceRollResult{Total: 8})
	assert.ErrorIs(t, err, models.ErrCallNotPending)
	_, err = svc.PerformDiceRoll(context.Background(), msg.ID, 7, DiceRollResult{Total: 8})
	assert.ErrorIs(t, err, models.ErrCallNotPending)
}

func TestFindAndReplace_CountsPerScope(t *testing.T) {
	svc, m := newChatService()
	campaignID := uuid.New()

	msg := &models.Message{
		ID: uuid.New(), CampaignID: campaignID, Role: models.RoleAssistant,
		Blocks: []models.ContentBlock{
			{Type: models.BlockText, Text: "Vex waves. Vex smiles."},
			{Type: models.BlockToolCall, CallID: "c1", Name: "update_plan"},
		},
	}
	untouched := &models.Message{
		ID: uuid.New(), CampaignID: campaignID, Role: models.RoleUser,
		Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "hello"}},
	}
	campaign := &models.Campaign{
		ID: campaignID, Name: "Neon Shadows",
		Plan:   "Vex betrays them.",
		Quests: []models.Quest{{Title: "Relay", Objective: "Ask Vex about the relay"}},
	}
	character := &models.Character{ID: uuid.New(), Name: "Vex", Description: "Vex is jittery"}

	m.messages.On("ListByCampaign", mock.Anything, campaignID).Return([]*models.Message{msg, untouched}, nil)
	m.messages.On("Update", mock.Anything, msg).Return(nil)
	m.campaigns.On("GetByID", mock.Anything, campaignID).Return(campaign, nil)
	m.campaigns.On("Update", mock.Anything, campaign).Return(nil)
	m.characters.On("ListByCampaign", mock.Anything, campaignID).Return([]*models.Character{character}, nil)
	m.characters.On("Update", mock.Anything, character).Return(nil)

	report, err := svc.FindAndReplace(context.Background(), campaignID, "Vex", "Nyx")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Messages)
	assert.Equal(t, 2, report.Campaign)
	assert.Equal(t, 1, report.Characters)
	assert.Equal(t, 5, report.Total())
	assert.Equal(t, "Nyx waves. Nyx smiles.", msg.Blocks[0].Text)
	assert.Equal(t, "Ask Nyx about the relay", campaign.Quests[0].Objective)
	// The untouched message is never written back.
	m.messages.AssertNumberOfCalls(t, "Update", 1)
}

func TestNarrate_SynthesizesPerParagraph(t *testing.T) {
	svc, m := newChatService()
	msg := &models.Message{
		ID: uuid.New(), Role: models.RoleAssistant, Status: models.MessageComplete,
		Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "First paragraph.\n\nSecond paragraph."}},
	}
	m.messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)
	m.messages.On("Update", mock.Anything, msg).Return(nil)
	m.speech.On("Synthesize", mock.Anything, "First paragraph.").Return([]byte{1}, nil)
	m.speech.On("Synthesize", mock.Anything, "Second paragraph.").Return([]byte{2}, nil)
	m.media.On("Save", mock.Anything, mock.Anything, "audio/mpeg").Return("ref", nil)

	out, err := svc.Narrate(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Len(t, out.Audio, 2)
	assert.Equal(t, 0, out.Audio[0].Index)
	assert.Equal(t, 1, out.Audio[1].Index)
}

func TestNarrate_IsIdempotent(t *testing.T) {
	svc, m := newChatService()
	msg := &models.Message{
		ID: uuid.New(), Role: models.RoleAssistant, Status: models.MessageComplete,
		Audio:  []models.AudioSegment{{Index: 0, Ref: "existing"}},
		Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "Done already."}},
	}
	m.messages.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)

	out, err := svc.Narrate(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "existing", out.Audio[0].Ref)
	m.speech.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything)
}
