package composer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gamemaster-server/internal/gateway"
	"gamemaster-server/internal/models"
	repomocks "gamemaster-server/internal/repository/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmbedder struct {
	mock.Mock
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := f.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

type composerMocks struct {
	characters *repomocks.CharacterRepository
	messages   *repomocks.MessageRepository
	summaries  *repomocks.SummaryRepository
	memories   *repomocks.MemoryRepository
	systems    *repomocks.GameSystemRepository
	embedder   *fakeEmbedder
}

func newTestComposer() (*Composer, *composerMocks) {
	m := &composerMocks{
		characters: new(repomocks.CharacterRepository),
		messages:   new(repomocks.MessageRepository),
		summaries:  new(repomocks.SummaryRepository),
		memories:   new(repomocks.MemoryRepository),
		systems:    new(repomocks.GameSystemRepository),
		embedder:   new(fakeEmbedder),
	}
	c := New(m.characters, m.messages, m.summaries, m.memories, m.systems, m.embedder, zap.NewNop())
	return c, m
}

func roles(messages []gateway.ChatMessage) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Role)
	}
	return out
}

func TestCompose_BootstrapPhase(t *testing.T) {
	c, m := newTestComposer()
	campaign := &models.Campaign{ID: uuid.New()} // no name: bootstrap

	otherSummary := &models.Summary{CampaignID: uuid.New(), Text: "A pirate saga."}
	ownSummary := &models.Summary{CampaignID: campaign.ID, Text: "Should be skipped."}
	m.summaries.On("ListRecent", mock.Anything, bootstrapSummaryLimit).
		Return([]*models.Summary{otherSummary, ownSummary}, nil)
	m.messages.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Message{
			{ID: uuid.New(), Role: models.RoleUser, Status: models.MessageComplete,
				Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "Let's play a heist game"}}},
		}, nil)

	out, err := c.Compose(context.Background(), campaign, nil)
	require.NoError(t, err)

	// base prompt, one other-campaign summary, user message, bootstrap instruction
	require.Len(t, out, 4)
	assert.Contains(t, out[1].Content, "pirate saga")
	assert.Equal(t, gateway.RoleUser, out[2].Role)
	assert.Contains(t, out[3].Content, "set_campaign_info")
	for _, msg := range out {
		assert.NotContains(t, msg.Content, "Should be skipped")
	}
}

func TestCompose_EstablishedPhase(t *testing.T) {
	c, m := newTestComposer()
	campaign := &models.Campaign{
		ID:          uuid.New(),
		Name:        "Neon Shadows",
		Description: "A cyberpunk heist campaign.",
		Plan:        "The fixer betrays them in act two.",
		Quests: []models.Quest{
			{Title: "Find the Relay", Status: models.QuestActive, Objective: "Locate the relay"},
		},
		ActiveCharacters: []string{"Vex", "Mute"},
	}

	m.summaries.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Summary{{CampaignID: campaign.ID, Text: "They met the fixer."}}, nil)
	m.messages.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Message{}, nil)
	m.characters.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Character{
			{Name: "Vex", Description: "A jittery fixer", Active: true, Notes: "owes money"},
		}, nil)

	out, err := c.Compose(context.Background(), campaign, nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(out), 3)
	assert.Contains(t, out[0].Content, "Neon Shadows")
	assert.Contains(t, out[1].Content, "They met the fixer")

	state := out[len(out)-1].Content
	assert.Contains(t, state, "The fixer betrays them")
	assert.Contains(t, state, "Find the Relay")
	assert.Contains(t, state, "owes money")
	// Mute is active but has no sheet yet.
	assert.Contains(t, state, "introduce_character")
	assert.Contains(t, state, "Mute")
}

func TestCompose_EmptySubFetchesNeverError(t *testing.T) {
	c, m := newTestComposer()
	campaign := &models.Campaign{ID: uuid.New(), Name: "Neon Shadows"}

	m.summaries.On("ListByCampaign", mock.Anything, campaign.ID).Return([]*models.Summary{}, nil)
	m.messages.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)
	m.characters.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)

	out, err := c.Compose(context.Background(), campaign, nil)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Contains(t, out[len(out)-1].Content, "no plan yet")
}

func TestCompose_RetrievesRelevantMemories(t *testing.T) {
	c, m := newTestComposer()
	campaign := &models.Campaign{ID: uuid.New(), Name: "Neon Shadows"}

	m.summaries.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)
	m.messages.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Message{
			{ID: uuid.New(), Role: models.RoleUser,
				Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "I confront the fixer about the debt"}}},
		}, nil)
	m.memories.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Memory{
			{Summary: "the weather was cold", Embedding: []float32{0, 1, 0}},
			{Summary: "Vex owes the cartel money", Context: "revealed in session two", Embedding: []float32{1, 0, 0}},
			{Summary: "no vector yet"},
		}, nil)
	m.embedder.On("Embed", mock.Anything, "I confront the fixer about the debt").
		Return([]float32{0.9, 0.1, 0}, nil)
	m.characters.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)

	out, err := c.Compose(context.Background(), campaign, nil)
	require.NoError(t, err)

	// system, memories, user message, state
	require.Len(t, out, 4)
	memoryBlock := out[1].Content
	assert.Contains(t, memoryBlock, "Relevant memories")
	assert.Contains(t, memoryBlock, "Vex owes the cartel money")
	assert.Contains(t, memoryBlock, "revealed in session two")
	// Best match ranks above the weaker one.
	assert.Less(t,
		strings.Index(memoryBlock, "Vex owes the cartel money"),
		strings.Index(memoryBlock, "the weather was cold"))
	assert.NotContains(t, memoryBlock, "no vector yet")
}

func TestCompose_MemoryRetrievalSurvivesEmbedFailure(t *testing.T) {
	c, m := newTestComposer()
	campaign := &models.Campaign{ID: uuid.New(), Name: "Neon Shadows"}

	m.summaries.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)
	m.messages.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Message{
			{ID: uuid.New(), Role: models.RoleUser,
				Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "I open the door"}}},
		}, nil)
	m.memories.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Memory{{Summary: "something", Embedding: []float32{1}}}, nil)
	m.embedder.On("Embed", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider down"))
	m.characters.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)

	out, err := c.Compose(context.Background(), campaign, nil)
	require.NoError(t, err)
	for _, msg := range out {
		assert.NotContains(t, msg.Content, "Relevant memories")
	}
}

func TestConvertMessage_FiltersOrphanedToolCalls(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"name": "Doom"})
	result, _ := json.Marshal(map[string]any{"result": "4/6 segments filled"})
	msg := &models.Message{
		Role: models.RoleAssistant,
		Blocks: []models.ContentBlock{
			{Type: models.BlockText, Text: "The clock ticks."},
			{Type: models.BlockToolCall, CallID: "c1", Name: "update_clock", Args: args},
			{Type: models.BlockToolResult, CallID: "c1", Name: "update_clock", Result: result},
			// Unresolved HITL call: must not reach the provider.
			{Type: models.BlockToolCall, CallID: "c2", Name: "request_dice_roll", Args: args},
		},
	}

	out := convertMessage(msg)

	require.Len(t, out, 2)
	require.Len(t, out[0].ToolCalls, 1)
	assert.Equal(t, "c1", out[0].ToolCalls[0].ID)
	assert.Equal(t, gateway.RoleTool, out[1].Role)
	assert.Equal(t, "c1", out[1].ToolCallID)
}

func TestCompose_ExcludesInFlightMessage(t *testing.T) {
	c, m := newTestComposer()
	campaign := &models.Campaign{ID: uuid.New(), Name: "Neon Shadows"}
	inFlight := &models.Message{ID: uuid.New(), Role: models.RoleAssistant, Status: models.MessageGenerating}

	m.summaries.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)
	m.messages.On("ListByCampaign", mock.Anything, campaign.ID).
		Return([]*models.Message{
			{ID: uuid.New(), Role: models.RoleUser,
				Blocks: []models.ContentBlock{{Type: models.BlockText, Text: "I open the door"}}},
			inFlight,
		}, nil)
	m.memories.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)
	m.characters.On("ListByCampaign", mock.Anything, campaign.ID).Return(nil, nil)

	out, err := c.Compose(context.Background(), campaign, inFlight)
	require.NoError(t, err)

	assert.Equal(t, []string{gateway.RoleSystem, gateway.RoleUser, gateway.RoleSystem}, roles(out))
}
