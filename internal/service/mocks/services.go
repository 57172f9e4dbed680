package mocks

import (
	"context"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock CampaignService
type CampaignService struct {
	mock.Mock
}

func (m *CampaignService) Create(ctx context.Context, input service.CreateCampaignInput) (*models.Campaign, error) {
	args := m.Called(ctx, input)
	campaign, _ := args.Get(0).(*models.Campaign)
	return campaign, args.Error(1)
}

func (m *CampaignService) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	args := m.Called(ctx, id)
	campaign, _ := args.Get(0).(*models.Campaign)
	return campaign, args.Error(1)
}

func (m *CampaignService) List(ctx context.Context, includeArchived bool) ([]*models.Campaign, error) {
	args := m.Called(ctx, includeArchived)
	campaigns, _ := args.Get(0).([]*models.Campaign)
	return campaigns, args.Error(1)
}

func (m *CampaignService) Update(ctx context.Context, id uuid.UUID, input service.UpdateCampaignInput) (*models.Campaign, error) {
	args := m.Called(ctx, id, input)
	campaign, _ := args.Get(0).(*models.Campaign)
	return campaign, args.Error(1)
}

func (m *CampaignService) Archive(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *CampaignService) Unarchive(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *CampaignService) UpdatePlan(ctx context.Context, id uuid.UUID, plan string) error {
	args := m.Called(ctx, id, plan)
	return args.Error(0)
}

func (m *CampaignService) UpsertQuest(ctx context.Context, id uuid.UUID, quest models.Quest) error {
	args := m.Called(ctx, id, quest)
	return args.Error(0)
}

func (m *CampaignService) UpsertClock(ctx context.Context, id uuid.UUID, clock models.Clock) error {
	args := m.Called(ctx, id, clock)
	return args.Error(0)
}

func (m *CampaignService) SetTemporal(ctx context.Context, id uuid.UUID, worldDate, timeOfDay string) error {
	args := m.Called(ctx, id, worldDate, timeOfDay)
	return args.Error(0)
}

// Mock CharacterService
type CharacterService struct {
	mock.Mock
}

func (m *CharacterService) Create(ctx context.Context, campaignID uuid.UUID, input service.CreateCharacterInput) (*models.Character, error) {
	args := m.Called(ctx, campaignID, input)
	character, _ := args.Get(0).(*models.Character)
	return character, args.Error(1)
}

func (m *CharacterService) GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	args := m.Called(ctx, id)
	character, _ := args.Get(0).(*models.Character)
	return character, args.Error(1)
}

func (m *CharacterService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Character, error) {
	args := m.Called(ctx, campaignID)
	characters, _ := args.Get(0).([]*models.Character)
	return characters, args.Error(1)
}

func (m *CharacterService) Update(ctx context.Context, id uuid.UUID, input service.UpdateCharacterInput) (*models.Character, error) {
	args := m.Called(ctx, id, input)
	character, _ := args.Get(0).(*models.Character)
	return character, args.Error(1)
}

func (m *CharacterService) AddOutfit(ctx context.Context, id uuid.UUID, name, description string) (*models.Character, error) {
	args := m.Called(ctx, id, name, description)
	character, _ := args.Get(0).(*models.Character)
	return character, args.Error(1)
}

func (m *CharacterService) SwitchOutfit(ctx context.Context, id uuid.UUID, name string) (*models.Character, error) {
	args := m.Called(ctx, id, name)
	character, _ := args.Get(0).(*models.Character)
	return character, args.Error(1)
}

func (m *CharacterService) RegeneratePortrait(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Mock ChatService
type ChatService struct {
	mock.Mock
}

func (m *ChatService) PostMessage(ctx context.Context, campaignID uuid.UUID, text string) (*models.Message, error) {
	args := m.Called(ctx, campaignID, text)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *ChatService) ListMessages(ctx context.Context, campaignID uuid.UUID) ([]*models.Message, error) {
	args := m.Called(ctx, campaignID)
	msgs, _ := args.Get(0).([]*models.Message)
	return msgs, args.Error(1)
}

func (m *ChatService) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, id)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *ChatService) Regenerate(ctx context.Context, campaignID uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, campaignID)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *ChatService) PerformDiceRoll(ctx context.Context, messageID uuid.UUID, callIndex int, result service.DiceRollResult) (*models.Message, error) {
	args := m.Called(ctx, messageID, callIndex, result)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *ChatService) PerformChooseName(ctx context.Context, messageID uuid.UUID, callIndex int, name string) (*models.Message, error) {
	args := m.Called(ctx, messageID, callIndex, name)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *ChatService) FindAndReplace(ctx context.Context, campaignID uuid.UUID, find, replace string) (*service.ReplaceReport, error) {
	args := m.Called(ctx, campaignID, find, replace)
	report, _ := args.Get(0).(*service.ReplaceReport)
	return report, args.Error(1)
}

func (m *ChatService) Narrate(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, messageID)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

// Mock MemoryService
type MemoryService struct {
	mock.Mock
}

func (m *MemoryService) Add(ctx context.Context, memory *models.Memory) error {
	args := m.Called(ctx, memory)
	return args.Error(0)
}

func (m *MemoryService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Memory, error) {
	args := m.Called(ctx, campaignID)
	memories, _ := args.Get(0).([]*models.Memory)
	return memories, args.Error(1)
}

func (m *MemoryService) Search(ctx context.Context, campaignID uuid.UUID, query string, limit int) ([]service.ScoredMemory, error) {
	args := m.Called(ctx, campaignID, query, limit)
	results, _ := args.Get(0).([]service.ScoredMemory)
	return results, args.Error(1)
}

// Mock SummaryService
type SummaryService struct {
	mock.Mock
}

func (m *SummaryService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Summary, error) {
	args := m.Called(ctx, campaignID)
	summaries, _ := args.Get(0).([]*models.Summary)
	return summaries, args.Error(1)
}

func (m *SummaryService) ScheduleSummarize(ctx context.Context, campaignID uuid.UUID) (*models.JobProgress, error) {
	args := m.Called(ctx, campaignID)
	job, _ := args.Get(0).(*models.JobProgress)
	return job, args.Error(1)
}

// Mock JobService
type JobService struct {
	mock.Mock
}

func (m *JobService) GetByID(ctx context.Context, id uuid.UUID) (*models.JobProgress, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*models.JobProgress)
	return job, args.Error(1)
}

func (m *JobService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.JobProgress, error) {
	args := m.Called(ctx, campaignID)
	jobs, _ := args.Get(0).([]*models.JobProgress)
	return jobs, args.Error(1)
}

// Mock GameSystemService
type GameSystemService struct {
	mock.Mock
}

func (m *GameSystemService) Create(ctx context.Context, system *models.GameSystem) error {
	args := m.Called(ctx, system)
	return args.Error(0)
}

func (m *GameSystemService) GetByID(ctx context.Context, id uuid.UUID) (*models.GameSystem, error) {
	args := m.Called(ctx, id)
	system, _ := args.Get(0).(*models.GameSystem)
	return system, args.Error(1)
}

func (m *GameSystemService) List(ctx context.Context) ([]*models.GameSystem, error) {
	args := m.Called(ctx)
	systems, _ := args.Get(0).([]*models.GameSystem)
	return systems, args.Error(1)
}
