package mocks

import (
	"context"

	"gamemaster-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock CampaignRepository
type CampaignRepository struct {
	mock.Mock
}

func (m *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}
func (m *CampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Campaign)
	return c, args.Error(1)
}
func (m *CampaignRepository) List(ctx context.Context, includeArchived bool) ([]*models.Campaign, error) {
	args := m.Called(ctx, includeArchived)
	list, _ := args.Get(0).([]*models.Campaign)
	return list, args.Error(1)
}
func (m *CampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}
func (m *CampaignRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	args := m.Called(ctx, id, archived)
	return args.Error(0)
}

// Mock CharacterRepository
type CharacterRepository struct {
	mock.Mock
}

func (m *CharacterRepository) Create(ctx context.Context, c *models.Character) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}
func (m *CharacterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Character)
	return c, args.Error(1)
}
func (m *CharacterRepository) GetByName(ctx context.Context, campaignID uuid.UUID, name string) (*models.Character, error) {
	args := m.Called(ctx, campaignID, name)
	c, _ := args.Get(0).(*models.Character)
	return c, args.Error(1)
}
func (m *CharacterRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Character, error) {
	args := m.Called(ctx, campaignID)
	list, _ := args.Get(0).([]*models.Character)
	return list, args.Error(1)
}
func (m *CharacterRepository) Update(ctx context.Context, c *models.Character) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// Mock MessageRepository
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, id)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}
func (m *MessageRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Message, error) {
	args := m.Called(ctx, campaignID)
	list, _ := args.Get(0).([]*models.Message)
	return list, args.Error(1)
}
func (m *MessageRepository) Update(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MessageRepository) GetLatest(ctx context.Context, campaignID uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, campaignID)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

// Mock MemoryRepository
type MemoryRepository struct {
	mock.Mock
}

func (m *MemoryRepository) Create(ctx context.Context, mem *models.Memory) error {
	args := m.Called(ctx, mem)
	return args.Error(0)
}
func (m *MemoryRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Memory, error) {
	args := m.Called(ctx, campaignID)
	list, _ := args.Get(0).([]*models.Memory)
	return list, args.Error(1)
}

// Mock SummaryRepository
type SummaryRepository struct {
	mock.Mock
}

func (m *SummaryRepository) Create(ctx context.Context, s *models.Summary) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}
func (m *SummaryRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Summary, error) {
	args := m.Called(ctx, campaignID)
	list, _ := args.Get(0).([]*models.Summary)
	return list, args.Error(1)
}
func (m *SummaryRepository) ListRecent(ctx context.Context, limit int) ([]*models.Summary, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]*models.Summary)
	return list, args.Error(1)
}

// Mock JobProgressRepository
type JobProgressRepository struct {
	mock.Mock
}

func (m *JobProgressRepository) Create(ctx context.Context, j *models.JobProgress) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *JobProgressRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.JobProgress, error) {
	args := m.Called(ctx, id)
	j, _ := args.Get(0).(*models.JobProgress)
	return j, args.Error(1)
}
func (m *JobProgressRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.JobProgress, error) {
	args := m.Called(ctx, campaignID)
	list, _ := args.Get(0).([]*models.JobProgress)
	return list, args.Error(1)
}
func (m *JobProgressRepository) Update(ctx context.Context, j *models.JobProgress) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

// Mock GameSystemRepository
type GameSystemRepository struct {
	mock.Mock
}

func (m *GameSystemRepository) Create(ctx context.Context, g *models.GameSystem) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}
func (m *GameSystemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GameSystem, error) {
	args := m.Called(ctx, id)
	g, _ := args.Get(0).(*models.GameSystem)
	return g, args.Error(1)
}
func (m *GameSystemRepository) List(ctx context.Context) ([]*models.GameSystem, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*models.GameSystem)
	return list, args.Error(1)
}

// Mock MediaStore
type MediaStore struct {
	mock.Mock
}

func (m *MediaStore) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, data, contentType)
	return args.String(0), args.Error(1)
}
func (m *MediaStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	args := m.Called(ctx, ref)
	data, _ := args.Get(0).([]byte)
	return data, args.String(1), args.Error(2)
}
