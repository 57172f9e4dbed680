package repository

import (
	"context"

	"gamemaster-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts a pgx pool, connection or transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CampaignRepository persists campaigns.
type CampaignRepository interface {
	Create(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	List(ctx context.Context, includeArchived bool) ([]*models.Campaign, error)
	Update(ctx context.Context, c *models.Campaign) error
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
}

// CharacterRepository persists characters.
type CharacterRepository interface {
	Create(ctx context.Context, c *models.Character) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error)
	GetByName(ctx context.Context, campaignID uuid.UUID, name string) (*models.Character, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Character, error)
	Update(ctx context.Context, c *models.Character) error
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// ListByCampaign returns messages in campaign-scoped insertion order.
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Message, error)
	Update(ctx context.Context, m *models.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
	// GetLatest returns the most recent message of the campaign.
	GetLatest(ctx context.Context, campaignID uuid.UUID) (*models.Message, error)
}

// MemoryRepository persists extracted memories. Append-only.
type MemoryRepository interface {
	Create(ctx context.Context, m *models.Memory) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Memory, error)
}

// SummaryRepository persists history summaries.
type SummaryRepository interface {
	Create(ctx context.Context, s *models.Summary) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Summary, error)
	// ListRecent returns the most recent summaries across all campaigns,
	// at most one per campaign, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.Summary, error)
}

// JobProgressRepository persists background job progress records.
type JobProgressRepository interface {
	Create(ctx context.Context, j *models.JobProgress) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.JobProgress, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.JobProgress, error)
	Update(ctx context.Context, j *models.JobProgress) error
}

// GameSystemRepository persists rule-set bundles.
type GameSystemRepository interface {
	Create(ctx context.Context, g *models.GameSystem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GameSystem, error)
	List(ctx context.Context) ([]*models.GameSystem, error)
}

// MediaStore stores generated binary media (portraits, scene images, audio)
// and returns opaque references persisted on entities.
type MediaStore interface {
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, string, error)
}
