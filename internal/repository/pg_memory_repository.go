package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamemaster-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ MemoryRepository = (*pgMemoryRepository)(nil)

type pgMemoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgMemoryRepository creates a PostgreSQL-backed MemoryRepository.
func NewPgMemoryRepository(db DBTX, logger *zap.Logger) MemoryRepository {
	return &pgMemoryRepository{
		db:     db,
		logger: logger.Named("PgMemoryRepo"),
	}
}

const createMemoryQuery = `
INSERT INTO memories (id, campaign_id, category, summary, context, tags, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const listMemoriesByCampaignQuery = `
SELECT id, campaign_id, category, summary, context, tags, embedding, created_at
FROM memories WHERE campaign_id = $1 ORDER BY created_at`

// memoryRow is the scan target; jsonb columns arrive as raw bytes.
type memoryRow struct {
	ID         uuid.UUID `db:"id"`
	CampaignID uuid.UUID `db:"campaign_id"`
	Category   string    `db:"category"`
	Summary    string    `db:"summary"`
	Context    string    `db:"context"`
	Tags       []byte    `db:"tags"`
	Embedding  []byte    `db:"embedding"`
	CreatedAt  time.Time `db:"created_at"`
}

func (row *memoryRow) toModel() (*models.Memory, error) {
	m := &models.Memory{
		ID:         row.ID,
		CampaignID: row.CampaignID,
		Category:   row.Category,
		Summary:    row.Summary,
		Context:    row.Context,
		CreatedAt:  row.CreatedAt,
	}
	if err := json.Unmarshal(row.Tags, &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal(row.Embedding, &m.Embedding); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return m, nil
}

func (r *pgMemoryRepository) Create(ctx context.Context, m *models.Memory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	embedding, err := json.Marshal(m.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	_, err = r.db.Exec(ctx, createMemoryQuery,
		m.ID, m.CampaignID, m.Category, m.Summary, m.Context, tags, embedding, m.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create memory", zap.Error(err), zap.String("campaignID", m.CampaignID.String()))
		return fmt.Errorf("failed to create memory: %w", err)
	}
	r.logger.Debug("Memory created", zap.String("memoryID", m.ID.String()), zap.String("category", m.Category))
	return nil
}

func (r *pgMemoryRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Memory, error) {
	var rows []*memoryRow
	if err := pgxscan.Select(ctx, r.db, &rows, listMemoriesByCampaignQuery, campaignID); err != nil {
		r.logger.Error("Failed to list memories", zap.Error(err), zap.String("campaignID", campaignID.String()))
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}

	memories := make([]*models.Memory, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, nil
}
