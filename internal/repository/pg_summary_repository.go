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

var _ SummaryRepository = (*pgSummaryRepository)(nil)

type pgSummaryRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgSummaryRepository creates a PostgreSQL-backed SummaryRepository.
func NewPgSummaryRepository(db DBTX, logger *zap.Logger) SummaryRepository {
	return &pgSummaryRepository{
		db:     db,
		logger: logger.Named("PgSummaryRepo"),
	}
}

const createSummaryQuery = `
INSERT INTO summaries (id, campaign_id, text, character_ids, created_at)
VALUES ($1, $2, $3, $4, $5)`

const listSummariesByCampaignQuery = `
SELECT id, campaign_id, text, character_ids, created_at
FROM summaries WHERE campaign_id = $1 ORDER BY created_at`

const listRecentSummariesQuery = `
SELECT id, campaign_id, text, character_ids, created_at FROM (
    SELECT DISTINCT ON (campaign_id) id, campaign_id, text, character_ids, created_at
    FROM summaries ORDER BY campaign_id, created_at DESC
) latest ORDER BY created_at DESC LIMIT $1`

type summaryRow struct {
	ID           uuid.UUID `db:"id"`
	CampaignID   uuid.UUID `db:"campaign_id"`
	Text         string    `db:"text"`
	CharacterIDs []byte    `db:"character_ids"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row *summaryRow) toModel() (*models.Summary, error) {
	s := &models.Summary{
		ID:         row.ID,
		CampaignID: row.CampaignID,
		Text:       row.Text,
		CreatedAt:  row.CreatedAt,
	}
	if err := json.Unmarshal(row.CharacterIDs, &s.CharacterIDs); err != nil {
		return nil, fmt.Errorf("failed to decode character ids: %w", err)
	}
	return s, nil
}

func summaryRowsToModels(rows []*summaryRow) ([]*models.Summary, error) {
	summaries := make([]*models.Summary, 0, len(rows))
	for _, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (r *pgSummaryRepository) Create(ctx context.Context, s *models.Summary) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.CharacterIDs == nil {
		s.CharacterIDs = []uuid.UUID{}
	}
	ids, err := json.Marshal(s.CharacterIDs)
	if err != nil {
		return fmt.Errorf("failed to encode character ids: %w", err)
	}

	_, err = r.db.Exec(ctx, createSummaryQuery, s.ID, s.CampaignID, s.Text, ids, s.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create summary", zap.Error(err), zap.String("campaignID", s.CampaignID.String()))
		return fmt.Errorf("failed to create summary: %w", err)
	}
	r.logger.Info("Summary created", zap.String("summaryID", s.ID.String()))
	return nil
}

func (r *pgSummaryRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Summary, error) {
	var rows []*summaryRow
	if err := pgxscan.Select(ctx, r.db, &rows, listSummariesByCampaignQuery, campaignID); err != nil {
		r.logger.Error("Failed to list summaries", zap.Error(err), zap.String("campaignID", campaignID.String()))
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return summaryRowsToModels(rows)
}

func (r *pgSummaryRepository) ListRecent(ctx context.Context, limit int) ([]*models.Summary, error) {
	var rows []*summaryRow
	if err := pgxscan.Select(ctx, r.db, &rows, listRecentSummariesQuery, limit); err != nil {
		r.logger.Error("Failed to list recent summaries", zap.Error(err))
		return nil, fmt.Errorf("failed to list recent summaries: %w", err)
	}
	return summaryRowsToModels(rows)
}
