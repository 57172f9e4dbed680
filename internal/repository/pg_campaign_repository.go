package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gamemaster-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ CampaignRepository = (*pgCampaignRepository)(nil)

type pgCampaignRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgCampaignRepository creates a PostgreSQL-backed CampaignRepository.
func NewPgCampaignRepository(db DBTX, logger *zap.Logger) CampaignRepository {
	return &pgCampaignRepository{
		db:     db,
		logger: logger.Named("PgCampaignRepo"),
	}
}

const campaignColumns = `id, name, description, image_style, text_model, image_model,
game_system_id, plan, quests, clocks, world_date, time_of_day,
active_characters, tool_flags, archived, created_at, updated_at`

const createCampaignQuery = `
INSERT INTO campaigns (` + campaignColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

const getCampaignByIDQuery = `
SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

const listCampaignsQuery = `
SELECT ` + campaignColumns + ` FROM campaigns WHERE archived = false OR $1 ORDER BY created_at DESC`

const updateCampaignQuery = `
UPDATE campaigns SET
    name = $2, description = $3, image_style = $4, text_model = $5,
    image_model = $6, game_system_id = $7, plan = $8, quests = $9,
    clocks = $10, world_date = $11, time_of_day = $12,
    active_characters = $13, tool_flags = $14, archived = $15, updated_at = $16
WHERE id = $1`

const setCampaignArchivedQuery = `
UPDATE campaigns SET archived = $2, updated_at = $3 WHERE id = $1`

func campaignJSONFields(c *models.Campaign) (quests, clocks, active, flags []byte, err error) {
	if c.Quests == nil {
		c.Quests = []models.Quest{}
	}
	if c.Clocks == nil {
		c.Clocks = []models.Clock{}
	}
	if c.ActiveCharacters == nil {
		c.ActiveCharacters = []string{}
	}
	if c.ToolFlags == nil {
		c.ToolFlags = map[string]bool{}
	}
	if quests, err = json.Marshal(c.Quests); err != nil {
		return
	}
	if clocks, err = json.Marshal(c.Clocks); err != nil {
		return
	}
	if active, err = json.Marshal(c.ActiveCharacters); err != nil {
		return
	}
	flags, err = json.Marshal(c.ToolFlags)
	return
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	c := &models.Campaign{}
	var quests, clocks, active, flags []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &c.ImageStyle, &c.TextModel, &c.ImageModel,
		&c.GameSystemID, &c.Plan, &quests, &clocks, &c.WorldDate, &c.TimeOfDay,
		&active, &flags, &c.Archived, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(quests, &c.Quests); err != nil {
		return nil, fmt.Errorf("failed to decode quests: %w", err)
	}
	if err := json.Unmarshal(clocks, &c.Clocks); err != nil {
		return nil, fmt.Errorf("failed to decode clocks: %w", err)
	}
	if err := json.Unmarshal(active, &c.ActiveCharacters); err != nil {
		return nil, fmt.Errorf("failed to decode active characters: %w", err)
	}
	if err := json.Unmarshal(flags, &c.ToolFlags); err != nil {
		return nil, fmt.Errorf("failed to decode tool flags: %w", err)
	}
	return c, nil
}

func (r *pgCampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	quests, clocks, active, flags, err := campaignJSONFields(c)
	if err != nil {
		return fmt.Errorf("failed to encode campaign fields: %w", err)
	}

	_, err = r.db.Exec(ctx, createCampaignQuery,
		c.ID, c.Name, c.Description, c.ImageStyle, c.TextModel, c.ImageModel,
		c.GameSystemID, c.Plan, quests, clocks, c.WorldDate, c.TimeOfDay,
		active, flags, c.Archived, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create campaign", zap.Error(err), zap.String("campaignID", c.ID.String()))
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	r.logger.Info("Campaign created", zap.String("campaignID", c.ID.String()))
	return nil
}

func (r *pgCampaignRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRow(ctx, getCampaignByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Campaign not found", zap.String("campaignID", id.String()))
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get campaign", zap.Error(err), zap.String("campaignID", id.String()))
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, err)
	}
	return c, nil
}

func (r *pgCampaignRepository) List(ctx context.Context, includeArchived bool) ([]*models.Campaign, error) {
	rows, err := r.db.Query(ctx, listCampaignsQuery, includeArchived)
	if err != nil {
		r.logger.Error("Failed to list campaigns", zap.Error(err))
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *pgCampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	c.UpdatedAt = time.Now().UTC()
	quests, clocks, active, flags, err := campaignJSONFields(c)
	if err != nil {
		return fmt.Errorf("failed to encode campaign fields: %w", err)
	}

	tag, err := r.db.Exec(ctx, updateCampaignQuery,
		c.ID, c.Name, c.Description, c.ImageStyle, c.TextModel, c.ImageModel,
		c.GameSystemID, c.Plan, quests, clocks, c.WorldDate, c.TimeOfDay,
		active, flags, c.Archived, c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update campaign", zap.Error(err), zap.String("campaignID", c.ID.String()))
		return fmt.Errorf("failed to update campaign %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgCampaignRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	tag, err := r.db.Exec(ctx, setCampaignArchivedQuery, id, archived, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to set campaign archived flag", zap.Error(err), zap.String("campaignID", id.String()))
		return fmt.Errorf("failed to archive campaign %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Campaign archived flag updated", zap.String("campaignID", id.String()), zap.Bool("archived", archived))
	return nil
}
