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

var _ CharacterRepository = (*pgCharacterRepository)(nil)

type pgCharacterRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgCharacterRepository creates a PostgreSQL-backed CharacterRepository.
func NewPgCharacterRepository(db DBTX, logger *zap.Logger) CharacterRepository {
	return &pgCharacterRepository{
		db:     db,
		logger: logger.Named("PgCharacterRepo"),
	}
}

const characterColumns = `id, campaign_id, name, description, image_prompt, portrait_ref,
active, notes, outfits, current_outfit, created_at, updated_at`

const createCharacterQuery = `
INSERT INTO characters (` + characterColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const getCharacterByIDQuery = `
SELECT ` + characterColumns + ` FROM characters WHERE id = $1`

const getCharacterByNameQuery = `
SELECT ` + characterColumns + ` FROM characters WHERE campaign_id = $1 AND name = $2`

const listCharactersByCampaignQuery = `
SELECT ` + characterColumns + ` FROM characters WHERE campaign_id = $1 ORDER BY created_at`

const updateCharacterQuery = `
UPDATE characters SET
    name = $2, description = $3, image_prompt = $4, portrait_ref = $5,
    active = $6, notes = $7, outfits = $8, current_outfit = $9, updated_at = $10
WHERE id = $1`

func scanCharacter(row pgx.Row) (*models.Character, error) {
	c := &models.Character{}
	var outfits []byte
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.Name, &c.Description, &c.ImagePrompt, &c.PortraitRef,
		&c.Active, &c.Notes, &outfits, &c.CurrentOutfit, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(outfits, &c.Outfits); err != nil {
		return nil, fmt.Errorf("failed to decode outfits: %w", err)
	}
	return c, nil
}

func (r *pgCharacterRepository) Create(ctx context.Context, c *models.Character) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Outfits == nil {
		c.Outfits = map[string]models.Outfit{}
	}
	outfits, err := json.Marshal(c.Outfits)
	if err != nil {
		return fmt.Errorf("failed to encode outfits: %w", err)
	}

	_, err = r.db.Exec(ctx, createCharacterQuery,
		c.ID, c.CampaignID, c.Name, c.Description, c.ImagePrompt, c.PortraitRef,
		c.Active, c.Notes, outfits, c.CurrentOutfit, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create character", zap.Error(err),
			zap.String("campaignID", c.CampaignID.String()), zap.String("name", c.Name))
		return fmt.Errorf("failed to create character: %w", err)
	}
	r.logger.Info("Character created", zap.String("characterID", c.ID.String()), zap.String("name", c.Name))
	return nil
}

func (r *pgCharacterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	c, err := scanCharacter(r.db.QueryRow(ctx, getCharacterByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get character", zap.Error(err), zap.String("characterID", id.String()))
		return nil, fmt.Errorf("failed to get character %s: %w", id, err)
	}
	return c, nil
}

func (r *pgCharacterRepository) GetByName(ctx context.Context, campaignID uuid.UUID, name string) (*models.Character, error) {
	c, err := scanCharacter(r.db.QueryRow(ctx, getCharacterByNameQuery, campaignID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Character not found by name",
				zap.String("campaignID", campaignID.String()), zap.String("name", name))
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get character by name", zap.Error(err), zap.String("name", name))
		return nil, fmt.Errorf("failed to get character %q: %w", name, err)
	}
	return c, nil
}

func (r *pgCharacterRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Character, error) {
	rows, err := r.db.Query(ctx, listCharactersByCampaignQuery, campaignID)
	if err != nil {
		r.logger.Error("Failed to list characters", zap.Error(err), zap.String("campaignID", campaignID.String()))
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	var characters []*models.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character row: %w", err)
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

func (r *pgCharacterRepository) Update(ctx context.Context, c *models.Character) error {
	c.UpdatedAt = time.Now().UTC()
	if c.Outfits == nil {
		c.Outfits = map[string]models.Outfit{}
	}
	outfits, err := json.Marshal(c.Outfits)
	if err != nil {
		return fmt.Errorf("failed to encode outfits: %w", err)
	}

	tag, err := r.db.Exec(ctx, updateCharacterQuery,
		c.ID, c.Name, c.Description, c.ImagePrompt, c.PortraitRef,
		c.Active, c.Notes, outfits, c.CurrentOutfit, c.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update character", zap.Error(err), zap.String("characterID", c.ID.String()))
		return fmt.Errorf("failed to update character %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
