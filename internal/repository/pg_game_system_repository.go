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

var _ GameSystemRepository = (*pgGameSystemRepository)(nil)

type pgGameSystemRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgGameSystemRepository creates a PostgreSQL-backed GameSystemRepository.
func NewPgGameSystemRepository(db DBTX, logger *zap.Logger) GameSystemRepository {
	return &pgGameSystemRepository{
		db:     db,
		logger: logger.Named("PgGameSystemRepo"),
	}
}

const createGameSystemQuery = `
INSERT INTO game_systems (id, name, ruleset_prompt, files, created_at)
VALUES ($1, $2, $3, $4, $5)`

const getGameSystemByIDQuery = `
SELECT id, name, ruleset_prompt, files, created_at FROM game_systems WHERE id = $1`

const listGameSystemsQuery = `
SELECT id, name, ruleset_prompt, files, created_at FROM game_systems ORDER BY name`

func scanGameSystem(row pgx.Row) (*models.GameSystem, error) {
	g := &models.GameSystem{}
	var files []byte
	err := row.Scan(&g.ID, &g.Name, &g.RulesetPrompt, &files, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(files, &g.Files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	return g, nil
}

func (r *pgGameSystemRepository) Create(ctx context.Context, g *models.GameSystem) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if g.Files == nil {
		g.Files = []models.SystemFile{}
	}
	files, err := json.Marshal(g.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}

	_, err = r.db.Exec(ctx, createGameSystemQuery, g.ID, g.Name, g.RulesetPrompt, files, g.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create game system", zap.Error(err), zap.String("name", g.Name))
		return fmt.Errorf("failed to create game system: %w", err)
	}
	r.logger.Info("Game system created", zap.String("systemID", g.ID.String()), zap.String("name", g.Name))
	return nil
}

func (r *pgGameSystemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GameSystem, error) {
	g, err := scanGameSystem(r.db.QueryRow(ctx, getGameSystemByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get game system", zap.Error(err), zap.String("systemID", id.String()))
		return nil, fmt.Errorf("failed to get game system %s: %w", id, err)
	}
	return g, nil
}

func (r *pgGameSystemRepository) List(ctx context.Context) ([]*models.GameSystem, error) {
	rows, err := r.db.Query(ctx, listGameSystemsQuery)
	if err != nil {
		r.logger.Error("Failed to list game systems", zap.Error(err))
		return nil, fmt.Errorf("failed to list game systems: %w", err)
	}
	defer rows.Close()

	var systems []*models.GameSystem
	for rows.Next() {
		g, err := scanGameSystem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game system row: %w", err)
		}
		systems = append(systems, g)
	}
	return systems, rows.Err()
}
