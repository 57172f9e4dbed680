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

var _ MessageRepository = (*pgMessageRepository)(nil)

type pgMessageRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgMessageRepository creates a PostgreSQL-backed MessageRepository.
func NewPgMessageRepository(db DBTX, logger *zap.Logger) MessageRepository {
	return &pgMessageRepository{
		db:     db,
		logger: logger.Named("PgMessageRepo"),
	}
}

const messageColumns = `id, campaign_id, role, blocks, scene, usage, audio, summary_id, status, created_at`

const createMessageQuery = `
INSERT INTO messages (` + messageColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const getMessageByIDQuery = `
SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

const listMessagesByCampaignQuery = `
SELECT ` + messageColumns + ` FROM messages WHERE campaign_id = $1 ORDER BY created_at`

const getLatestMessageQuery = `
SELECT ` + messageColumns + ` FROM messages WHERE campaign_id = $1 ORDER BY created_at DESC LIMIT 1`

const updateMessageQuery = `
UPDATE messages SET blocks = $2, scene = $3, usage = $4, audio = $5, summary_id = $6, status = $7
WHERE id = $1`

const deleteMessageQuery = `DELETE FROM messages WHERE id = $1`

func messageJSONFields(m *models.Message) (blocks, scene, usage, audio []byte, err error) {
	if m.Blocks == nil {
		m.Blocks = []models.ContentBlock{}
	}
	if blocks, err = json.Marshal(m.Blocks); err != nil {
		return
	}
	if m.Scene != nil {
		if scene, err = json.Marshal(m.Scene); err != nil {
			return
		}
	}
	if m.Usage != nil {
		if usage, err = json.Marshal(m.Usage); err != nil {
			return
		}
	}
	if m.Audio != nil {
		audio, err = json.Marshal(m.Audio)
	}
	return
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	var blocks, scene, usage, audio []byte
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.Role, &blocks, &scene, &usage, &audio,
		&m.SummaryID, &m.Status, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blocks, &m.Blocks); err != nil {
		return nil, fmt.Errorf("failed to decode blocks: %w", err)
	}
	if scene != nil {
		if err := json.Unmarshal(scene, &m.Scene); err != nil {
			return nil, fmt.Errorf("failed to decode scene: %w", err)
		}
	}
	if usage != nil {
		if err := json.Unmarshal(usage, &m.Usage); err != nil {
			return nil, fmt.Errorf("failed to decode usage: %w", err)
		}
	}
	if audio != nil {
		if err := json.Unmarshal(audio, &m.Audio); err != nil {
			return nil, fmt.Errorf("failed to decode audio: %w", err)
		}
	}
	return m, nil
}

func (r *pgMessageRepository) Create(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	blocks, scene, usage, audio, err := messageJSONFields(m)
	if err != nil {
		return fmt.Errorf("failed to encode message fields: %w", err)
	}

	_, err = r.db.Exec(ctx, createMessageQuery,
		m.ID, m.CampaignID, m.Role, blocks, scene, usage, audio, m.SummaryID, m.Status, m.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create message", zap.Error(err), zap.String("campaignID", m.CampaignID.String()))
		return fmt.Errorf("failed to create message: %w", err)
	}
	r.logger.Debug("Message created", zap.String("messageID", m.ID.String()), zap.String("role", string(m.Role)))
	return nil
}

func (r *pgMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, getMessageByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get message", zap.Error(err), zap.String("messageID", id.String()))
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return m, nil
}

func (r *pgMessageRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Message, error) {
	rows, err := r.db.Query(ctx, listMessagesByCampaignQuery, campaignID)
	if err != nil {
		r.logger.Error("Failed to list messages", zap.Error(err), zap.String("campaignID", campaignID.String()))
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *pgMessageRepository) GetLatest(ctx context.Context, campaignID uuid.UUID) (*models.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, getLatestMessageQuery, campaignID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get latest message", zap.Error(err), zap.String("campaignID", campaignID.String()))
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return m, nil
}

func (r *pgMessageRepository) Update(ctx context.Context, m *models.Message) error {
	blocks, scene, usage, audio, err := messageJSONFields(m)
	if err != nil {
		return fmt.Errorf("failed to encode message fields: %w", err)
	}

	tag, err := r.db.Exec(ctx, updateMessageQuery,
		m.ID, blocks, scene, usage, audio, m.SummaryID, m.Status,
	)
	if err != nil {
		r.logger.Error("Failed to update message", zap.Error(err), zap.String("messageID", m.ID.String()))
		return fmt.Errorf("failed to update message %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteMessageQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete message", zap.Error(err), zap.String("messageID", id.String()))
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Message deleted", zap.String("messageID", id.String()))
	return nil
}
