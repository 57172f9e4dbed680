package service

import (
	"context"
	"fmt"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GameSystemService exposes the rule-set bundles campaigns can attach.
type GameSystemService interface {
	Create(ctx context.Context, system *models.GameSystem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GameSystem, error)
	List(ctx context.Context) ([]*models.GameSystem, error)
}

type gameSystemService struct {
	systems repository.GameSystemRepository
	logger  *zap.Logger
}

// NewGameSystemService creates a GameSystemService.
func NewGameSystemService(systems repository.GameSystemRepository, logger *zap.Logger) GameSystemService {
	return &gameSystemService{systems: systems, logger: logger.Named("GameSystemService")}
}

func (s *gameSystemService) Create(ctx context.Context, system *models.GameSystem) error {
	if system.Name == "" {
		return fmt.Errorf("%w: game system name is required", models.ErrBadRequest)
	}
	return s.systems.Create(ctx, system)
}

func (s *gameSystemService) GetByID(ctx context.Context, id uuid.UUID) (*models.GameSystem, error) {
	return s.systems.GetByID(ctx, id)
}

func (s *gameSystemService) List(ctx context.Context) ([]*models.GameSystem, error) {
	return s.systems.List(ctx)
}
