package mocks

import (
	"context"

	"gamemaster-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock Store
type Store struct {
	mock.Mock
}

func (m *Store) Append(ctx context.Context, messageID uuid.UUID, event models.StreamEvent) error {
	args := m.Called(ctx, messageID, event)
	return args.Error(0)
}

func (m *Store) SetStatus(ctx context.Context, messageID uuid.UUID, status models.StreamStatus) error {
	args := m.Called(ctx, messageID, status)
	return args.Error(0)
}

func (m *Store) Status(ctx context.Context, messageID uuid.UUID) (models.StreamStatus, error) {
	args := m.Called(ctx, messageID)
	status, _ := args.Get(0).(models.StreamStatus)
	return status, args.Error(1)
}

func (m *Store) Attach(ctx context.Context, messageID uuid.UUID) (<-chan models.StreamEvent, error) {
	args := m.Called(ctx, messageID)
	ch, _ := args.Get(0).(<-chan models.StreamEvent)
	return ch, args.Error(1)
}
