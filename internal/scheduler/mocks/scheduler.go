package mocks

import (
	"context"
	"time"

	"gamemaster-server/internal/scheduler"

	"github.com/stretchr/testify/mock"
)

// Mock Scheduler
type Scheduler struct {
	mock.Mock
}

func (m *Scheduler) Enqueue(ctx context.Context, payload scheduler.TaskPayload, delay time.Duration) error {
	args := m.Called(ctx, payload, delay)
	return args.Error(0)
}
