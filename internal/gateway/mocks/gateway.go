package mocks

import (
	"context"

	"gamemaster-server/internal/gateway"

	"github.com/stretchr/testify/mock"
)

// Mock ChatStreamer
type ChatStreamer struct {
	mock.Mock
}

func (m *ChatStreamer) StreamStep(ctx context.Context, req gateway.StepRequest, onDelta gateway.DeltaHandler) (*gateway.StepResult, error) {
	args := m.Called(ctx, req, onDelta)
	res, _ := args.Get(0).(*gateway.StepResult)
	return res, args.Error(1)
}

// Mock Embedder
type Embedder struct {
	mock.Mock
}

func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

// Mock ImageGenerator
type ImageGenerator struct {
	mock.Mock
}

func (m *ImageGenerator) GenerateImage(ctx context.Context, prompt, model string) ([]byte, error) {
	args := m.Called(ctx, prompt, model)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// Mock SpeechSynthesizer
type SpeechSynthesizer struct {
	mock.Mock
}

func (m *SpeechSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	args := m.Called(ctx, text)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
