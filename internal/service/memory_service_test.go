package service

import (
	"context"
	"testing"

	"gamemaster-server/internal/models"
	repomocks "gamemaster-server/internal/repository/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEmbedder struct {
	mock.Mock
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := f.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

func TestMemorySearch_RanksByCosineSimilarity(t *testing.T) {
	memories := new(repomocks.MemoryRepository)
	embedder := new(fakeEmbedder)
	svc := NewMemoryService(memories, embedder, zap.NewNop())
	campaignID := uuid.New()

	near := &models.Memory{Summary: "the fixer owes money", Embedding: []float32{1, 0, 0}}
	far := &models.Memory{Summary: "the weather was cold", Embedding: []float32{0, 1, 0}}
	unembedded := &models.Memory{Summary: "no vector"}

	embedder.On("Embed", mock.Anything, "fixer debts").Return([]float32{0.9, 0.1, 0}, nil)
	memories.On("ListByCampaign", mock.Anything, campaignID).
		Return([]*models.Memory{far, unembedded, near}, nil)

	out, err := svc.Search(context.Background(), campaignID, "fixer debts", 10)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "the fixer owes money", out[0].Summary)
	assert.Greater(t, out[0].Score, out[1].Score)
}

func TestMemorySearch_LimitsResults(t *testing.T) {
	memories := new(repomocks.MemoryRepository)
	embedder := new(fakeEmbedder)
	svc := NewMemoryService(memories, embedder, zap.NewNop())
	campaignID := uuid.New()

	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{1, 0}, nil)
	memories.On("ListByCampaign", mock.Anything, campaignID).
		Return([]*models.Memory{
			{Summary: "a", Embedding: []float32{1, 0}},
			{Summary: "b", Embedding: []float32{0.5, 0.5}},
			{Summary: "c", Embedding: []float32{0, 1}},
		}, nil)

	out, err := svc.Search(context.Background(), campaignID, "anything", 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMemoryAdd_EmbedsWhenMissing(t *testing.T) {
	memories := new(repomocks.MemoryRepository)
	embedder := new(fakeEmbedder)
	svc := NewMemoryService(memories, embedder, zap.NewNop())

	memory := &models.Memory{CampaignID: uuid.New(), Category: "npc", Summary: "the fixer owes money"}
	embedder.On("Embed", mock.Anything, memory.Summary).Return([]float32{0.1, 0.2}, nil)
	memories.On("Create", mock.Anything, memory).Return(nil)

	require.NoError(t, svc.Add(context.Background(), memory))
	assert.Equal(t, []float32{0.1, 0.2}, memory.Embedding)
}
