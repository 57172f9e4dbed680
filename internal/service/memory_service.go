package service

import (
	"context"
	"fmt"
	"sort"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Embedder mirrors gateway.Embedder; declared locally so the service depends
// on the capability, not the gateway package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoredMemory is a memory with its similarity to a search query.
type ScoredMemory struct {
	*models.Memory
	Score float64 `json:"score"`
}

// MemoryService exposes the append-only long-term memory of a campaign.
// Search embeds the query and ranks the campaign's memories by cosine
// similarity in process; the corpus per campaign is small enough that no
// vector index is warranted.
type MemoryService interface {
	Add(ctx context.Context, memory *models.Memory) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Memory, error)
	Search(ctx context.Context, campaignID uuid.UUID, query string, limit int) ([]ScoredMemory, error)
}

type memoryService struct {
	memories repository.MemoryRepository
	embedder Embedder
	logger   *zap.Logger
}

// NewMemoryService creates a MemoryService.
func NewMemoryService(memories repository.MemoryRepository, embedder Embedder, logger *zap.Logger) MemoryService {
	return &memoryService{
		memories: memories,
		embedder: embedder,
		logger:   logger.Named("MemoryService"),
	}
}

func (s *memoryService) Add(ctx context.Context, memory *models.Memory) error {
	if memory.Summary == "" {
		return fmt.Errorf("%w: memory summary is required", models.ErrBadRequest)
	}
	if len(memory.Embedding) == 0 {
		embedding, err := s.embedder.Embed(ctx, memory.Summary)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
		}
		memory.Embedding = embedding
	}
	return s.memories.Create(ctx, memory)
}

func (s *memoryService) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*models.Memory, error) {
	return s.memories.ListByCampaign(ctx, campaignID)
}

func (s *memoryService) Search(ctx context.Context, campaignID uuid.UUID, query string, limit int) ([]ScoredMemory, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", models.ErrBadRequest)
	}
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	memories, err := s.memories.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredMemory, 0, len(memories))
	for _, m := range memories {
		if len(m.Embedding) == 0 {
			continue
		}
		scored = append(scored, ScoredMemory{Memory: m, Score: models.CosineSimilarity(queryVec, m.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
