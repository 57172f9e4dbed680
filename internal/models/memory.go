package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Memory is an append-only long-term memory extracted from the transcript,
// retrieved by vector similarity scoped to a campaign.
type Memory struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CampaignID uuid.UUID `json:"campaignId" db:"campaign_id"`
	Category   string    `json:"category" db:"category"`
	Summary    string    `json:"summary" db:"summary"`
	Context    string    `json:"context" db:"context"`
	Tags       []string  `json:"tags" db:"tags"`
	Embedding  []float32 `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// CosineSimilarity between two embedding vectors; 0 for mismatched or
// zero-norm vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Summary is one collapsed batch of prior-session history.
type Summary struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	CampaignID   uuid.UUID   `json:"campaignId" db:"campaign_id"`
	Text         string      `json:"text" db:"text"`
	CharacterIDs []uuid.UUID `json:"characterIds" db:"character_ids"`
	CreatedAt    time.Time   `json:"createdAt" db:"created_at"`
}

// GameSystem is a reusable rule-set bundle attachable to a campaign.
type GameSystem struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Name          string       `json:"name" db:"name"`
	RulesetPrompt string       `json:"rulesetPrompt" db:"ruleset_prompt"`
	Files         []SystemFile `json:"files" db:"files"`
	CreatedAt     time.Time    `json:"createdAt" db:"created_at"`
}

// SystemFile is one reference document within a game system bundle.
type SystemFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}
