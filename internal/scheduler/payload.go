package scheduler

import "github.com/google/uuid"

// Task names dispatched through the deferred task queue.
const (
	TaskRunTurn            = "run_turn"
	TaskExtractMemories    = "extract_memories"
	TaskGeneratePortrait   = "generate_portrait"
	TaskGenerateSceneImage = "generate_scene_image"
	TaskSummarizeHistory   = "summarize_history"
)

// TaskPayload is the wire envelope for one deferred task. Only the fields
// relevant to the named task are set.
type TaskPayload struct {
	Task        string    `json:"task"`
	CampaignID  uuid.UUID `json:"campaignId"`
	MessageID   uuid.UUID `json:"messageId,omitempty"`
	CharacterID uuid.UUID `json:"characterId,omitempty"`
	JobID       uuid.UUID `json:"jobId,omitempty"`
	Outfit      string    `json:"outfit,omitempty"`
}
