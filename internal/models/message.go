package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole tags who produced a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// MessageStatus is the lifecycle of an assistant turn. User messages are
// created complete.
type MessageStatus string

const (
	MessageGenerating MessageStatus = "generating"
	MessageComplete   MessageStatus = "complete"
	MessageError      MessageStatus = "error"
)

// Scene is an optional scene attachment on a message.
type Scene struct {
	Description string `json:"description"`
	ImagePrompt string `json:"imagePrompt"`
	ImageRef    string `json:"imageRef,omitempty"`
}

// AudioSegment references one synthesized narration clip for a message.
type AudioSegment struct {
	Index int    `json:"index"`
	Ref   string `json:"ref"`
}

// Message is one chat transcript entry. Blocks are appended in strict
// production order while the turn is in flight; once the turn completes the
// message is immutable except for corrective edits and HITL result patches.
type Message struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	CampaignID uuid.UUID      `json:"campaignId" db:"campaign_id"`
	Role       MessageRole    `json:"role" db:"role"`
	Blocks     []ContentBlock `json:"blocks" db:"blocks"`
	Scene      *Scene         `json:"scene,omitempty" db:"scene"`
	Usage      *TokenUsage    `json:"usage,omitempty" db:"usage"`
	Audio      []AudioSegment `json:"audio,omitempty" db:"audio"`
	SummaryID  uuid.NullUUID  `json:"summaryId,omitempty" db:"summary_id"`
	Status     MessageStatus  `json:"status" db:"status"`
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`
}

// Text concatenates the message's text blocks.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// PendingCalls returns indexes of tool_call blocks with no matching
// tool_result, i.e. human-in-the-loop calls awaiting a user action.
func (m *Message) PendingCalls() []int {
	var pending []int
	for i, b := range m.Blocks {
		if b.Type == BlockToolCall && !HasResult(m.Blocks, b.CallID) {
			pending = append(pending, i)
		}
	}
	return pending
}
