package models

import "encoding/json"

// BlockType discriminates message content block variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockReasoning  BlockType = "reasoning"
	BlockToolCall   BlockType = "tool_call"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one tagged variant in a message's ordered block list.
// Ordering is append-only while a generation is in flight.
type ContentBlock struct {
	Type BlockType `json:"type"`
	// Text payload for text/reasoning blocks.
	Text string `json:"text,omitempty"`
	// Call id correlating a tool_call with its tool_result. Unique within
	// the owning message.
	CallID string          `json:"callId,omitempty"`
	Name   string          `json:"name,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// HasResult reports whether a tool_result block for the given call id exists
// in the block list.
func HasResult(blocks []ContentBlock, callID string) bool {
	for _, b := range blocks {
		if b.Type == BlockToolResult && b.CallID == callID {
			return true
		}
	}
	return false
}

// StreamEventType discriminates events on a persistent stream.
type StreamEventType string

const (
	EventTextDelta      StreamEventType = "text_delta"
	EventReasoningDelta StreamEventType = "reasoning_delta"
	EventToolCall       StreamEventType = "tool_call"
	EventToolResult     StreamEventType = "tool_result"
	EventUsage          StreamEventType = "usage"
	EventError          StreamEventType = "error"
	EventStatus         StreamEventType = "status"
)

// StreamStatus is the client-visible lifecycle of a persistent stream.
type StreamStatus string

const (
	StreamRunning StreamStatus = "running"
	StreamDone    StreamStatus = "done"
	StreamError   StreamStatus = "error"
	StreamTimeout StreamStatus = "timeout"
)

// Terminal reports whether the status ends a stream.
func (s StreamStatus) Terminal() bool {
	return s == StreamDone || s == StreamError || s == StreamTimeout
}

// StreamEvent is one line of the persistent stream log. The same shape is
// framed as newline-delimited JSON on the streaming endpoint.
type StreamEvent struct {
	Type   StreamEventType `json:"type"`
	Delta  string          `json:"delta,omitempty"`
	CallID string          `json:"callId,omitempty"`
	Name   string          `json:"name,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Usage  *TokenUsage     `json:"usage,omitempty"`
	Status StreamStatus    `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// TokenUsage holds per-turn token accounting from the model provider.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Add accumulates usage across generation steps within one turn.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}
