package gateway

import (
	"context"
	"strings"

	"gamemaster-server/internal/models"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// ChatMessage is one provider-neutral turn of model input.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// ToolSpec describes a callable tool advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// StepRequest is one bounded generation step: full message history plus the
// tool surface for this turn.
type StepRequest struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolSpec
	Temperature float32
	MaxTokens   int
}

// StepResult is the outcome of one generation step. A non-empty ToolCalls
// slice means the model stopped to call tools. Reasoning carries the
// chain-of-thought that reasoning models emit alongside the answer; it is
// surfaced to clients but never fed back as model input.
type StepResult struct {
	Text      string
	Reasoning string
	ToolCalls []ToolCall
	Usage     models.TokenUsage
}

// DeltaKind discriminates streamed delta payloads.
type DeltaKind string

const (
	DeltaText      DeltaKind = "text"
	DeltaReasoning DeltaKind = "reasoning"
)

// DeltaHandler receives incremental model output as it is produced.
type DeltaHandler func(kind DeltaKind, delta string) error

// ChatStreamer runs one streaming generation step against a model provider.
type ChatStreamer interface {
	StreamStep(ctx context.Context, req StepRequest, onDelta DeltaHandler) (*StepResult, error)
}

// Embedder turns text into a dense vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ImageGenerator produces an image for a prompt and returns raw bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, model string) ([]byte, error)
}

// SpeechSynthesizer produces spoken audio for a text fragment.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const ollamaModelPrefix = "ollama/"

// Router dispatches chat steps to a provider based on the model name.
// Models prefixed "ollama/" go to the local Ollama client, everything else
// to the OpenAI-compatible client.
type Router struct {
	openai ChatStreamer
	ollama ChatStreamer
}

// NewRouter creates a model-name based ChatStreamer router.
func NewRouter(openai, ollama ChatStreamer) *Router {
	return &Router{openai: openai, ollama: ollama}
}

func (r *Router) StreamStep(ctx context.Context, req StepRequest, onDelta DeltaHandler) (*StepResult, error) {
	if strings.HasPrefix(req.Model, ollamaModelPrefix) {
		req.Model = strings.TrimPrefix(req.Model, ollamaModelPrefix)
		return r.ollama.StreamStep(ctx, req, onDelta)
	}
	return r.openai.StreamStep(ctx, req, onDelta)
}
