package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gamemaster-server/internal/config"
	"gamemaster-server/internal/models"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrEmptyStep is returned when a generation step produces neither text nor
// tool calls.
var ErrEmptyStep = errors.New("model produced an empty step")

// OpenAIClient talks to an OpenAI-compatible API: streaming chat with tools,
// embeddings, image generation and speech synthesis.
type OpenAIClient struct {
	client      *openai.Client
	embedModel  string
	speechModel string
	speechVoice string
	timeout     time.Duration
	logger      *zap.Logger
}

var (
	_ ChatStreamer      = (*OpenAIClient)(nil)
	_ Embedder          = (*OpenAIClient)(nil)
	_ ImageGenerator    = (*OpenAIClient)(nil)
	_ SpeechSynthesizer = (*OpenAIClient)(nil)
)

// NewOpenAIClient creates a client for the configured OpenAI-compatible API.
func NewOpenAIClient(cfg *config.Config, logger *zap.Logger) *OpenAIClient {
	apiConfig := openai.DefaultConfig(cfg.AIAPIKey)
	apiConfig.BaseURL = cfg.AIBaseURL
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(apiConfig),
		embedModel:  cfg.EmbeddingModel,
		speechModel: cfg.SpeechModel,
		speechVoice: cfg.SpeechVoice,
		timeout:     cfg.AITimeout,
		logger:      logger.Named("OpenAIClient"),
	}
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Args,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return tools
}

// StreamStep runs one streaming generation step, forwarding text deltas and
// accumulating partial tool calls by index until the stream ends.
func (c *OpenAIClient) StreamStep(ctx context.Context, req StepRequest, onDelta DeltaHandler) (*StepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      toOpenAIMessages(req.Messages),
		Tools:         toOpenAITools(req.Tools),
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	c.logger.Debug("Starting generation step",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("tools", len(req.Tools)))

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": req.Model, "status": "error_init"}).Inc()
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var (
		text       strings.Builder
		reasoning  strings.Builder
		calls      []ToolCall
		argBufs    []strings.Builder
		finalUsage *openai.Usage
	)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": req.Model, "status": "error_stream"}).Inc()
			return nil, fmt.Errorf("failed to read completion stream: %w", err)
		}

		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			finalUsage = response.Usage
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.ReasoningContent != "" {
			reasoning.WriteString(delta.ReasoningContent)
			if onDelta != nil {
				if err := onDelta(DeltaReasoning, delta.ReasoningContent); err != nil {
					return nil, fmt.Errorf("delta handler failed: %w", err)
				}
			}
		}
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if onDelta != nil {
				if err := onDelta(DeltaText, delta.Content); err != nil {
					return nil, fmt.Errorf("delta handler failed: %w", err)
				}
			}
		}

		// Tool call fragments arrive indexed; arguments accumulate across
		// chunks until the stream ends.
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			for idx >= len(calls) {
				calls = append(calls, ToolCall{})
				argBufs = append(argBufs, strings.Builder{})
			}
			if tc.ID != "" {
				calls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Name = tc.Function.Name
			}
			argBufs[idx].WriteString(tc.Function.Arguments)
		}
	}
	for i := range calls {
		calls[i].Args = argBufs[i].String()
	}

	duration := time.Since(start)
	result := &StepResult{Text: text.String(), Reasoning: reasoning.String(), ToolCalls: calls}
	if result.Text == "" && len(result.ToolCalls) == 0 {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": req.Model, "status": "error_empty"}).Inc()
		return nil, ErrEmptyStep
	}

	if finalUsage != nil {
		result.Usage = models.TokenUsage{
			PromptTokens:     finalUsage.PromptTokens,
			CompletionTokens: finalUsage.CompletionTokens,
		}
	} else {
		result.Usage = c.estimateUsage(req, result)
	}

	aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": req.Model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"provider": "openai", "model": req.Model}).Observe(duration.Seconds())
	aiPromptTokens.With(prometheus.Labels{"provider": "openai", "model": req.Model}).Observe(float64(result.Usage.PromptTokens))
	aiCompletionTokens.With(prometheus.Labels{"provider": "openai", "model": req.Model}).Observe(float64(result.Usage.CompletionTokens))
	if len(result.ToolCalls) > 0 {
		aiToolCallsTotal.With(prometheus.Labels{"provider": "openai", "model": req.Model}).Add(float64(len(result.ToolCalls)))
	}

	c.logger.Debug("Generation step finished",
		zap.Duration("duration", duration),
		zap.Int("textLen", len(result.Text)),
		zap.Int("toolCalls", len(result.ToolCalls)))
	return result, nil
}

// estimateUsage approximates token counts when the provider omits the final
// usage block from the stream.
func (c *OpenAIClient) estimateUsage(req StepRequest, result *StepResult) models.TokenUsage {
	tke, err := tiktoken.EncodingForModel(req.Model)
	if err != nil {
		c.logger.Warn("No tokenizer for model, skipping usage estimate", zap.String("model", req.Model))
		return models.TokenUsage{}
	}
	usage := models.TokenUsage{}
	for _, m := range req.Messages {
		usage.PromptTokens += len(tke.Encode(m.Content, nil, nil))
	}
	usage.CompletionTokens = len(tke.Encode(result.Text, nil, nil))
	for _, call := range result.ToolCalls {
		usage.CompletionTokens += len(tke.Encode(call.Args, nil, nil))
	}
	return usage
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": c.embedModel, "status": "error"}).Inc()
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contains no data")
	}
	aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": c.embedModel, "status": "success"}).Inc()
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt, model string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("Generating image", zap.String("model", model), zap.Int("promptLen", len(prompt)))
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": model, "status": "error"}).Inc()
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("image response contains no data")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": model, "status": "success"}).Inc()
	return data, nil
}

func (c *OpenAIClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(c.speechModel),
		Input: text,
		Voice: openai.SpeechVoice(c.speechVoice),
	})
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": c.speechModel, "status": "error"}).Inc()
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech payload: %w", err)
	}
	aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": c.speechModel, "status": "success"}).Inc()
	return data, nil
}
