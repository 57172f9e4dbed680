package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gamemaster-server/internal/config"
	"gamemaster-server/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// OllamaClient runs chat steps against a local Ollama instance, used for
// campaigns pinned to self-hosted models.
type OllamaClient struct {
	client  *api.Client
	timeout time.Duration
	logger  *zap.Logger
}

var _ ChatStreamer = (*OllamaClient)(nil)

// NewOllamaClient creates a client for the configured Ollama base URL.
func NewOllamaClient(cfg *config.Config, logger *zap.Logger) (*OllamaClient, error) {
	baseURL := strings.TrimSuffix(cfg.OllamaBaseURL, "/")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama base url %q: %w", baseURL, err)
	}

	return &OllamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: cfg.AITimeout}),
		timeout: cfg.AITimeout,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func toOllamaMessages(messages []ChatMessage) ([]api.Message, error) {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var call api.ToolCall
			call.Function.Name = tc.Name
			if tc.Args != "" {
				if err := json.Unmarshal([]byte(tc.Args), &call.Function.Arguments); err != nil {
					return nil, fmt.Errorf("failed to decode tool call args for %s: %w", tc.Name, err)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		out = append(out, msg)
	}
	return out, nil
}

// toOllamaTools converts tool specs through a JSON round trip; the schema
// shapes are compatible.
func toOllamaTools(specs []ToolSpec) (api.Tools, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make(api.Tools, 0, len(specs))
	for _, spec := range specs {
		var tool api.Tool
		tool.Type = "function"
		tool.Function.Name = spec.Name
		tool.Function.Description = spec.Description

		raw, err := json.Marshal(spec.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool schema for %s: %w", spec.Name, err)
		}
		if err := json.Unmarshal(raw, &tool.Function.Parameters); err != nil {
			return nil, fmt.Errorf("failed to convert tool schema for %s: %w", spec.Name, err)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func (c *OllamaClient) StreamStep(ctx context.Context, req StepRequest, onDelta DeltaHandler) (*StepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages, err := toOllamaMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := toOllamaTools(req.Tools)
	if err != nil {
		return nil, err
	}

	stream := true
	request := &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	c.logger.Debug("Starting generation step",
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("tools", len(req.Tools)))

	start := time.Now()
	var (
		text    strings.Builder
		calls   []ToolCall
		usage   models.TokenUsage
		callSeq int
	)

	err = c.client.Chat(ctx, request, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			text.WriteString(resp.Message.Content)
			if onDelta != nil {
				if err := onDelta(DeltaText, resp.Message.Content); err != nil {
					return fmt.Errorf("delta handler failed: %w", err)
				}
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return fmt.Errorf("failed to encode tool call args: %w", err)
			}
			callSeq++
			calls = append(calls, ToolCall{
				// Ollama does not assign call ids; synthesize stable ones.
				ID:   fmt.Sprintf("ollama-call-%d", callSeq),
				Name: tc.Function.Name,
				Args: string(args),
			})
		}
		if resp.Done {
			usage.PromptTokens = resp.PromptEvalCount
			usage.CompletionTokens = resp.EvalCount
		}
		return nil
	})

	duration := time.Since(start)
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": req.Model, "status": "error"}).Inc()
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	result := &StepResult{Text: text.String(), ToolCalls: calls, Usage: usage}
	if result.Text == "" && len(result.ToolCalls) == 0 {
		aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": req.Model, "status": "error_empty"}).Inc()
		return nil, ErrEmptyStep
	}

	aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": req.Model, "status": "success"}).Inc()
	aiRequestDuration.With(prometheus.Labels{"provider": "ollama", "model": req.Model}).Observe(duration.Seconds())
	aiPromptTokens.With(prometheus.Labels{"provider": "ollama", "model": req.Model}).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.With(prometheus.Labels{"provider": "ollama", "model": req.Model}).Observe(float64(usage.CompletionTokens))
	if len(result.ToolCalls) > 0 {
		aiToolCallsTotal.With(prometheus.Labels{"provider": "ollama", "model": req.Model}).Add(float64(len(result.ToolCalls)))
	}

	c.logger.Debug("Generation step finished",
		zap.Duration("duration", duration),
		zap.Int("textLen", len(result.Text)),
		zap.Int("toolCalls", len(result.ToolCalls)))
	return result, nil
}
