package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gamemaster-server/internal/composer"
	"gamemaster-server/internal/gateway"
	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"
	"gamemaster-server/internal/stream"
	"gamemaster-server/internal/tools"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator drives one assistant turn: a bounded loop of streaming
// generation steps interleaved with tool executions, every event mirrored to
// the persistent stream log.
type Orchestrator struct {
	campaigns  repository.CampaignRepository
	characters repository.CharacterRepository
	messages   repository.MessageRepository
	composer   *composer.Composer
	gateway    gateway.ChatStreamer
	registry   *tools.Registry
	streams    stream.Store
	scheduler  scheduler.Scheduler
	logger     *zap.Logger

	maxSteps     int
	defaultModel string
	memoryDelay  time.Duration
}

// Config wires an Orchestrator.
type Config struct {
	Campaigns  repository.CampaignRepository
	Characters repository.CharacterRepository
	Messages   repository.MessageRepository
	Composer   *composer.Composer
	Gateway    gateway.ChatStreamer
	Registry   *tools.Registry
	Streams    stream.Store
	Scheduler  scheduler.Scheduler
	Logger     *zap.Logger

	MaxSteps     int
	DefaultModel string
	MemoryDelay  time.Duration
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		campaigns:    cfg.Campaigns,
		characters:   cfg.Characters,
		messages:     cfg.Messages,
		composer:     cfg.Composer,
		gateway:      cfg.Gateway,
		registry:     cfg.Registry,
		streams:      cfg.Streams,
		scheduler:    cfg.Scheduler,
		logger:       cfg.Logger.Named("Orchestrator"),
		maxSteps:     cfg.MaxSteps,
		defaultModel: cfg.DefaultModel,
		memoryDelay:  cfg.MemoryDelay,
	}
}

// RunTurn executes the turn that produces the given assistant message.
// Delivery is at-least-once: a completed message is a no-op, a half-built
// one is truncated and regenerated from scratch.
func (o *Orchestrator) RunTurn(ctx context.Context, payload scheduler.TaskPayload) error {
	campaign, err := o.campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return fmt.Errorf("run_turn: %w", err)
	}
	if campaign.Archived {
		return fmt.Errorf("run_turn: %w", models.ErrCampaignArchived)
	}

	msg, err := o.messages.GetByID(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("run_turn: %w", err)
	}
	if msg.Status != models.MessageGenerating {
		o.logger.Info("Turn already finalized, skipping redelivery",
			zap.String("messageID", msg.ID.String()))
		return nil
	}
	if len(msg.Blocks) > 0 {
		// Interrupted turn: restart with truncation rather than resuming a
		// half-written block list.
		o.logger.Warn("Restarting interrupted turn",
			zap.String("messageID", msg.ID.String()), zap.Int("discardedBlocks", len(msg.Blocks)))
		msg.Blocks = nil
		if err := o.messages.Update(ctx, msg); err != nil {
			return fmt.Errorf("run_turn: failed to reset message: %w", err)
		}
	}

	if err := o.streams.SetStatus(ctx, msg.ID, models.StreamRunning); err != nil {
		return fmt.Errorf("run_turn: %w", err)
	}

	if err := o.generate(ctx, campaign, msg); err != nil {
		// The failure is serialized into the message; the task itself
		// succeeded in producing a terminal state.
		o.logger.Error("Turn failed",
			zap.String("messageID", msg.ID.String()), zap.Error(err))
		return o.finalizeError(ctx, msg, err)
	}
	return nil
}

// generate runs the step loop until the model stops calling tools, a
// human-in-the-loop call pauses the turn, or the step limit is reached.
func (o *Orchestrator) generate(ctx context.Context, campaign *models.Campaign, msg *models.Message) error {
	conversation, err := o.composer.Compose(ctx, campaign, msg)
	if err != nil {
		return err
	}

	env := &tools.Env{
		Campaigns:  o.campaigns,
		Characters: o.characters,
		Scheduler:  o.scheduler,
		Logger:     o.logger,
		Campaign:   campaign,
		Message:    msg,
	}

	model := campaign.TextModel
	if model == "" {
		model = o.defaultModel
	}
	specs := o.registry.Specs(campaign)
	usage := models.TokenUsage{}

	for step := 0; step < o.maxSteps; step++ {
		onDelta := func(kind gateway.DeltaKind, delta string) error {
			eventType := models.EventTextDelta
			if kind == gateway.DeltaReasoning {
				eventType = models.EventReasoningDelta
			}
			return o.streams.Append(ctx, msg.ID, models.StreamEvent{
				Type:  eventType,
				Delta: delta,
			})
		}

		result, err := o.gateway.StreamStep(ctx, gateway.StepRequest{
			Model:    model,
			Messages: conversation,
			Tools:    specs,
		}, onDelta)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
		}
		usage.Add(result.Usage)

		if result.Reasoning != "" {
			msg.Blocks = append(msg.Blocks, models.ContentBlock{
				Type: models.BlockReasoning,
				Text: result.Reasoning,
			})
		}
		if result.Text != "" {
			msg.Blocks = append(msg.Blocks, models.ContentBlock{
				Type: models.BlockText,
				Text: result.Text,
			})
		}

		if len(result.ToolCalls) == 0 {
			if err := o.messages.Update(ctx, msg); err != nil {
				return err
			}
			break
		}

		awaitingUser, err := o.executeCalls(ctx, env, msg, result)
		if err != nil {
			return err
		}
		if err := o.messages.Update(ctx, msg); err != nil {
			return err
		}
		if awaitingUser {
			// The turn pauses here; a later user action patches the result
			// in and a subsequent user message resumes the conversation.
			break
		}

		conversation = append(conversation, stepFeedback(result, msg)...)
	}

	return o.finalize(ctx, campaign, msg, usage)
}

// executeCalls records and runs a step's tool calls in order. Returns true
// when at least one human-in-the-loop call was recorded.
func (o *Orchestrator) executeCalls(ctx context.Context, env *tools.Env, msg *models.Message, result *gateway.StepResult) (bool, error) {
	awaitingUser := false
	for _, call := range result.ToolCalls {
		args := json.RawMessage(call.Args)
		msg.Blocks = append(msg.Blocks, models.ContentBlock{
			Type:   models.BlockToolCall,
			CallID: call.ID,
			Name:   call.Name,
			Args:   args,
		})
		if err := o.streams.Append(ctx, msg.ID, models.StreamEvent{
			Type:   models.EventToolCall,
			CallID: call.ID,
			Name:   call.Name,
			Args:   args,
		}); err != nil {
			return false, err
		}

		if o.registry.IsHITL(call.Name) {
			awaitingUser = true
			continue
		}

		toolResult := o.registry.Dispatch(ctx, env, call)
		msg.Blocks = append(msg.Blocks, models.ContentBlock{
			Type:   models.BlockToolResult,
			CallID: call.ID,
			Name:   call.Name,
			Result: toolResult,
		})
		if err := o.streams.Append(ctx, msg.ID, models.StreamEvent{
			Type:   models.EventToolResult,
			CallID: call.ID,
			Name:   call.Name,
			Result: toolResult,
		}); err != nil {
			return false, err
		}
	}
	return awaitingUser, nil
}

// stepFeedback converts a finished step into conversation messages for the
// next one: the assistant turn with its calls, then one tool message per
// result taken from the message's block list.
func stepFeedback(result *gateway.StepResult, msg *models.Message) []gateway.ChatMessage {
	assistant := gateway.ChatMessage{
		Role:      gateway.RoleAssistant,
		Content:   result.Text,
		ToolCalls: result.ToolCalls,
	}
	out := []gateway.ChatMessage{assistant}
	for _, call := range result.ToolCalls {
		for _, b := range msg.Blocks {
			if b.Type == models.BlockToolResult && b.CallID == call.ID {
				out = append(out, gateway.ChatMessage{
					Role:       gateway.RoleTool,
					Content:    string(b.Result),
					ToolCallID: call.ID,
				})
				break
			}
		}
	}
	return out
}

func (o *Orchestrator) finalize(ctx context.Context, campaign *models.Campaign, msg *models.Message, usage models.TokenUsage) error {
	msg.Usage = &usage
	msg.Status = models.MessageComplete
	if err := o.messages.Update(ctx, msg); err != nil {
		return err
	}

	if err := o.streams.Append(ctx, msg.ID, models.StreamEvent{
		Type:  models.EventUsage,
		Usage: &usage,
	}); err != nil {
		return err
	}
	if err := o.streams.Append(ctx, msg.ID, models.StreamEvent{
		Type:   models.EventStatus,
		Status: models.StreamDone,
	}); err != nil {
		return err
	}
	if err := o.streams.SetStatus(ctx, msg.ID, models.StreamDone); err != nil {
		return err
	}

	if o.memoryDelay > 0 {
		err := o.scheduler.Enqueue(ctx, scheduler.TaskPayload{
			Task:       scheduler.TaskExtractMemories,
			CampaignID: campaign.ID,
			MessageID:  msg.ID,
		}, o.memoryDelay)
		if err != nil {
			o.logger.Error("Failed to schedule memory extraction", zap.Error(err))
		}
	}

	o.logger.Info("Turn complete",
		zap.String("campaignID", campaign.ID.String()),
		zap.String("messageID", msg.ID.String()),
		zap.Int("blocks", len(msg.Blocks)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens))
	return nil
}

// finalizeError serializes a turn failure into the message and resolves the
// stream so attached clients see a terminal state.
func (o *Orchestrator) finalizeError(ctx context.Context, msg *models.Message, cause error) error {
	msg.Blocks = append(msg.Blocks, models.ContentBlock{
		Type: models.BlockText,
		Text: "Generation failed: " + cause.Error(),
	})
	msg.Status = models.MessageError
	if err := o.messages.Update(ctx, msg); err != nil {
		return errors.Join(cause, err)
	}

	if err := o.streams.Append(ctx, msg.ID, models.StreamEvent{
		Type:  models.EventError,
		Error: cause.Error(),
	}); err != nil {
		o.logger.Error("Failed to append error event", zap.Error(err))
	}
	if err := o.streams.Append(ctx, msg.ID, models.StreamEvent{
		Type:   models.EventStatus,
		Status: models.StreamError,
	}); err != nil {
		o.logger.Error("Failed to append terminal status event", zap.Error(err))
	}
	if err := o.streams.SetStatus(ctx, msg.ID, models.StreamError); err != nil {
		o.logger.Error("Failed to set stream status", zap.Error(err))
	}
	return nil
}

// Regenerate deletes the campaign's trailing assistant message and schedules
// a fresh turn in its place.
func (o *Orchestrator) Regenerate(ctx context.Context, campaignID uuid.UUID) (*models.Message, error) {
	latest, err := o.messages.GetLatest(ctx, campaignID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoAssistantTurn
		}
		return nil, err
	}
	if latest.Role != models.RoleAssistant {
		return nil, models.ErrNoAssistantTurn
	}
	if err := o.messages.Delete(ctx, latest.ID); err != nil {
		return nil, err
	}

	replacement := &models.Message{
		CampaignID: campaignID,
		Role:       models.RoleAssistant,
		Status:     models.MessageGenerating,
	}
	if err := o.messages.Create(ctx, replacement); err != nil {
		return nil, err
	}
	err = o.scheduler.Enqueue(ctx, scheduler.TaskPayload{
		Task:       scheduler.TaskRunTurn,
		CampaignID: campaignID,
		MessageID:  replacement.ID,
	}, 0)
	if err != nil {
		return nil, err
	}
	return replacement, nil
}
