package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Regenerator replaces a campaign's trailing assistant turn with a fresh one.
// Implemented by the orchestrator.
type Regenerator interface {
	Regenerate(ctx context.Context, campaignID uuid.UUID) (*models.Message, error)
}

// DiceRollResult is the user-supplied outcome of a request_dice_roll call.
type DiceRollResult struct {
	Rolls []int `json:"rolls"`
	Total int   `json:"total"`
}

// ReplaceReport counts applied replacements per storage scope. The three
// scopes are patched independently; a failure mid-way leaves earlier scopes
// applied, which the caller sees in the counts.
type ReplaceReport struct {
	Messages   int `json:"messages"`
	Campaign   int `json:"campaign"`
	Characters int `json:"characters"`
}

// Total sums replacements across scopes.
func (r ReplaceReport) Total() int {
	return r.Messages + r.Campaign + r.Characters
}

// ChatService owns the transcript surface: posting player messages, resolving
// human-in-the-loop tool calls, regeneration, corrective edits and narration.
type ChatService interface {
	// PostMessage stores the player's message, creates the empty assistant
	// message and schedules the turn. Returns the assistant message whose
	// stream the client should attach to.
	PostMessage(ctx context.Context, campaignID uuid.UUID, text string) (*models.Message, error)
	ListMessages(ctx context.Context, campaignID uuid.UUID) ([]*models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	Regenerate(ctx context.Context, campaignID uuid.UUID) (*models.Message, error)

	// PerformDiceRoll and PerformChooseName patch a user-supplied result
	// into a pending tool call. callIndex addresses the call's position in
	// Message.Blocks, exactly as Message.PendingCalls enumerates them; it is
	// not an ordinal among the message's tool calls.
	PerformDiceRoll(ctx context.Context, messageID uuid.UUID, callIndex int, result DiceRollResult) (*models.Message, error)
	PerformChooseName(ctx context.Context, messageID uuid.UUID, callIndex int, name string) (*models.Message, error)

	FindAndReplace(ctx context.Context, campaignID uuid.UUID, find, replace string) (*ReplaceReport, error)
	Narrate(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
}

type chatService struct {
	campaigns   repository.CampaignRepository
	characters  repository.CharacterRepository
	messages    repository.MessageRepository
	media       repository.MediaStore
	speech      SpeechSynthesizer
	scheduler   scheduler.Scheduler
	regenerator Regenerator
	logger      *zap.Logger
}

// SpeechSynthesizer mirrors gateway.SpeechSynthesizer; declared locally so
// the service depends on the capability, not the gateway package.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// NewChatService creates a ChatService.
func NewChatService(
	campaigns repository.CampaignRepository,
	characters repository.CharacterRepository,
	messages repository.MessageRepository,
	media repository.MediaStore,
	speech SpeechSynthesizer,
	sched scheduler.Scheduler,
	regenerator Regenerator,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		campaigns:   campaigns,
		characters:  characters,
		messages:    messages,
		media:       media,
		speech:      speech,
		scheduler:   sched,
		regenerator: regenerator,
		logger:      logger.Named("ChatService"),
	}
}

func (s *chatService) PostMessage(ctx context.Context, campaignID uuid.UUID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", models.ErrBadRequest)
	}
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Archived {
		return nil, models.ErrCampaignArchived
	}

	latest, err := s.messages.GetLatest(ctx, campaignID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if latest != nil && latest.Status == models.MessageGenerating {
		return nil, models.ErrTurnInFlight
	}

	userMsg := &models.Message{
		CampaignID: campaignID,
		Role:       models.RoleUser,
		Status:     models.MessageComplete,
		Blocks:     []models.ContentBlock{{Type: models.BlockText, Text: text}},
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	assistant := &models.Message{
		CampaignID: campaignID,
		Role:       models.RoleAssistant,
		Status:     models.MessageGenerating,
	}
	if err := s.messages.Create(ctx, assistant); err != nil {
		return nil, fmt.Errorf("failed to create assistant message: %w", err)
	}

	err = s.scheduler.Enqueue(ctx, scheduler.TaskPayload{
		Task:       scheduler.TaskRunTurn,
		CampaignID: campaignID,
		MessageID:  assistant.ID,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule turn: %w", err)
	}

	s.logger.Info("Turn scheduled",
		zap.String("campaignID", campaignID.String()),
		zap.String("messageID", assistant.ID.String()))
	return assistant, nil
}

func (s *chatService) ListMessages(ctx context.Context, campaignID uuid.UUID) ([]*models.Message, error) {
	return s.messages.ListByCampaign(ctx, campaignID)
}

func (s *chatService) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return s.messages.GetByID(ctx, id)
}

func (s *chatService) Regenerate(ctx context.Context, campaignID uuid.UUID) (*models.Message, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Archived {
		return nil, models.ErrCampaignArchived
	}
	return s.regenerator.Regenerate(ctx, campaignID)
}

func (s *chatService) PerformDiceRoll(ctx context.Context, messageID uuid.UUID, callIndex int, result DiceRollResult) (*models.Message, error) {
	payload, err := json.Marshal(map[string]any{"rolls": result.Rolls, "total": result.Total})
	if err != nil {
		return nil, err
	}
	return s.resolveCall(ctx, messageID, callIndex, "request_dice_roll", payload)
}

func (s *chatService) PerformChooseName(ctx context.Context, messageID uuid.UUID, callIndex int, name string) (*models.Message, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: a name is required", models.ErrBadRequest)
	}
	payload, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	return s.resolveCall(ctx, messageID, callIndex, "choose_name", payload)
}

// resolveCall patches a user-supplied result into a pending tool call.
// callIndex is a position in msg.Blocks (the indexes PendingCalls hands
// out). The result block is inserted directly after its call so earlier
// block indexes stay stable for clients holding them.
func (s *chatService) resolveCall(ctx context.Context, messageID uuid.UUID, callIndex int, toolName string, result json.RawMessage) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if callIndex < 0 || callIndex >= len(msg.Blocks) {
		return nil, fmt.Errorf("%w: block index %d out of range", models.ErrCallNotPending, callIndex)
	}
	call := msg.Blocks[callIndex]
	if call.Type != models.BlockToolCall || call.Name != toolName {
		return nil, fmt.Errorf("%w: block %d is not a pending %s call", models.ErrCallNotPending, callIndex, toolName)
	}
	if models.HasResult(msg.Blocks, call.CallID) {
		return nil, fmt.Errorf("%w: call %s already resolved", models.ErrCallNotPending, call.CallID)
	}

	resultBlock := models.ContentBlock{
		Type:   models.BlockToolResult,
		CallID: call.CallID,
		Name:   call.Name,
		Result: result,
	}
	blocks := make([]models.ContentBlock, 0, len(msg.Blocks)+1)
	blocks = append(blocks, msg.Blocks[:callIndex+1]...)
	blocks = append(blocks, resultBlock)
	blocks = append(blocks, msg.Blocks[callIndex+1:]...)
	msg.Blocks = blocks

	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to patch tool result: %w", err)
	}
	s.logger.Info("Resolved pending tool call",
		zap.String("messageID", messageID.String()),
		zap.String("tool", toolName),
		zap.String("callID", call.CallID))
	return msg, nil
}

// FindAndReplace rewrites a string across the campaign's transcript, campaign
// fields and character sheets. The scopes are independent single-row updates,
// not a transaction; the report states what was actually applied.
func (s *chatService) FindAndReplace(ctx context.Context, campaignID uuid.UUID, find, replace string) (*ReplaceReport, error) {
	if find == "" {
		return nil, fmt.Errorf("%w: search string is required", models.ErrBadRequest)
	}
	report := &ReplaceReport{}

	msgs, err := s.messages.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		count := 0
		for i := range msg.Blocks {
			if msg.Blocks[i].Type != models.BlockText {
				continue
			}
			if n := strings.Count(msg.Blocks[i].Text, find); n > 0 {
				msg.Blocks[i].Text = strings.ReplaceAll(msg.Blocks[i].Text, find, replace)
				count += n
			}
		}
		if count == 0 {
			continue
		}
		if err := s.messages.Update(ctx, msg); err != nil {
			return report, fmt.Errorf("replace stopped at message %s: %w", msg.ID, err)
		}
		report.Messages += count
	}

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return report, err
	}
	campaignCount := replaceField(&campaign.Description, find, replace) +
		replaceField(&campaign.Plan, find, replace)
	for i := range campaign.Quests {
		campaignCount += replaceField(&campaign.Quests[i].Objective, find, replace)
	}
	if campaignCount > 0 {
		if err := s.campaigns.Update(ctx, campaign); err != nil {
			return report, fmt.Errorf("replace stopped at campaign: %w", err)
		}
		report.Campaign = campaignCount
	}

	characters, err := s.characters.ListByCampaign(ctx, campaignID)
	if err != nil {
		return report, err
	}
	for _, ch := range characters {
		count := replaceField(&ch.Description, find, replace) +
			replaceField(&ch.Notes, find, replace)
		if count == 0 {
			continue
		}
		if err := s.characters.Update(ctx, ch); err != nil {
			return report, fmt.Errorf("replace stopped at character %s: %w", ch.Name, err)
		}
		report.Characters += count
	}

	s.logger.Info("Find and replace applied",
		zap.String("campaignID", campaignID.String()),
		zap.Int("total", report.Total()))
	return report, nil
}

func replaceField(field *string, find, replace string) int {
	n := strings.Count(*field, find)
	if n > 0 {
		*field = strings.ReplaceAll(*field, find, replace)
	}
	return n
}

// Narrate synthesizes spoken audio for an assistant message, one segment per
// paragraph. Already-narrated messages return their stored segments.
func (s *chatService) Narrate(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Role != models.RoleAssistant || msg.Status != models.MessageComplete {
		return nil, fmt.Errorf("%w: only completed assistant messages can be narrated", models.ErrBadRequest)
	}
	if len(msg.Audio) > 0 {
		return msg, nil
	}

	segments := narrationSegments(msg.Text())
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: message has no narratable text", models.ErrBadRequest)
	}

	for i, segment := range segments {
		audio, err := s.speech.Synthesize(ctx, segment)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
		}
		ref, err := s.media.Save(ctx, audio, "audio/mpeg")
		if err != nil {
			return nil, fmt.Errorf("failed to store narration audio: %w", err)
		}
		msg.Audio = append(msg.Audio, models.AudioSegment{Index: i, Ref: ref})
	}

	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, err
	}
	s.logger.Info("Message narrated",
		zap.String("messageID", messageID.String()),
		zap.Int("segments", len(msg.Audio)))
	return msg, nil
}

func narrationSegments(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
