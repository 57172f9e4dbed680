package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gamemaster-server/internal/gateway"
	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"

	"go.uber.org/zap"
)

const extractionPrompt = `You distill tabletop-RPG session transcripts into ` +
	`long-term memories. From the transcript below, extract the facts worth ` +
	`remembering across sessions: character traits revealed, promises made, ` +
	`items gained or lost, relationships changed, world facts established. ` +
	`Respond with a JSON array only, each element ` +
	`{"category": "...", "summary": "...", "context": "...", "tags": ["..."]}. ` +
	`Return [] if nothing is worth remembering.`

// How many trailing messages feed one extraction pass.
const extractionWindow = 6

// MemoryExtractor turns a finished assistant turn into embedded long-term
// memories. Runs from the task queue, delayed so rapid exchanges batch up.
type MemoryExtractor struct {
	campaigns repository.CampaignRepository
	messages  repository.MessageRepository
	memories  repository.MemoryRepository
	chat      gateway.ChatStreamer
	embedder  gateway.Embedder
	model     string
	logger    *zap.Logger
}

// NewMemoryExtractor creates a MemoryExtractor.
func NewMemoryExtractor(
	campaigns repository.CampaignRepository,
	messages repository.MessageRepository,
	memories repository.MemoryRepository,
	chat gateway.ChatStreamer,
	embedder gateway.Embedder,
	model string,
	logger *zap.Logger,
) *MemoryExtractor {
	return &MemoryExtractor{
		campaigns: campaigns,
		messages:  messages,
		memories:  memories,
		chat:      chat,
		embedder:  embedder,
		model:     model,
		logger:    logger.Named("MemoryExtractor"),
	}
}

// Handle processes an extract_memories task. Extraction is best-effort: a
// turn whose message has since been deleted or regenerated is a no-op.
func (w *MemoryExtractor) Handle(ctx context.Context, payload scheduler.TaskPayload) error {
	msg, err := w.messages.GetByID(ctx, payload.MessageID)
	if err != nil {
		if isNotFound(err) {
			w.logger.Info("Message gone, skipping extraction",
				zap.String("messageID", payload.MessageID.String()))
			return nil
		}
		return err
	}
	if msg.Status != models.MessageComplete {
		w.logger.Info("Message not complete, skipping extraction",
			zap.String("messageID", msg.ID.String()), zap.String("status", string(msg.Status)))
		return nil
	}
	campaign, err := w.campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return err
	}

	transcript, err := w.transcriptWindow(ctx, campaign, msg)
	if err != nil {
		return err
	}
	if transcript == "" {
		return nil
	}

	result, err := w.chat.StreamStep(ctx, gateway.StepRequest{
		Model: w.model,
		Messages: []gateway.ChatMessage{
			{Role: gateway.RoleSystem, Content: extractionPrompt},
			{Role: gateway.RoleUser, Content: transcript},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("extraction generation failed: %w", err)
	}

	extracted, err := parseExtractedMemories(result.Text)
	if err != nil {
		// Malformed model output is not retryable; log and drop.
		w.logger.Warn("Unparseable extraction output",
			zap.String("messageID", msg.ID.String()), zap.Error(err))
		return nil
	}

	stored := 0
	for _, e := range extracted {
		if e.Summary == "" {
			continue
		}
		embedding, err := w.embedder.Embed(ctx, e.Summary)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		memory := &models.Memory{
			CampaignID: campaign.ID,
			Category:   e.Category,
			Summary:    e.Summary,
			Context:    e.Context,
			Tags:       e.Tags,
			Embedding:  embedding,
		}
		if err := w.memories.Create(ctx, memory); err != nil {
			return err
		}
		stored++
	}

	w.logger.Info("Memories extracted",
		zap.String("campaignID", campaign.ID.String()),
		zap.String("messageID", msg.ID.String()),
		zap.Int("stored", stored))
	return nil
}

// transcriptWindow renders the turn and its immediate context as plain text.
func (w *MemoryExtractor) transcriptWindow(ctx context.Context, campaign *models.Campaign, turn *models.Message) (string, error) {
	all, err := w.messages.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return "", err
	}

	end := len(all)
	for i, m := range all {
		if m.ID == turn.ID {
			end = i + 1
			break
		}
	}
	start := end - extractionWindow
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, m := range all[start:end] {
		text := m.Text()
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, text)
	}
	return b.String(), nil
}

type extractedMemory struct {
	Category string   `json:"category"`
	Summary  string   `json:"summary"`
	Context  string   `json:"context"`
	Tags     []string `json:"tags"`
}

// parseExtractedMemories decodes the model's JSON array, tolerating markdown
// code fences around it.
func parseExtractedMemories(raw string) ([]extractedMemory, error) {
	raw = strings.TrimSpace(raw)
	if after, found := strings.CutPrefix(raw, "```json"); found {
		raw = after
	} else if after, found := strings.CutPrefix(raw, "```"); found {
		raw = after
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	raw = strings.TrimSpace(raw)

	var out []extractedMemory
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
