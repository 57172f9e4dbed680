package composer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gamemaster-server/internal/gateway"
	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const basePrompt = `You are the game master of a tabletop role-playing campaign. ` +
	`Narrate vividly, play every non-player character, and keep the game state ` +
	`current through the tools provided. Ask the player to roll dice for ` +
	`uncertain outcomes instead of deciding them yourself. Never speak for the player.`

const bootstrapInstruction = `This campaign has no premise yet. Discuss with the ` +
	`player what kind of game they want. Once the premise is agreed, call ` +
	`set_campaign_info with a name, description and image style, then open the ` +
	`first scene.`

// How much raw transcript rides along before summaries take over.
const recentMessageLimit = 40

// How many other-campaign summaries seed a brand new campaign.
const bootstrapSummaryLimit = 20

// How many retrieved memories ride along in the established phase.
const memoryRetrievalLimit = 5

// Embedder mirrors gateway.Embedder; the composer depends on the capability,
// not the gateway package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Composer assembles the model input for one turn from stored state. Any
// sub-fetch that legitimately has no data contributes nothing; composition
// only fails when the storage layer does.
type Composer struct {
	characters repository.CharacterRepository
	messages   repository.MessageRepository
	summaries  repository.SummaryRepository
	memories   repository.MemoryRepository
	systems    repository.GameSystemRepository
	embedder   Embedder
	logger     *zap.Logger
}

// New creates a Composer.
func New(
	characters repository.CharacterRepository,
	messages repository.MessageRepository,
	summaries repository.SummaryRepository,
	memories repository.MemoryRepository,
	systems repository.GameSystemRepository,
	embedder Embedder,
	logger *zap.Logger,
) *Composer {
	return &Composer{
		characters: characters,
		messages:   messages,
		summaries:  summaries,
		memories:   memories,
		systems:    systems,
		embedder:   embedder,
		logger:     logger.Named("Composer"),
	}
}

// Compose builds the message list for the campaign's next generation step.
// exclude is the id of the in-flight assistant message, which must not feed
// back into its own input.
func (c *Composer) Compose(ctx context.Context, campaign *models.Campaign, exclude *models.Message) ([]gateway.ChatMessage, error) {
	if !campaign.Defined() {
		return c.composeBootstrap(ctx, campaign, exclude)
	}
	return c.composeEstablished(ctx, campaign, exclude)
}

func (c *Composer) composeBootstrap(ctx context.Context, campaign *models.Campaign, exclude *models.Message) ([]gateway.ChatMessage, error) {
	out := []gateway.ChatMessage{{Role: gateway.RoleSystem, Content: basePrompt}}

	// Summaries of other campaigns give the model a feel for how past games
	// were run; at most one per campaign.
	summaries, err := c.summaries.ListRecent(ctx, bootstrapSummaryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent summaries: %w", err)
	}
	for _, s := range summaries {
		if s.CampaignID == campaign.ID {
			continue
		}
		out = append(out, gateway.ChatMessage{
			Role:    gateway.RoleSystem,
			Content: "Summary of a previous campaign, for tone reference only:\n" + s.Text,
		})
	}

	history, err := c.recentHistory(ctx, campaign.ID, exclude)
	if err != nil {
		return nil, err
	}
	out = append(out, history...)

	out = append(out, gateway.ChatMessage{Role: gateway.RoleSystem, Content: bootstrapInstruction})
	c.logger.Debug("Composed bootstrap input",
		zap.String("campaignID", campaign.ID.String()), zap.Int("messages", len(out)))
	return out, nil
}

func (c *Composer) composeEstablished(ctx context.Context, campaign *models.Campaign, exclude *models.Message) ([]gateway.ChatMessage, error) {
	system := basePrompt
	system += fmt.Sprintf("\n\nCampaign: %s\n%s", campaign.Name, campaign.Description)

	if campaign.GameSystemID.Valid {
		gs, err := c.systems.GetByID(ctx, campaign.GameSystemID.UUID)
		switch {
		case err == nil:
			if gs.RulesetPrompt != "" {
				system += "\n\nRuleset:\n" + gs.RulesetPrompt
			}
			// Reference files ride along only for providers that take long
			// file content in context; local models get the ruleset alone.
			if providerSupportsFiles(campaign.TextModel) {
				for _, f := range gs.Files {
					system += fmt.Sprintf("\n\nReference document %q:\n%s", f.Name, f.Content)
				}
			}
		case errors.Is(err, models.ErrNotFound):
			c.logger.Warn("Campaign references missing game system",
				zap.String("campaignID", campaign.ID.String()))
		default:
			return nil, fmt.Errorf("failed to load game system: %w", err)
		}
	}

	out := []gateway.ChatMessage{{Role: gateway.RoleSystem, Content: system}}

	summaries, err := c.summaries.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load summaries: %w", err)
	}
	for _, s := range summaries {
		out = append(out, gateway.ChatMessage{
			Role:    gateway.RoleSystem,
			Content: "Summary of earlier sessions:\n" + s.Text,
		})
	}

	history, err := c.recentHistory(ctx, campaign.ID, exclude)
	if err != nil {
		return nil, err
	}

	// Memories relevant to what the player just said, ranked by similarity.
	retrieved, err := c.relevantMemories(ctx, campaign.ID, lastUserText(history))
	if err != nil {
		return nil, err
	}
	if retrieved != "" {
		out = append(out, gateway.ChatMessage{Role: gateway.RoleSystem, Content: retrieved})
	}

	out = append(out, history...)

	state, err := c.stateBlock(ctx, campaign)
	if err != nil {
		return nil, err
	}
	out = append(out, gateway.ChatMessage{Role: gateway.RoleSystem, Content: state})

	c.logger.Debug("Composed established input",
		zap.String("campaignID", campaign.ID.String()), zap.Int("messages", len(out)))
	return out, nil
}

// relevantMemories ranks the campaign's memories against the player's latest
// message and renders the best matches. Retrieval is best-effort: a failed
// query embedding skips it rather than failing the turn, but a storage error
// still surfaces.
func (c *Composer) relevantMemories(ctx context.Context, campaignID uuid.UUID, query string) (string, error) {
	if query == "" {
		return "", nil
	}
	all, err := c.memories.ListByCampaign(ctx, campaignID)
	if err != nil {
		return "", fmt.Errorf("failed to load memories: %w", err)
	}
	if len(all) == 0 {
		return "", nil
	}

	queryVec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		c.logger.Warn("Memory retrieval skipped, query embedding failed",
			zap.String("campaignID", campaignID.String()), zap.Error(err))
		return "", nil
	}

	type scoredMemory struct {
		memory *models.Memory
		score  float64
	}
	ranked := make([]scoredMemory, 0, len(all))
	for _, m := range all {
		if len(m.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, scoredMemory{m, models.CosineSimilarity(queryVec, m.Embedding)})
	}
	if len(ranked) == 0 {
		return "", nil
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > memoryRetrievalLimit {
		ranked = ranked[:memoryRetrievalLimit]
	}

	var b strings.Builder
	b.WriteString("Relevant memories from past sessions:\n")
	for _, r := range ranked {
		b.WriteString("- " + r.memory.Summary)
		if r.memory.Context != "" {
			b.WriteString(" (" + r.memory.Context + ")")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// lastUserText returns the content of the most recent user message, the
// retrieval query for this turn.
func lastUserText(history []gateway.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == gateway.RoleUser && history[i].Content != "" {
			return history[i].Content
		}
	}
	return ""
}

// providerSupportsFiles reports whether the model's provider accepts bulky
// reference file content in the prompt.
func providerSupportsFiles(model string) bool {
	return !strings.HasPrefix(model, "ollama/")
}

// recentHistory converts the transcript tail into provider messages,
// filtering tool blocks to valid call/result pairs.
func (c *Composer) recentHistory(ctx context.Context, campaignID uuid.UUID, exclude *models.Message) ([]gateway.ChatMessage, error) {
	all, err := c.messages.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	// Summarized messages are already covered by summary blocks.
	recent := make([]*models.Message, 0, len(all))
	for _, m := range all {
		if m.SummaryID.Valid {
			continue
		}
		if exclude != nil && m.ID == exclude.ID {
			continue
		}
		recent = append(recent, m)
	}
	if len(recent) > recentMessageLimit {
		recent = recent[len(recent)-recentMessageLimit:]
	}

	var out []gateway.ChatMessage
	for _, m := range recent {
		out = append(out, convertMessage(m)...)
	}
	return out, nil
}

// convertMessage flattens one stored message into provider messages. An
// assistant message with tool activity becomes the assistant turn carrying
// only paired calls, followed by one tool message per result; orphaned calls
// (unresolved HITL) are dropped so providers never see a call with no result.
func convertMessage(m *models.Message) []gateway.ChatMessage {
	if m.Role != models.RoleAssistant {
		return []gateway.ChatMessage{{Role: string(m.Role), Content: m.Text()}}
	}

	assistant := gateway.ChatMessage{Role: gateway.RoleAssistant, Content: m.Text()}
	var results []gateway.ChatMessage
	for _, b := range m.Blocks {
		if b.Type != models.BlockToolCall || !models.HasResult(m.Blocks, b.CallID) {
			continue
		}
		assistant.ToolCalls = append(assistant.ToolCalls, gateway.ToolCall{
			ID:   b.CallID,
			Name: b.Name,
			Args: string(b.Args),
		})
	}
	for _, b := range m.Blocks {
		if b.Type != models.BlockToolResult {
			continue
		}
		results = append(results, gateway.ChatMessage{
			Role:       gateway.RoleTool,
			Content:    string(b.Result),
			ToolCallID: b.CallID,
		})
	}

	if assistant.Content == "" && len(assistant.ToolCalls) == 0 {
		return results
	}
	return append([]gateway.ChatMessage{assistant}, results...)
}

// stateBlock renders the current campaign state the model must treat as
// ground truth.
func (c *Composer) stateBlock(ctx context.Context, campaign *models.Campaign) (string, error) {
	var b strings.Builder
	b.WriteString("Current game state:\n")

	if campaign.Plan != "" {
		b.WriteString("\nYour plan:\n" + campaign.Plan + "\n")
	} else {
		b.WriteString("\nYou have no plan yet. Consider calling update_plan.\n")
	}

	if len(campaign.Quests) > 0 {
		b.WriteString("\nQuest log:\n")
		for _, q := range campaign.Quests {
			b.WriteString(fmt.Sprintf("- [%s] %s: %s\n", q.Status, q.Title, q.Objective))
		}
	}
	if len(campaign.Clocks) > 0 {
		b.WriteString("\nClocks:\n")
		for _, cl := range campaign.Clocks {
			line := fmt.Sprintf("- %s: %d/%d", cl.Name, cl.CurrentTicks, cl.MaxTicks)
			if cl.Hint != "" {
				line += " (" + cl.Hint + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	if campaign.WorldDate != "" || campaign.TimeOfDay != "" {
		b.WriteString(fmt.Sprintf("\nIn-world time: %s, %s\n", campaign.WorldDate, campaign.TimeOfDay))
	}

	characters, err := c.characters.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load characters: %w", err)
	}
	known := make(map[string]bool, len(characters))
	if len(characters) > 0 {
		b.WriteString("\nKnown characters:\n")
		for _, ch := range characters {
			known[ch.Name] = true
			b.WriteString(fmt.Sprintf("- %s: %s\n", ch.Name, ch.Description))
		}
	}
	for _, ch := range characters {
		if !ch.Active {
			continue
		}
		b.WriteString(fmt.Sprintf("\nActive character sheet, %s:\n", ch.Name))
		if ch.Notes != "" {
			b.WriteString("Notes: " + ch.Notes + "\n")
		}
		if ch.CurrentOutfit != "" {
			b.WriteString("Wearing: " + ch.CurrentOutfit + "\n")
		}
	}

	var missing []string
	for _, name := range campaign.ActiveCharacters {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		b.WriteString("\nThese active characters have no sheet yet, introduce them with introduce_character: " +
			strings.Join(missing, ", ") + "\n")
	}

	return b.String(), nil
}
