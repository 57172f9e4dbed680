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
	"gamemaster-server/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const summarizePrompt = `You summarize tabletop-RPG session transcripts. ` +
	`Write a compact prose summary of the events below: what happened, what ` +
	`the characters did, what changed in the world. Keep names exact. The ` +
	`summary replaces this part of the transcript in the game master's memory.`

// Raw messages kept out of every summarization batch so the model always has
// verbatim recent context.
const keepRecent = 10

// Fewer candidates than this are not worth collapsing.
const minBatch = 10

// Summarizer collapses old transcript history into summaries, reporting
// per-step progress through a JobProgress record.
type Summarizer struct {
	campaigns  repository.CampaignRepository
	characters repository.CharacterRepository
	messages   repository.MessageRepository
	summaries  repository.SummaryRepository
	jobs       repository.JobProgressRepository
	chat       gateway.ChatStreamer
	model      string
	logger     *zap.Logger
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(
	campaigns repository.CampaignRepository,
	characters repository.CharacterRepository,
	messages repository.MessageRepository,
	summaries repository.SummaryRepository,
	jobs repository.JobProgressRepository,
	chat gateway.ChatStreamer,
	model string,
	logger *zap.Logger,
) *Summarizer {
	return &Summarizer{
		campaigns:  campaigns,
		characters: characters,
		messages:   messages,
		summaries:  summaries,
		jobs:       jobs,
		chat:       chat,
		model:      model,
		logger:     logger.Named("Summarizer"),
	}
}

// Handle processes a summarize_history task.
func (w *Summarizer) Handle(ctx context.Context, payload scheduler.TaskPayload) error {
	job, err := w.jobs.GetByID(ctx, payload.JobID)
	if err != nil {
		if isNotFound(err) {
			w.logger.Info("Job gone, skipping summarization",
				zap.String("jobID", payload.JobID.String()))
			return nil
		}
		return err
	}
	if job.Status == models.StepCompleted {
		// Redelivery of a finished job.
		return nil
	}

	job.Status = models.StepRunning
	if err := w.setStep(ctx, job, service.StepCollectMessages, models.StepRunning, nil); err != nil {
		return err
	}

	campaign, err := w.campaigns.GetByID(ctx, payload.CampaignID)
	if err != nil {
		return w.fail(ctx, job, service.StepCollectMessages, err)
	}
	candidates, err := w.collect(ctx, campaign.ID)
	if err != nil {
		return w.fail(ctx, job, service.StepCollectMessages, err)
	}
	if len(candidates) < minBatch {
		result, _ := json.Marshal(map[string]any{"collapsed": 0, "reason": "not enough history"})
		job.Status = models.StepCompleted
		_ = w.setStep(ctx, job, service.StepCollectMessages, models.StepCompleted, result)
		w.logger.Info("Nothing to summarize",
			zap.String("campaignID", campaign.ID.String()),
			zap.Int("candidates", len(candidates)))
		return nil
	}
	collected, _ := json.Marshal(map[string]any{"messages": len(candidates)})
	if err := w.setStep(ctx, job, service.StepCollectMessages, models.StepCompleted, collected); err != nil {
		return err
	}

	if err := w.setStep(ctx, job, service.StepGenerateSummary, models.StepRunning, nil); err != nil {
		return err
	}
	summary, err := w.generate(ctx, campaign, candidates)
	if err != nil {
		return w.fail(ctx, job, service.StepGenerateSummary, err)
	}
	generated, _ := json.Marshal(map[string]any{"summaryId": summary.ID})
	if err := w.setStep(ctx, job, service.StepGenerateSummary, models.StepCompleted, generated); err != nil {
		return err
	}

	if err := w.setStep(ctx, job, service.StepLinkMessages, models.StepRunning, nil); err != nil {
		return err
	}
	linked := 0
	for _, m := range candidates {
		m.SummaryID = uuid.NullUUID{UUID: summary.ID, Valid: true}
		if err := w.messages.Update(ctx, m); err != nil {
			return w.fail(ctx, job, service.StepLinkMessages, err)
		}
		linked++
	}
	job.Status = models.StepCompleted
	linkedResult, _ := json.Marshal(map[string]any{"linked": linked})
	if err := w.setStep(ctx, job, service.StepLinkMessages, models.StepCompleted, linkedResult); err != nil {
		return err
	}

	w.logger.Info("History summarized",
		zap.String("campaignID", campaign.ID.String()),
		zap.String("summaryID", summary.ID.String()),
		zap.Int("collapsed", linked))
	return nil
}

// collect returns the complete, not-yet-summarized messages eligible for
// collapsing, always sparing the most recent tail.
func (w *Summarizer) collect(ctx context.Context, campaignID uuid.UUID) ([]*models.Message, error) {
	all, err := w.messages.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(all) <= keepRecent {
		return nil, nil
	}

	var out []*models.Message
	for _, m := range all[:len(all)-keepRecent] {
		if m.SummaryID.Valid || m.Status != models.MessageComplete {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (w *Summarizer) generate(ctx context.Context, campaign *models.Campaign, batch []*models.Message) (*models.Summary, error) {
	var b strings.Builder
	for _, m := range batch {
		if text := m.Text(); text != "" {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, text)
		}
	}

	result, err := w.chat.StreamStep(ctx, gateway.StepRequest{
		Model: w.model,
		Messages: []gateway.ChatMessage{
			{Role: gateway.RoleSystem, Content: summarizePrompt},
			{Role: gateway.RoleUser, Content: b.String()},
		},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("summary generation failed: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, fmt.Errorf("%w: empty summary", models.ErrGenerationFailed)
	}

	characters, err := w.characters.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	var characterIDs []uuid.UUID
	for _, ch := range characters {
		if strings.Contains(result.Text, ch.Name) {
			characterIDs = append(characterIDs, ch.ID)
		}
	}

	summary := &models.Summary{
		CampaignID:   campaign.ID,
		Text:         strings.TrimSpace(result.Text),
		CharacterIDs: characterIDs,
	}
	if err := w.summaries.Create(ctx, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (w *Summarizer) setStep(ctx context.Context, job *models.JobProgress, name string, status models.JobStepStatus, result json.RawMessage) error {
	job.SetStep(name, status, result)
	return w.jobs.Update(ctx, job)
}

// fail records the failed step and job state, then surfaces the cause so the
// delivery dead-letters.
func (w *Summarizer) fail(ctx context.Context, job *models.JobProgress, step string, cause error) error {
	result, _ := json.Marshal(map[string]string{"error": cause.Error()})
	job.Status = models.StepFailed
	if err := w.setStep(ctx, job, step, models.StepFailed, result); err != nil {
		w.logger.Error("Failed to record job failure", zap.Error(err))
	}
	return cause
}
