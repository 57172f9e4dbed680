package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"gamemaster-server/internal/gateway"
	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/scheduler"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

// Env carries the collaborators and turn identity an executor may touch.
// The orchestrator is the single writer of Campaign and Message during a
// turn; executors mutate them through this struct and persist via the
// repositories.
type Env struct {
	Campaigns  repository.CampaignRepository
	Characters repository.CharacterRepository
	Scheduler  scheduler.Scheduler
	Logger     *zap.Logger

	Campaign *models.Campaign
	Message  *models.Message
}

// ExecuteFunc applies one tool's state mutation and returns the result
// payload fed back to the model.
type ExecuteFunc func(ctx context.Context, env *Env, args json.RawMessage) (map[string]any, error)

// Tool is one named, schema-validated operation the model may invoke.
// A nil Execute marks a human-in-the-loop tool: the call is recorded and a
// later user action supplies the result out-of-band.
type Tool struct {
	Name        string
	Description string
	Schema      jsonschema.Definition
	Execute     ExecuteFunc
}

// Registry holds the tool surface in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds the full game-master tool set.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range campaignTools() {
		r.register(t)
	}
	for _, t := range characterTools() {
		r.register(t)
	}
	for _, t := range hitlTools() {
		r.register(t)
	}
	return r
}

func (r *Registry) register(t Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// IsHITL reports whether the named tool awaits a human-supplied result.
func (r *Registry) IsHITL(name string) bool {
	t, ok := r.tools[name]
	return ok && t.Execute == nil
}

// Specs returns the tool schemas advertised to the model, filtered by the
// campaign's per-tool enable flags.
func (r *Registry) Specs(c *models.Campaign) []gateway.ToolSpec {
	specs := make([]gateway.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		if !c.ToolEnabled(name) {
			continue
		}
		t := r.tools[name]
		specs = append(specs, gateway.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}
	return specs
}

// Dispatch runs an auto-executing tool call and always returns a result
// payload: unknown tools, disabled tools and executor failures all become
// `{"error": ...}` results rather than turn-aborting errors.
func (r *Registry) Dispatch(ctx context.Context, env *Env, call gateway.ToolCall) json.RawMessage {
	t, ok := r.tools[call.Name]
	if !ok {
		env.Logger.Warn("Model called unknown tool", zap.String("tool", call.Name))
		return errorResult(fmt.Sprintf("unknown tool: %s", call.Name))
	}
	if !env.Campaign.ToolEnabled(call.Name) {
		return errorResult(fmt.Sprintf("tool %s is disabled for this campaign", call.Name))
	}
	if t.Execute == nil {
		return errorResult(fmt.Sprintf("tool %s requires a user action", call.Name))
	}

	result, err := t.Execute(ctx, env, json.RawMessage(call.Args))
	if err != nil {
		env.Logger.Warn("Tool execution failed",
			zap.String("tool", call.Name),
			zap.String("campaignID", env.Campaign.ID.String()),
			zap.Error(err))
		return errorResult(err.Error())
	}

	raw, err := json.Marshal(result)
	if err != nil {
		env.Logger.Error("Failed to encode tool result", zap.String("tool", call.Name), zap.Error(err))
		return errorResult("internal: failed to encode tool result")
	}
	return raw
}

func errorResult(msg string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"error": msg})
	return raw
}

// hitlTools declares the human-in-the-loop surface: recorded but never
// auto-executed.
func hitlTools() []Tool {
	return []Tool{
		{
			Name:        "request_dice_roll",
			Description: "Ask the player to roll dice. The turn pauses on this call until the player rolls; do not invent the outcome.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"formula": {Type: jsonschema.String, Description: "Dice formula, e.g. 2d6+1."},
					"reason":  {Type: jsonschema.String, Description: "What the roll decides."},
				},
				Required: []string{"formula"},
			},
		},
		{
			Name:        "choose_name",
			Description: "Ask the player to pick a name from the offered options. Do not pick for them.",
			Schema: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"options": {
						Type:        jsonschema.Array,
						Description: "Name candidates to offer.",
						Items:       &jsonschema.Definition{Type: jsonschema.String},
					},
					"reason": {Type: jsonschema.String, Description: "Who or what is being named."},
				},
				Required: []string{"options"},
			},
		},
	}
}
