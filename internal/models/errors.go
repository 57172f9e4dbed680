package models

import "errors"

// Sentinel errors shared across services, repositories and handlers.
var (
	ErrNotFound       = errors.New("not found")
	ErrBadRequest     = errors.New("bad request")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrCampaignArchived  = errors.New("campaign is archived")
	ErrCharacterNotFound = errors.New("character not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrOutfitNotFound    = errors.New("outfit not found")
	ErrToolDisabled      = errors.New("tool is disabled for this campaign")
	ErrNoAssistantTurn   = errors.New("no assistant message to regenerate")
	ErrTurnInFlight      = errors.New("a turn is already generating for this campaign")
	ErrCallNotPending    = errors.New("tool call is not awaiting a user result")
	ErrGenerationFailed  = errors.New("model generation failed")
)
