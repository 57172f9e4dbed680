package models

import (
	"time"

	"github.com/google/uuid"
)

// Outfit is one named outfit variant of a character.
type Outfit struct {
	Description string `json:"description"`
	ImageRef    string `json:"imageRef,omitempty"`
}

// Character is a campaign NPC or player character. Names are unique within a
// campaign by convention (the model is instructed not to duplicate them);
// collisions resolve last-write-wins.
type Character struct {
	ID          uuid.UUID `json:"id" db:"id"`
	CampaignID  uuid.UUID `json:"campaignId" db:"campaign_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	ImagePrompt string    `json:"imagePrompt" db:"image_prompt"`
	PortraitRef string    `json:"portraitRef,omitempty" db:"portrait_ref"`
	Active      bool      `json:"active" db:"active"`
	Notes       string    `json:"notes" db:"notes"`

	// Outfits maps outfit name to its variant. CurrentOutfit, when set,
	// must name a key of Outfits.
	Outfits       map[string]Outfit `json:"outfits" db:"outfits"`
	CurrentOutfit string            `json:"currentOutfit,omitempty" db:"current_outfit"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// HasOutfit reports whether the named outfit exists.
func (c *Character) HasOutfit(name string) bool {
	_, ok := c.Outfits[name]
	return ok
}
