package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestStatus is the lifecycle state of a quest log entry.
type QuestStatus string

const (
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestFailed    QuestStatus = "failed"
)

// Quest is one entry in a campaign's quest log. Titles are unique within a
// campaign; conflicting writes update the existing entry (last write wins).
type Quest struct {
	Title     string      `json:"title"`
	Status    QuestStatus `json:"status"`
	Objective string      `json:"objective"`
}

// Clock is a progress clock. Names are unique within a campaign.
type Clock struct {
	Name         string `json:"name"`
	CurrentTicks int    `json:"currentTicks"`
	MaxTicks     int    `json:"maxTicks"`
	Hint         string `json:"hint,omitempty"`
}

// Campaign is the root aggregate of one game. Campaigns are never deleted,
// only archived.
type Campaign struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	Description  string        `json:"description" db:"description"`
	ImageStyle   string        `json:"imageStyle" db:"image_style"`
	TextModel    string        `json:"textModel" db:"text_model"`
	ImageModel   string        `json:"imageModel" db:"image_model"`
	GameSystemID uuid.NullUUID `json:"gameSystemId,omitempty" db:"game_system_id"`

	// Plan is the GM's free-text scratchpad.
	Plan   string  `json:"plan" db:"plan"`
	Quests []Quest `json:"quests" db:"quests"`
	Clocks []Clock `json:"clocks" db:"clocks"`

	WorldDate string `json:"worldDate" db:"world_date"`
	TimeOfDay string `json:"timeOfDay" db:"time_of_day"`

	// ActiveCharacters lists character names currently in the scene. Names
	// may not yet have a matching character record; the composer surfaces
	// those so the model introduces them.
	ActiveCharacters []string `json:"activeCharacters" db:"active_characters"`

	// ToolFlags disables tools per campaign; absent names are enabled.
	ToolFlags map[string]bool `json:"toolFlags" db:"tool_flags"`

	Archived  bool      `json:"archived" db:"archived"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Defined reports whether the campaign has left the bootstrap phase,
// i.e. the model has set its name via set_campaign_info.
func (c *Campaign) Defined() bool {
	return c.Name != ""
}

// ToolEnabled reports whether the named tool is enabled for this campaign.
func (c *Campaign) ToolEnabled(name string) bool {
	if c.ToolFlags == nil {
		return true
	}
	enabled, ok := c.ToolFlags[name]
	if !ok {
		return true
	}
	return enabled
}

// UpsertQuest adds a quest or, when a quest with the same title already
// exists, updates it in place. Returns true if a new entry was created.
func (c *Campaign) UpsertQuest(q Quest) bool {
	for i := range c.Quests {
		if c.Quests[i].Title == q.Title {
			c.Quests[i] = q
			return false
		}
	}
	c.Quests = append(c.Quests, q)
	return true
}

// UpsertClock adds a clock or updates the existing one with the same name.
// Returns true if a new clock was created.
func (c *Campaign) UpsertClock(cl Clock) bool {
	for i := range c.Clocks {
		if c.Clocks[i].Name == cl.Name {
			c.Clocks[i] = cl
			return false
		}
	}
	c.Clocks = append(c.Clocks, cl)
	return true
}

// AddActiveCharacter appends a name to the active list if not present.
func (c *Campaign) AddActiveCharacter(name string) {
	for _, n := range c.ActiveCharacters {
		if n == name {
			return
		}
	}
	c.ActiveCharacters = append(c.ActiveCharacters, name)
}
