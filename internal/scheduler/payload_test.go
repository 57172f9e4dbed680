package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPayload_RoundTrip(t *testing.T) {
	original := TaskPayload{
		Task:        TaskGeneratePortrait,
		CampaignID:  uuid.New(),
		CharacterID: uuid.New(),
		Outfit:      "winter coat",
	}

	body, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded TaskPayload
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, original, decoded)
}

func TestTaskPayload_OmitsUnsetFields(t *testing.T) {
	payload := TaskPayload{
		Task:       TaskRunTurn,
		CampaignID: uuid.New(),
		MessageID:  uuid.New(),
	}

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Contains(t, raw, "task")
	assert.Contains(t, raw, "campaignId")
	assert.Contains(t, raw, "messageId")
	assert.NotContains(t, raw, "outfit")
}
