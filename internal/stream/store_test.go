package stream

import (
	"testing"

	"gamemaster-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeLogLines_SkipsMalformed(t *testing.T) {
	lines := []string{
		`{"type":"text_delta","delta":"The door "}`,
		`{not json at all`,
		``,
		`{"type":"tool_call","callId":"c1","name":"update_clock","args":{"name":"Doom"}}`,
		`{"type":"status","status":"done"}`,
	}

	events := decodeLogLines(lines, zap.NewNop())

	require.Len(t, events, 3)
	assert.Equal(t, models.EventTextDelta, events[0].Type)
	assert.Equal(t, "The door ", events[0].Delta)
	assert.Equal(t, models.EventToolCall, events[1].Type)
	assert.Equal(t, "c1", events[1].CallID)
	assert.Equal(t, models.EventStatus, events[2].Type)
	assert.True(t, events[2].Status.Terminal())
}

func TestDecodeLogLines_Empty(t *testing.T) {
	assert.Empty(t, decodeLogLines(nil, zap.NewNop()))
}
