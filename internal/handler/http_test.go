package handler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gamemaster-server/internal/models"
	repomocks "gamemaster-server/internal/repository/mocks"
	"gamemaster-server/internal/service"
	svcmocks "gamemaster-server/internal/service/mocks"
	streammocks "gamemaster-server/internal/stream/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type handlerMocks struct {
	campaigns  *svcmocks.CampaignService
	characters *svcmocks.CharacterService
	chat       *svcmocks.ChatService
	memories   *svcmocks.MemoryService
	summaries  *svcmocks.SummaryService
	jobs       *svcmocks.JobService
	systems    *svcmocks.GameSystemService
	streams    *streammocks.Store
	media      *repomocks.MediaStore
}

func newTestRouter() (*gin.Engine, *handlerMocks) {
	gin.SetMode(gin.TestMode)
	m := &handlerMocks{
		campaigns:  new(svcmocks.CampaignService),
		characters: new(svcmocks.CharacterService),
		chat:       new(svcmocks.ChatService),
		memories:   new(svcmocks.MemoryService),
		summaries:  new(svcmocks.SummaryService),
		jobs:       new(svcmocks.JobService),
		systems:    new(svcmocks.GameSystemService),
		streams:    new(streammocks.Store),
		media:      new(repomocks.MediaStore),
	}
	h := NewHandler(m.campaigns, m.characters, m.chat, m.memories, m.summaries,
		m.jobs, m.systems, m.streams, m.media, zap.NewNop())
	router := gin.New()
	h.RegisterRoutes(router)
	return router, m
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPostMessage_Accepted(t *testing.T) {
	router, m := newTestRouter()
	campaignID := uuid.New()
	assistant := &models.Message{ID: uuid.New(), CampaignID: campaignID,
		Role: models.RoleAssistant, Status: models.MessageGenerating}
	m.chat.On("PostMessage", mock.Anything, campaignID, "I open the door").Return(assistant, nil)

	rec := doJSON(router, http.MethodPost, "/campaigns/"+campaignID.String()+"/messages",
		gin.H{"text": "I open the door"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var got models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, assistant.ID, got.ID)
	assert.Equal(t, models.MessageGenerating, got.Status)
}

func TestPostMessage_TurnInFlightConflicts(t *testing.T) {
	router, m := newTestRouter()
	campaignID := uuid.New()
	m.chat.On("PostMessage", mock.Anything, campaignID, mock.Anything).
		Return(nil, models.ErrTurnInFlight)

	rec := doJSON(router, http.MethodPost, "/campaigns/"+campaignID.String()+"/messages",
		gin.H{"text": "hello?"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostMessage_InvalidCampaignID(t *testing.T) {
	router, _ := newTestRouter()
	rec := doJSON(router, http.MethodPost, "/campaigns/not-a-uuid/messages", gin.H{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformDiceRoll_MapsCallNotPending(t *testing.T) {
	router, m := newTestRouter()
	messageID := uuid.New()
	m.chat.On("PerformDiceRoll", mock.Anything, messageID, 3, service.DiceRollResult{Rolls: []int{6}, Total: 6}).
		Return(nil, models.ErrCallNotPending)

	rec := doJSON(router, http.MethodPost, "/messages/"+messageID.String()+"/dice_roll",
		gin.H{"callIndex": 3, "rolls": []int{6}, "total": 6})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCampaign_NotFound(t *testing.T) {
	router, m := newTestRouter()
	id := uuid.New()
	m.campaigns.On("GetByID", mock.Anything, id).Return(nil, models.ErrNotFound)

	rec := doJSON(router, http.MethodGet, "/campaigns/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageStream_WritesNDJSON(t *testing.T) {
	router, m := newTestRouter()
	messageID := uuid.New()

	events := make(chan models.StreamEvent, 3)
	events <- models.StreamEvent{Type: models.EventTextDelta, Delta: "You slip "}
	events <- models.StreamEvent{Type: models.EventTextDelta, Delta: "into the alley."}
	events <- models.StreamEvent{Type: models.EventStatus, Status: models.StreamDone}
	close(events)
	m.streams.On("Attach", mock.Anything, messageID).Return((<-chan models.StreamEvent)(events), nil)

	rec := doJSON(router, http.MethodPost, "/message_stream", gin.H{"messageId": messageID})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var lines []models.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		var event models.StreamEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		lines = append(lines, event)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, models.EventTextDelta, lines[0].Type)
	assert.Equal(t, models.StreamDone, lines[2].Status)
}

func TestMessageStream_UnknownMessage(t *testing.T) {
	router, m := newTestRouter()
	messageID := uuid.New()
	m.streams.On("Attach", mock.Anything, messageID).
		Return(nil, fmt.Errorf("status: %w", models.ErrNotFound))

	rec := doJSON(router, http.MethodPost, "/message_stream", gin.H{"messageId": messageID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMedia_ServesStoredBytes(t *testing.T) {
	router, m := newTestRouter()
	m.media.On("Get", mock.Anything, "abc").Return([]byte{0xFF, 0xD8}, "image/jpeg", nil)

	rec := doJSON(router, http.MethodGet, "/media/abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8}, rec.Body.Bytes())
}

func TestFindAndReplace_ReportsCounts(t *testing.T) {
	router, m := newTestRouter()
	campaignID := uuid.New()
	m.chat.On("FindAndReplace", mock.Anything, campaignID, "Vex", "Nyx").
		Return(&service.ReplaceReport{Messages: 2, Campaign: 1}, nil)

	rec := doJSON(router, http.MethodPost, "/campaigns/"+campaignID.String()+"/replace",
		gin.H{"find": "Vex", "replace": "Nyx"})

	require.Equal(t, http.StatusOK, rec.Code)
	var report service.ReplaceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Messages)
	assert.Equal(t, 1, report.Campaign)
}
