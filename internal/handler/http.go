package handler

import (
	"errors"
	"net/http"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/repository"
	"gamemaster-server/internal/service"
	"gamemaster-server/internal/stream"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIError is the standardized error response body.
type APIError struct {
	Message string `json:"message"`
}

// Handler owns the HTTP surface of the server.
type Handler struct {
	campaigns  service.CampaignService
	characters service.CharacterService
	chat       service.ChatService
	memories   service.MemoryService
	summaries  service.SummaryService
	jobs       service.JobService
	systems    service.GameSystemService
	streams    stream.Store
	media      repository.MediaStore
	logger     *zap.Logger
}

// NewHandler creates the Handler.
func NewHandler(
	campaigns service.CampaignService,
	characters service.CharacterService,
	chat service.ChatService,
	memories service.MemoryService,
	summaries service.SummaryService,
	jobs service.JobService,
	systems service.GameSystemService,
	streams stream.Store,
	media repository.MediaStore,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		campaigns:  campaigns,
		characters: characters,
		chat:       chat,
		memories:   memories,
		summaries:  summaries,
		jobs:       jobs,
		systems:    systems,
		streams:    streams,
		media:      media,
		logger:     logger.Named("Handler"),
	}
}

// RegisterRoutes wires all endpoints onto the router. CORS covers every
// route, including the pre-flight of the streaming endpoint.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))
	router.Use(RequestLogger(h.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	campaigns := router.Group("/campaigns")
	{
		campaigns.POST("", h.createCampaign)
		campaigns.GET("", h.listCampaigns)
		campaigns.GET("/:id", h.getCampaign)
		campaigns.PATCH("/:id", h.updateCampaign)
		campaigns.POST("/:id/archive", h.archiveCampaign)
		campaigns.POST("/:id/unarchive", h.unarchiveCampaign)
		campaigns.PUT("/:id/plan", h.updatePlan)
		campaigns.POST("/:id/quests", h.upsertQuest)
		campaigns.POST("/:id/clocks", h.upsertClock)
		campaigns.PUT("/:id/temporal", h.setTemporal)

		campaigns.GET("/:id/characters", h.listCharacters)
		campaigns.POST("/:id/characters", h.createCharacter)

		campaigns.GET("/:id/messages", h.listMessages)
		campaigns.POST("/:id/messages", h.postMessage)
		campaigns.POST("/:id/regenerate", h.regenerate)
		campaigns.POST("/:id/replace", h.findAndReplace)

		campaigns.GET("/:id/memories", h.listMemories)
		campaigns.POST("/:id/memories", h.addMemory)
		campaigns.POST("/:id/memories/search", h.searchMemories)

		campaigns.GET("/:id/summaries", h.listSummaries)
		campaigns.POST("/:id/summarize", h.scheduleSummarize)

		campaigns.GET("/:id/jobs", h.listJobs)
	}

	characters := router.Group("/characters")
	{
		characters.GET("/:id", h.getCharacter)
		characters.PATCH("/:id", h.updateCharacter)
		characters.POST("/:id/outfits", h.addOutfit)
		characters.PUT("/:id/outfit", h.switchOutfit)
		characters.POST("/:id/portrait", h.regeneratePortrait)
	}

	messages := router.Group("/messages")
	{
		messages.GET("/:id", h.getMessage)
		messages.POST("/:id/dice_roll", h.performDiceRoll)
		messages.POST("/:id/choose_name", h.performChooseName)
		messages.POST("/:id/narrate", h.narrate)
	}

	router.POST("/message_stream", h.messageStream)
	router.GET("/ws/messages/:id", h.messageStreamWS)
	router.GET("/media/:ref", h.getMedia)

	router.GET("/jobs/:id", h.getJob)

	systems := router.Group("/game_systems")
	{
		systems.GET("", h.listGameSystems)
		systems.POST("", h.createGameSystem)
		systems.GET("/:id", h.getGameSystem)
	}
}

// parseID extracts a uuid path parameter, replying 400 on malformed input.
func (h *Handler) parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("Invalid id in path", zap.String("param", name), zap.String("value", raw))
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps sentinel errors to HTTP status codes.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrBadRequest),
		errors.Is(err, models.ErrCallNotPending),
		errors.Is(err, models.ErrNoAssistantTurn):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrCampaignArchived),
		errors.Is(err, models.ErrTurnInFlight),
		errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrOutfitNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrGenerationFailed):
		status = http.StatusBadGateway
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "internal server error"})
		return
	}
	c.JSON(status, APIError{Message: err.Error()})
}
