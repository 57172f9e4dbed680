package handler

import (
	"net/http"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createCampaign(c *gin.Context) {
	var input service.CreateCampaignInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	campaign, err := h.campaigns.Create(c.Request.Context(), input)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

func (h *Handler) listCampaigns(c *gin.Context) {
	includeArchived := c.Query("include_archived") == "true"
	campaigns, err := h.campaigns.List(c.Request.Context(), includeArchived)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaigns)
}

func (h *Handler) getCampaign(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	campaign, err := h.campaigns.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handler) updateCampaign(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var input service.UpdateCampaignInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	campaign, err := h.campaigns.Update(c.Request.Context(), id, input)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handler) archiveCampaign(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	if err := h.campaigns.Archive(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) unarchiveCampaign(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	if err := h.campaigns.Unarchive(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updatePlanRequest struct {
	Plan string `json:"plan"`
}

func (h *Handler) updatePlan(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if err := h.campaigns.UpdatePlan(c.Request.Context(), id, req.Plan); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) upsertQuest(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var quest models.Quest
	if err := c.ShouldBindJSON(&quest); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if err := h.campaigns.UpsertQuest(c.Request.Context(), id, quest); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) upsertClock(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var clock models.Clock
	if err := c.ShouldBindJSON(&clock); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if err := h.campaigns.UpsertClock(c.Request.Context(), id, clock); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setTemporalRequest struct {
	WorldDate string `json:"worldDate"`
	TimeOfDay string `json:"timeOfDay"`
}

func (h *Handler) setTemporal(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req setTemporalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if err := h.campaigns.SetTemporal(c.Request.Context(), id, req.WorldDate, req.TimeOfDay); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listGameSystems(c *gin.Context) {
	systems, err := h.systems.List(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, systems)
}

func (h *Handler) getGameSystem(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	system, err := h.systems.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, system)
}

func (h *Handler) createGameSystem(c *gin.Context) {
	var system models.GameSystem
	if err := c.ShouldBindJSON(&system); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	if err := h.systems.Create(c.Request.Context(), &system); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, system)
}
