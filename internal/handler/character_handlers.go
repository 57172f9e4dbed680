package handler

import (
	"net/http"

	"gamemaster-server/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createCharacter(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var input service.CreateCharacterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	character, err := h.characters.Create(c.Request.Context(), campaignID, input)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, character)
}

func (h *Handler) listCharacters(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	characters, err := h.characters.ListByCampaign(c.Request.Context(), campaignID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, characters)
}

func (h *Handler) getCharacter(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	character, err := h.characters.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) updateCharacter(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var input service.UpdateCharacterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	character, err := h.characters.Update(c.Request.Context(), id, input)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, character)
}

type outfitRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *Handler) addOutfit(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req outfitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	character, err := h.characters.AddOutfit(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) switchOutfit(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req outfitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	character, err := h.characters.SwitchOutfit(c.Request.Context(), id, req.Name)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *Handler) regeneratePortrait(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	if err := h.characters.RegeneratePortrait(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
