package handler

import (
	"net/http"

	"gamemaster-server/internal/models"
	"gamemaster-server/internal/service"

	"github.com/gin-gonic/gin"
)

type postMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// postMessage stores the player's message and replies 202 with the assistant
// message whose stream the client should attach to.
func (h *Handler) postMessage(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	assistant, err := h.chat.PostMessage(c.Request.Context(), campaignID, req.Text)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, assistant)
}

func (h *Handler) listMessages(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	messages, err := h.chat.ListMessages(c.Request.Context(), campaignID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) getMessage(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	msg, err := h.chat.GetMessage(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) regenerate(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	replacement, err := h.chat.Regenerate(c.Request.Context(), campaignID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, replacement)
}

// callIndex in the resolve requests is the pending call's position in the
// message's blocks array as served by GET /messages, not an ordinal among
// its tool calls.
type diceRollRequest struct {
	CallIndex int   `json:"callIndex"`
	Rolls     []int `json:"rolls"`
	Total     int   `json:"total"`
}

func (h *Handler) performDiceRoll(c *gin.Context) {
	messageID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req diceRollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	msg, err := h.chat.PerformDiceRoll(c.Request.Context(), messageID, req.CallIndex,
		service.DiceRollResult{Rolls: req.Rolls, Total: req.Total})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type chooseNameRequest struct {
	CallIndex int    `json:"callIndex"`
	Name      string `json:"name" binding:"required"`
}

func (h *Handler) performChooseName(c *gin.Context) {
	messageID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req chooseNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	msg, err := h.chat.PerformChooseName(c.Request.Context(), messageID, req.CallIndex, req.Name)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type findAndReplaceRequest struct {
	Find    string `json:"find" binding:"required"`
	Replace string `json:"replace"`
}

func (h *Handler) findAndReplace(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req findAndReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	report, err := h.chat.FindAndReplace(c.Request.Context(), campaignID, req.Find, req.Replace)
	if err != nil {
		// A mid-way failure still applied earlier scopes; return the partial
		// report alongside the error message.
		if report != nil && report.Total() > 0 {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": err.Error(),
				"applied": report,
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) narrate(c *gin.Context) {
	messageID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	msg, err := h.chat.Narrate(c.Request.Context(), messageID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) getMedia(c *gin.Context) {
	ref := c.Param("ref")
	data, contentType, err := h.media.Get(c.Request.Context(), ref)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) addMemory(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var memory models.Memory
	if err := c.ShouldBindJSON(&memory); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	memory.CampaignID = campaignID
	if err := h.memories.Add(c.Request.Context(), &memory); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memory)
}

func (h *Handler) listMemories(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	memories, err := h.memories.ListByCampaign(c.Request.Context(), campaignID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, memories)
}

type searchMemoriesRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

func (h *Handler) searchMemories(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req searchMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	results, err := h.memories.Search(c.Request.Context(), campaignID, req.Query, req.Limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) listSummaries(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	summaries, err := h.summaries.ListByCampaign(c.Request.Context(), campaignID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) scheduleSummarize(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	job, err := h.summaries.ScheduleSummarize(c.Request.Context(), campaignID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	campaignID, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	jobs, err := h.jobs.ListByCampaign(c.Request.Context(), campaignID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}
