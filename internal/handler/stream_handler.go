package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type messageStreamRequest struct {
	MessageID uuid.UUID `json:"messageId" binding:"required"`
}

// messageStream replays and tails a message's persistent stream as
// newline-delimited JSON. The response ends when the stream reaches a
// terminal status or the client goes away; reconnecting replays from the
// beginning, duplicates are resolved client-side by block position.
func (h *Handler) messageStream(c *gin.Context) {
	var req messageStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, APIError{Message: "streaming unsupported"})
		return
	}

	events, err := h.streams.Attach(c.Request.Context(), req.MessageID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	encoder := json.NewEncoder(c.Writer)
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if err := encoder.Encode(event); err != nil {
				h.logger.Debug("Stream client went away",
					zap.String("messageID", req.MessageID.String()), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS is enforced at the HTTP layer; the socket accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// messageStreamWS is the websocket variant of messageStream: the same replay
// plus live tail, one JSON event per text frame.
func (h *Handler) messageStreamWS(c *gin.Context) {
	messageID, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	events, err := h.streams.Attach(c.Request.Context(), messageID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug("Websocket client went away",
				zap.String("messageID", messageID.String()), zap.Error(err))
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished"))
}
