package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-relay/internal/event"
	"chat-relay/internal/repositories"
	"chat-relay/internal/telemetry"
	"chat-relay/internal/ws"
)

// ChannelHandler manages channel endpoints.
type ChannelHandler struct {
	channelRepo repositories.ChannelRepository
	broadcaster *ws.Broadcaster
	audit       *telemetry.AuditEmitter
}

// NewChannelHandler builds a ChannelHandler.
func NewChannelHandler(channelRepo repositories.ChannelRepository, broadcaster *ws.Broadcaster, audit *telemetry.AuditEmitter) *ChannelHandler {
	return &ChannelHandler{channelRepo: channelRepo, broadcaster: broadcaster, audit: audit}
}

// ListChannels returns all channels.
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	channels, err := h.channelRepo.ListChannels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// CreateChannel stores a channel and announces it to all connections.
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	channel, err := h.channelRepo.CreateChannel(c.Request.Context(), req.Name, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create channel"})
		return
	}

	h.broadcaster.Broadcast(event.ChannelCreated(channel))
	h.audit.Emit(c.Request.Context(), "INFO", "channel created: "+channel.Name, requestID(c), &userID)
	c.JSON(http.StatusCreated, channel)
}

// DeleteChannel removes a channel. The broadcast is only emitted when a
// row was actually deleted.
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	channelID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	deleted, err := h.channelRepo.DeleteChannel(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete channel"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}

	userID := c.GetInt("userID")
	h.broadcaster.Broadcast(event.ChannelDeleted(channelID))
	h.audit.Emit(c.Request.Context(), "INFO", "channel deleted", requestID(c), &userID)
	c.Status(http.StatusNoContent)
}

func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-Id")
}
