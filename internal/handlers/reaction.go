package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-relay/internal/event"
	"chat-relay/internal/repositories"
	"chat-relay/internal/ws"
)

// ReactionHandler persists reactions over the request/response path and
// rebroadcasts the notification through the duplex channel.
type ReactionHandler struct {
	reactionRepo repositories.ReactionRepository
	messageRepo  repositories.MessageRepository
	broadcaster  *ws.Broadcaster
}

// NewReactionHandler builds a ReactionHandler.
func NewReactionHandler(reactionRepo repositories.ReactionRepository, messageRepo repositories.MessageRepository, broadcaster *ws.Broadcaster) *ReactionHandler {
	return &ReactionHandler{reactionRepo: reactionRepo, messageRepo: messageRepo, broadcaster: broadcaster}
}

// AddReaction stores a reaction. A duplicate (message, user, emoji)
// triple is rejected by the storage constraint and never broadcast.
func (h *ReactionHandler) AddReaction(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if _, err := h.messageRepo.GetMessage(c.Request.Context(), messageID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return
	}

	reaction, err := h.reactionRepo.AddReaction(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateReaction) {
			c.JSON(http.StatusConflict, gin.H{"error": "reaction already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store reaction"})
		return
	}

	h.broadcaster.Broadcast(event.New(event.ReactionPayload{
		MessageID: messageID,
		Emoji:     reaction.Emoji,
		UserID:    userID,
	}))
	c.JSON(http.StatusCreated, reaction)
}

// ListReactions returns the reactions on a message.
func (h *ReactionHandler) ListReactions(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	reactions, err := h.reactionRepo.ListReactions(c.Request.Context(), messageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// RemoveReaction deletes the caller's reaction and notifies clients.
func (h *ReactionHandler) RemoveReaction(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	reactionID, err := strconv.Atoi(c.Param("reactionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reaction id"})
		return
	}

	userID := c.GetInt("userID")
	reaction, err := h.reactionRepo.RemoveReaction(c.Request.Context(), reactionID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrReactionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "reaction not found"})
		return
	}

	h.broadcaster.Broadcast(event.ReactionRemoved(event.ReactionPayload{
		MessageID: messageID,
		Emoji:     reaction.Emoji,
		UserID:    userID,
	}))
	c.Status(http.StatusNoContent)
}
