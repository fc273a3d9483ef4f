package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-relay/internal/clients"
	"chat-relay/internal/models"
	"chat-relay/internal/repositories"
)

// MessageHandler serves message history reads: channel, thread, DM and
// search. These feed the client-side caches.
type MessageHandler struct {
	channelRepo      repositories.ChannelRepository
	messageRepo      repositories.MessageRepository
	conversationRepo repositories.ConversationRepository
	userClient       clients.UserDirectory
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(channelRepo repositories.ChannelRepository, messageRepo repositories.MessageRepository, conversationRepo repositories.ConversationRepository, userClient clients.UserDirectory) *MessageHandler {
	return &MessageHandler{
		channelRepo:      channelRepo,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		userClient:       userClient,
	}
}

// GetChannelMessages returns a channel's top-level messages.
func (h *MessageHandler) GetChannelMessages(c *gin.Context) {
	channelID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	if _, err := h.channelRepo.GetChannel(c.Request.Context(), channelID); err != nil {
		status := http.StatusInternalServerError
		if err == repositories.ErrChannelNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "channel not found"})
		return
	}

	msgs, err := h.messageRepo.ListChannelMessages(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	h.respondMessages(c, msgs)
}

// GetThreadMessages returns the replies under a thread root.
func (h *MessageHandler) GetThreadMessages(c *gin.Context) {
	parentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msgs, err := h.messageRepo.ListThreadMessages(c.Request.Context(), parentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load thread"})
		return
	}

	h.respondMessages(c, msgs)
}

// GetDirectMessages returns the caller's conversation with a peer,
// creating the conversation row when absent.
func (h *MessageHandler) GetDirectMessages(c *gin.Context) {
	peerID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.conversationRepo.GetOrCreateConversation(c.Request.Context(), userID, peerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not resolve conversation"})
		return
	}

	msgs, err := h.messageRepo.ListConversationMessages(c.Request.Context(), conv.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	hydrated, err := h.hydrate(c.Request.Context(), msgs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load senders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID, "peer_id": conv.PeerOf(userID), "messages": hydrated})
}

// ListConversations returns the caller's direct conversations.
func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")
	convs, err := h.conversationRepo.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// SearchMessages returns the caller's visible messages matching q.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	userID := c.GetInt("userID")
	msgs, err := h.messageRepo.SearchMessages(c.Request.Context(), query, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	h.respondMessages(c, msgs)
}

func (h *MessageHandler) respondMessages(c *gin.Context, msgs []models.Message) {
	hydrated, err := h.hydrate(c.Request.Context(), msgs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load senders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": hydrated})
}

// hydrate fills sender usernames via the user directory.
func (h *MessageHandler) hydrate(ctx context.Context, msgs []models.Message) ([]models.Message, error) {
	if h.userClient == nil || len(msgs) == 0 {
		return msgs, nil
	}

	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	users, err := h.userClient.BulkUsers(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	names := map[int]string{}
	for _, u := range users {
		names[u.ID] = u.Username
	}

	for i := range msgs {
		msgs[i].SenderUsername = names[msgs[i].SenderID]
	}
	return msgs, nil
}
