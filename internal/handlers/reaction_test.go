package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/mocks"
	"chat-relay/internal/models"
	"chat-relay/internal/repositories"
	"chat-relay/internal/ws"
)

func setupReactionRouter(handler *ReactionHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/api/messages/:id/reactions", handler.ListReactions)
	r.POST("/api/messages/:id/reactions", handler.AddReaction)
	r.DELETE("/api/messages/:id/reactions/:reactionId", handler.RemoveReaction)
	return r
}

func TestAddReactionSuccess(t *testing.T) {
	reactionRepo := new(mocks.ReactionRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	broadcaster, registry := newBroadcaster()
	handler := NewReactionHandler(reactionRepo, messageRepo, broadcaster)
	router := setupReactionRouter(handler)

	watcher := newRecordingConn()
	registry.Register(watcher, ws.ConnInfo{UserID: 2})

	messageRepo.On("GetMessage", mock.Anything, 42).Return(models.Message{ID: 42}, nil).Once()
	reactionRepo.On("AddReaction", mock.Anything, 42, 1, "👍").
		Return(models.Reaction{ID: 5, MessageID: 42, UserID: 1, Emoji: "👍"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/messages/42/reactions", bytes.NewBufferString(`{"emoji":"👍"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, watcher.frames(), 1)
	assert.Contains(t, string(watcher.frames()[0]), `"reaction"`)
	reactionRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestAddReactionDuplicateIsConflictAndNeverBroadcast(t *testing.T) {
	reactionRepo := new(mocks.ReactionRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	broadcaster, registry := newBroadcaster()
	handler := NewReactionHandler(reactionRepo, messageRepo, broadcaster)
	router := setupReactionRouter(handler)

	watcher := newRecordingConn()
	registry.Register(watcher, ws.ConnInfo{UserID: 2})

	messageRepo.On("GetMessage", mock.Anything, 42).Return(models.Message{ID: 42}, nil).Twice()
	reactionRepo.On("AddReaction", mock.Anything, 42, 1, "👍").
		Return(models.Reaction{ID: 5, MessageID: 42, UserID: 1, Emoji: "👍"}, nil).Once()
	reactionRepo.On("AddReaction", mock.Anything, 42, 1, "👍").
		Return(models.Reaction{}, repositories.ErrDuplicateReaction).Once()

	for i, wantCode := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/api/messages/42/reactions", bytes.NewBufferString(`{"emoji":"👍"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, wantCode, rec.Code, "attempt %d", i+1)
	}

	// Only the first, successfully stored reaction reaches the wire.
	assert.Len(t, watcher.frames(), 1)
	reactionRepo.AssertExpectations(t)
}

func TestAddReactionUnknownMessage(t *testing.T) {
	reactionRepo := new(mocks.ReactionRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	broadcaster, _ := newBroadcaster()
	handler := NewReactionHandler(reactionRepo, messageRepo, broadcaster)
	router := setupReactionRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, 404).
		Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/messages/404/reactions", bytes.NewBufferString(`{"emoji":"👍"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestListReactions(t *testing.T) {
	reactionRepo := new(mocks.ReactionRepositoryMock)
	broadcaster, _ := newBroadcaster()
	handler := NewReactionHandler(reactionRepo, new(mocks.MessageRepositoryMock), broadcaster)
	router := setupReactionRouter(handler)

	reactionRepo.On("ListReactions", mock.Anything, 42).
		Return([]models.Reaction{{ID: 5, MessageID: 42, UserID: 1, Emoji: "👍"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/messages/42/reactions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	reactionRepo.AssertExpectations(t)
}

func TestRemoveReactionBroadcasts(t *testing.T) {
	reactionRepo := new(mocks.ReactionRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	broadcaster, registry := newBroadcaster()
	handler := NewReactionHandler(reactionRepo, messageRepo, broadcaster)
	router := setupReactionRouter(handler)

	watcher := newRecordingConn()
	registry.Register(watcher, ws.ConnInfo{UserID: 2})

	reactionRepo.On("RemoveReaction", mock.Anything, 5, 1).
		Return(models.Reaction{ID: 5, MessageID: 42, UserID: 1, Emoji: "👍"}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/api/messages/42/reactions/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, watcher.frames(), 1)
	assert.Contains(t, string(watcher.frames()[0]), `"reaction_removed"`)
	reactionRepo.AssertExpectations(t)
}
