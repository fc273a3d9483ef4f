package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-relay/internal/models"
)

type ChannelRepositoryMock struct {
	mock.Mock
}

func (m *ChannelRepositoryMock) CreateChannel(ctx context.Context, name string, creatorID int) (models.Channel, error) {
	args := m.Called(ctx, name, creatorID)
	var ch models.Channel
	if val := args.Get(0); val != nil {
		ch = val.(models.Channel)
	}
	return ch, args.Error(1)
}

func (m *ChannelRepositoryMock) GetChannel(ctx context.Context, channelID int) (models.Channel, error) {
	args := m.Called(ctx, channelID)
	var ch models.Channel
	if val := args.Get(0); val != nil {
		ch = val.(models.Channel)
	}
	return ch, args.Error(1)
}

func (m *ChannelRepositoryMock) ListChannels(ctx context.Context) ([]models.Channel, error) {
	args := m.Called(ctx)
	var list []models.Channel
	if val := args.Get(0); val != nil {
		list = val.([]models.Channel)
	}
	return list, args.Error(1)
}

func (m *ChannelRepositoryMock) DeleteChannel(ctx context.Context, channelID int) (bool, error) {
	args := m.Called(ctx, channelID)
	return args.Bool(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateChannelMessage(ctx context.Context, channelID int, senderID int, content string, threadParentID *int) (models.Message, error) {
	args := m.Called(ctx, channelID, senderID, content, threadParentID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CreateDirectMessage(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListChannelMessages(ctx context.Context, channelID int) ([]models.Message, error) {
	args := m.Called(ctx, channelID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListThreadMessages(ctx context.Context, threadParentID int) ([]models.Message, error) {
	args := m.Called(ctx, threadParentID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListConversationMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int) (models.Message, bool, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) SearchMessages(ctx context.Context, query string, userID int) ([]models.Message, error) {
	args := m.Called(ctx, query, userID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetOrCreateConversation(ctx context.Context, userID int, peerID int) (models.Conversation, error) {
	args := m.Called(ctx, userID, peerID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListConversationsForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var convs []models.Conversation
	if val := args.Get(0); val != nil {
		convs = val.([]models.Conversation)
	}
	return convs, args.Error(1)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) AddReaction(ctx context.Context, messageID int, userID int, emoji string) (models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var reaction models.Reaction
	if val := args.Get(0); val != nil {
		reaction = val.(models.Reaction)
	}
	return reaction, args.Error(1)
}

func (m *ReactionRepositoryMock) RemoveReaction(ctx context.Context, reactionID int, userID int) (models.Reaction, error) {
	args := m.Called(ctx, reactionID, userID)
	var reaction models.Reaction
	if val := args.Get(0); val != nil {
		reaction = val.(models.Reaction)
	}
	return reaction, args.Error(1)
}

func (m *ReactionRepositoryMock) ListReactions(ctx context.Context, messageID int) ([]models.Reaction, error) {
	args := m.Called(ctx, messageID)
	var reactions []models.Reaction
	if val := args.Get(0); val != nil {
		reactions = val.([]models.Reaction)
	}
	return reactions, args.Error(1)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) BulkUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}
