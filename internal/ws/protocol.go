package ws

import (
	"context"
	"errors"
	"log"

	"chat-relay/internal/clients"
	"chat-relay/internal/event"
	"chat-relay/internal/models"
	"chat-relay/internal/repositories"
)

// Protocol processes inbound frames: parse, authorize, persist, then
// broadcast. Failures are reported privately to the originating
// connection and never abort the process.
type Protocol struct {
	broadcaster   *Broadcaster
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	users         clients.UserDirectory
}

// NewProtocol constructs a Protocol.
func NewProtocol(broadcaster *Broadcaster, messages repositories.MessageRepository, conversations repositories.ConversationRepository, users clients.UserDirectory) *Protocol {
	return &Protocol{
		broadcaster:   broadcaster,
		messages:      messages,
		conversations: conversations,
		users:         users,
	}
}

// HandleFrame runs one frame through the pipeline.
func (p *Protocol) HandleFrame(ctx context.Context, origin Conn, info ConnInfo, data []byte) {
	ev, err := event.Decode(data)
	if err != nil {
		log.Printf("ws frame rejected: %v", err)
		p.sendError(origin, "malformed frame")
		return
	}

	switch payload := ev.Payload.(type) {
	case event.MessagePayload:
		p.handleMessage(ctx, origin, info, payload)
	case event.DirectMessagePayload:
		p.handleDirectMessage(ctx, origin, info, payload)
	case event.DeletePayload:
		p.handleDelete(ctx, origin, payload.ID, false)
	case event.DirectDeletePayload:
		p.handleDelete(ctx, origin, payload.ID, true)
	case event.TypingPayload:
		if payload.UserID != info.UserID {
			p.sendError(origin, "not authorized")
			return
		}
		p.broadcaster.Broadcast(ev)
	case event.ReactionPayload:
		if payload.UserID != info.UserID {
			p.sendError(origin, "not authorized")
			return
		}
		// Reaction persistence happens on the REST path; the duplex
		// channel only rebroadcasts the notification.
		p.broadcaster.Broadcast(ev)
	case event.UserStatusPayload:
		if payload.UserID != info.UserID {
			p.sendError(origin, "not authorized")
			return
		}
		p.broadcaster.Broadcast(ev)
	case event.ChannelPayload:
		p.broadcaster.Broadcast(ev)
	default:
		p.sendError(origin, "unhandled frame type")
	}
}

func (p *Protocol) handleMessage(ctx context.Context, origin Conn, info ConnInfo, payload event.MessagePayload) {
	if payload.UserID != info.UserID {
		p.sendError(origin, "not authorized")
		return
	}

	channelID, err := p.resolveChannel(ctx, payload)
	if err != nil {
		log.Printf("message rejected: %v", err)
		p.sendError(origin, "could not store message")
		return
	}

	msg, err := p.messages.CreateChannelMessage(ctx, channelID, info.UserID, payload.Content, payload.ThreadParentID)
	if err != nil {
		log.Printf("store message failed: %v", err)
		p.sendError(origin, "could not store message")
		return
	}

	p.hydrateSender(ctx, &msg)

	// The echo reaches the sender too; its optimistic placeholder is
	// reconciled by this broadcast, not suppressed.
	p.broadcaster.Broadcast(event.New(event.MessagePayload{
		Content:        msg.Content,
		UserID:         msg.SenderID,
		ChannelID:      msg.ChannelID,
		ThreadParentID: msg.ThreadParentID,
		Message:        &msg,
	}))
}

func (p *Protocol) handleDirectMessage(ctx context.Context, origin Conn, info ConnInfo, payload event.DirectMessagePayload) {
	if payload.UserID != info.UserID {
		p.sendError(origin, "not authorized")
		return
	}

	conv, err := p.conversations.GetOrCreateConversation(ctx, info.UserID, payload.RecipientID)
	if err != nil {
		log.Printf("resolve conversation failed: %v", err)
		p.sendError(origin, "could not store message")
		return
	}

	msg, err := p.messages.CreateDirectMessage(ctx, conv.ID, info.UserID, payload.Content)
	if err != nil {
		log.Printf("store direct message failed: %v", err)
		p.sendError(origin, "could not store message")
		return
	}

	p.hydrateSender(ctx, &msg)

	p.broadcaster.Broadcast(event.New(event.DirectMessagePayload{
		Content:     msg.Content,
		UserID:      msg.SenderID,
		RecipientID: payload.RecipientID,
		Message:     &msg,
	}))
}

// handleDelete hard-deletes a message. Unknown ids are a silent no-op:
// no broadcast, no error frame.
func (p *Protocol) handleDelete(ctx context.Context, origin Conn, messageID int, direct bool) {
	msg, deleted, err := p.messages.DeleteMessage(ctx, messageID)
	if err != nil {
		log.Printf("delete message failed: %v", err)
		p.sendError(origin, "could not delete message")
		return
	}
	if !deleted {
		return
	}

	if direct || msg.ConversationID != nil {
		p.broadcaster.Broadcast(event.New(event.DirectDeletePayload{
			ID:             messageID,
			ConversationID: msg.ConversationID,
		}))
		return
	}
	p.broadcaster.Broadcast(event.New(event.DeletePayload{
		ID:             messageID,
		ChannelID:      msg.ChannelID,
		ThreadParentID: msg.ThreadParentID,
	}))
}

// resolveChannel maps a message frame to its channel: either the frame
// names the channel directly or it names a thread parent the channel is
// read from.
func (p *Protocol) resolveChannel(ctx context.Context, payload event.MessagePayload) (int, error) {
	if payload.ChannelID != nil {
		return *payload.ChannelID, nil
	}
	if payload.ThreadParentID == nil {
		return 0, errors.New("message names neither channel nor thread parent")
	}
	parent, err := p.messages.GetMessage(ctx, *payload.ThreadParentID)
	if err != nil {
		return 0, err
	}
	if parent.ChannelID == nil {
		return 0, repositories.ErrThreadParentGone
	}
	return *parent.ChannelID, nil
}

func (p *Protocol) hydrateSender(ctx context.Context, msg *models.Message) {
	if p.users == nil {
		return
	}
	users, err := p.users.BulkUsers(ctx, []int{msg.SenderID})
	if err != nil {
		log.Printf("hydrate sender failed: %v", err)
		return
	}
	for _, u := range users {
		if u.ID == msg.SenderID {
			msg.SenderUsername = u.Username
		}
	}
}

func (p *Protocol) sendError(origin Conn, message string) {
	if err := p.broadcaster.SendTo(origin, event.New(event.ErrorPayload{Message: message})); err != nil {
		log.Printf("send error frame failed: %v", err)
	}
}
