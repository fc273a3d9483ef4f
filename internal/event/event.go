package event

import (
	"encoding/json"
	"fmt"

	"chat-relay/internal/models"
)

// Type tags a wire frame. The set of types is closed: Decode rejects
// anything outside it.
type Type string

const (
	TypeMessage              Type = "message"
	TypeMessageDeleted       Type = "message_deleted"
	TypeDirectMessage        Type = "direct_message"
	TypeDirectMessageDeleted Type = "direct_message_deleted"
	TypeTyping               Type = "typing"
	TypeReaction             Type = "reaction"
	TypeReactionRemoved      Type = "reaction_removed"
	TypeUserStatus           Type = "user_status"
	TypeChannelCreated       Type = "channel_created"
	TypeChannelDeleted       Type = "channel_deleted"
	TypeError                Type = "error"
)

// Payload is implemented by exactly one struct per frame type.
type Payload interface {
	kind() Type
}

// Event is one frame on the duplex channel: a type tag plus the payload
// shape fixed for that tag.
type Event struct {
	Type    Type    `json:"type"`
	Payload Payload `json:"payload"`
}

// New builds an Event with the tag derived from the payload type.
func New(p Payload) Event {
	return Event{Type: p.kind(), Payload: p}
}

// MessagePayload carries a channel or thread message. Inbound frames set
// Content, UserID and one of ChannelID/ThreadParentID; the broadcast echo
// additionally carries the persisted, hydrated Message.
type MessagePayload struct {
	Content        string          `json:"content"`
	UserID         int             `json:"user_id"`
	ChannelID      *int            `json:"channel_id,omitempty"`
	ThreadParentID *int            `json:"thread_parent_id,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
}

// DirectMessagePayload carries a one-to-one message.
type DirectMessagePayload struct {
	Content     string          `json:"content"`
	UserID      int             `json:"user_id"`
	RecipientID int             `json:"recipient_id"`
	Message     *models.Message `json:"message,omitempty"`
}

// DeletePayload identifies a deleted message. The conversation keys are
// filled on broadcast when the server knows them so clients can invalidate
// a single cache instead of refetching everything.
type DeletePayload struct {
	ID             int  `json:"id"`
	ChannelID      *int `json:"channel_id,omitempty"`
	ThreadParentID *int `json:"thread_parent_id,omitempty"`
	ConversationID *int `json:"conversation_id,omitempty"`
}

// DirectDeletePayload identifies a deleted direct message.
type DirectDeletePayload struct {
	ID             int  `json:"id"`
	ConversationID *int `json:"conversation_id,omitempty"`
}

// TypingPayload signals a user typing in a channel.
type TypingPayload struct {
	ChannelID int `json:"channel_id"`
	UserID    int `json:"user_id"`
}

// ReactionPayload notifies of a reaction added or removed.
type ReactionPayload struct {
	MessageID int    `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    int    `json:"user_id"`
	Removed   bool   `json:"-"`
}

// UserStatusPayload carries a transient presence change.
type UserStatusPayload struct {
	UserID int    `json:"user_id"`
	Status string `json:"status"`
}

// ChannelPayload announces a created or deleted channel.
type ChannelPayload struct {
	ID      int             `json:"id"`
	Channel *models.Channel `json:"channel,omitempty"`
}

// ErrorPayload is sent privately to the connection that caused a failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

func (MessagePayload) kind() Type       { return TypeMessage }
func (DeletePayload) kind() Type        { return TypeMessageDeleted }
func (DirectMessagePayload) kind() Type { return TypeDirectMessage }
func (DirectDeletePayload) kind() Type  { return TypeDirectMessageDeleted }
func (TypingPayload) kind() Type        { return TypeTyping }
func (p ReactionPayload) kind() Type {
	if p.Removed {
		return TypeReactionRemoved
	}
	return TypeReaction
}
func (UserStatusPayload) kind() Type { return TypeUserStatus }
func (ErrorPayload) kind() Type      { return TypeError }

// ChannelPayload serves two tags, so channel events are built explicitly.
func (ChannelPayload) kind() Type { return TypeChannelCreated }

// ChannelCreated builds a channel_created event.
func ChannelCreated(ch models.Channel) Event {
	return Event{Type: TypeChannelCreated, Payload: ChannelPayload{ID: ch.ID, Channel: &ch}}
}

// ChannelDeleted builds a channel_deleted event.
func ChannelDeleted(id int) Event {
	return Event{Type: TypeChannelDeleted, Payload: ChannelPayload{ID: id}}
}

// ReactionRemoved builds a reaction_removed event.
func ReactionRemoved(p ReactionPayload) Event {
	p.Removed = true
	return Event{Type: TypeReactionRemoved, Payload: p}
}

type frame struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes the event as a {type, payload} frame.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a frame and returns the typed event. Unknown tags and
// malformed payloads are rejected.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}

	var p Payload
	switch f.Type {
	case TypeMessage:
		p = &MessagePayload{}
	case TypeMessageDeleted:
		p = &DeletePayload{}
	case TypeDirectMessage:
		p = &DirectMessagePayload{}
	case TypeDirectMessageDeleted:
		p = &DirectDeletePayload{}
	case TypeTyping:
		p = &TypingPayload{}
	case TypeReaction, TypeReactionRemoved:
		rp := &ReactionPayload{Removed: f.Type == TypeReactionRemoved}
		p = rp
	case TypeUserStatus:
		p = &UserStatusPayload{}
	case TypeChannelCreated, TypeChannelDeleted:
		p = &ChannelPayload{}
	case TypeError:
		p = &ErrorPayload{}
	default:
		return Event{}, fmt.Errorf("unknown frame type %q", f.Type)
	}

	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, p); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", f.Type, err)
		}
	}
	return Event{Type: f.Type, Payload: deref(p)}, nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *MessagePayload:
		return *v
	case *DeletePayload:
		return *v
	case *DirectMessagePayload:
		return *v
	case *DirectDeletePayload:
		return *v
	case *TypingPayload:
		return *v
	case *ReactionPayload:
		return *v
	case *UserStatusPayload:
		return *v
	case *ChannelPayload:
		return *v
	case *ErrorPayload:
		return *v
	}
	return p
}
