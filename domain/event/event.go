package event

import (
	"campus-chat/domain/chat"

	"github.com/google/uuid"
)

// Kind is the wire name of an event, as seen by subscribed clients.
type Kind string

const (
	NewMessageKind      Kind = "new_message"
	MessageUpdatedKind  Kind = "message_updated"
	MessageDeletedKind  Kind = "message_deleted"
	MessageReactionKind Kind = "message_reaction"
	MessageViewedKind   Kind = "message_viewed"
	OnlineCountKind     Kind = "online_count"
)

// DomainEvent is published once the storage write it describes has succeeded.
// An empty RoomID means the event is global and goes to every connection.
type DomainEvent interface {
	RoomID() chat.RoomID
	Kind() Kind
	Payload() any
}

type MessagePosted struct {
	Message chat.Message
}

func (m MessagePosted) RoomID() chat.RoomID { return m.Message.Room }
func (m MessagePosted) Kind() Kind          { return NewMessageKind }
func (m MessagePosted) Payload() any        { return m.Message }

type MessageUpdated struct {
	Message chat.Message
}

func (m MessageUpdated) RoomID() chat.RoomID { return m.Message.Room }
func (m MessageUpdated) Kind() Kind          { return MessageUpdatedKind }
func (m MessageUpdated) Payload() any        { return m.Message }

// MessageDeleted only carries the id, clients drop the message locally.
type MessageDeleted struct {
	Room      chat.RoomID
	MessageID uuid.UUID
}

type MessageDeletedPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

func (m MessageDeleted) RoomID() chat.RoomID { return m.Room }
func (m MessageDeleted) Kind() Kind          { return MessageDeletedKind }
func (m MessageDeleted) Payload() any {
	return MessageDeletedPayload{MessageID: m.MessageID}
}

type ReactionToggled struct {
	Room      chat.RoomID
	MessageID uuid.UUID
	UserID    string
	Emoji     string
	Action    chat.ToggleAction
}

type ReactionPayload struct {
	MessageID uuid.UUID        `json:"message_id"`
	Reaction  ReactionSnapshot `json:"reaction"`
}

type ReactionSnapshot struct {
	UserID string            `json:"user_id"`
	Emoji  string            `json:"emoji"`
	Action chat.ToggleAction `json:"action"`
}

func (r ReactionToggled) RoomID() chat.RoomID { return r.Room }
func (r ReactionToggled) Kind() Kind          { return MessageReactionKind }
func (r ReactionToggled) Payload() any {
	return ReactionPayload{
		MessageID: r.MessageID,
		Reaction:  ReactionSnapshot{UserID: r.UserID, Emoji: r.Emoji, Action: r.Action},
	}
}

type MessageViewed struct {
	Room      chat.RoomID
	MessageID uuid.UUID
	ViewerID  string
}

type ViewPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	ViewerID  string    `json:"viewer_id"`
}

func (m MessageViewed) RoomID() chat.RoomID { return m.Room }
func (m MessageViewed) Kind() Kind          { return MessageViewedKind }
func (m MessageViewed) Payload() any {
	return ViewPayload{MessageID: m.MessageID, ViewerID: m.ViewerID}
}

// OnlineCount is global: it is delivered to every live connection.
type OnlineCount struct {
	Count int
}

type OnlineCountPayload struct {
	Count int `json:"count"`
}

func (o OnlineCount) RoomID() chat.RoomID { return "" }
func (o OnlineCount) Kind() Kind          { return OnlineCountKind }
func (o OnlineCount) Payload() any        { return OnlineCountPayload{Count: o.Count} }

// Envelope is the frame pushed to clients for every event.
type Envelope struct {
	Type Kind        `json:"type"`
	Room chat.RoomID `json:"room,omitempty"`
	Data any         `json:"data"`
}

func ToEnvelope(e DomainEvent) Envelope {
	return Envelope{Type: e.Kind(), Room: e.RoomID(), Data: e.Payload()}
}
