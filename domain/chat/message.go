// Package chat contains core concepts of the community chat.
// Rooms are scoped by college; messages, reactions and views belong to a room.
// No runtime, network, or storage logic should be added here.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// EditWindow is how long after creation the sender may still edit a message.
const EditWindow = 2 * time.Minute

// RoomID is the college name a room is scoped to.
type RoomID string

// Message is a chat line posted in a room.
// Content is never empty after trimming and Edited never reverts to false.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Room      RoomID    `json:"room"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Edited    bool      `json:"edited"`
}

// EditableAt reports whether the message may still be edited at the given instant.
// The boundary is inclusive: an edit exactly EditWindow after creation is accepted.
func (m Message) EditableAt(now time.Time) bool {
	return now.Sub(m.CreatedAt) <= EditWindow
}

// Reaction is unique per (message, user, emoji).
type Reaction struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// View is a read receipt, unique per (message, viewer).
type View struct {
	MessageID uuid.UUID `json:"message_id"`
	ViewerID  string    `json:"viewer_id"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// Views is the distinct set of viewers of a message.
type Views struct {
	MessageID uuid.UUID `json:"message_id"`
	Viewers   []string  `json:"viewers"`
	Count     int       `json:"count"`
}

// ToggleAction tells whether a reaction toggle created or removed the row.
type ToggleAction string

const (
	ReactionAdded   ToggleAction = "added"
	ReactionRemoved ToggleAction = "removed"
)

// Identity is what the identity collaborator knows about a user.
type Identity struct {
	UserID   string
	College  RoomID
	Verified bool
}

// IsMemberOf reports whether the user is a verified member of the room's college.
func (i Identity) IsMemberOf(room RoomID) bool {
	return i.Verified && i.College == room
}
