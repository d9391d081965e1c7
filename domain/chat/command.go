package chat

import (
	"github.com/google/uuid"
)

type Command interface {
	RoomID() RoomID
}

type PostMessageCommand struct {
	Room     RoomID `validate:"required"`
	SenderID string `validate:"required"`
	Content  string
}

func (p PostMessageCommand) RoomID() RoomID {
	return p.Room
}

type EditMessageCommand struct {
	MessageID   uuid.UUID `validate:"required"`
	RequesterID string    `validate:"required"`
	Content     string
}

type DeleteMessageCommand struct {
	MessageID   uuid.UUID `validate:"required"`
	RequesterID string    `validate:"required"`
}

type ToggleReactionCommand struct {
	MessageID uuid.UUID `validate:"required"`
	UserID    string    `validate:"required"`
	Emoji     string    `validate:"required"`
}

type MarkViewedCommand struct {
	MessageID uuid.UUID `validate:"required"`
	UserID    string    `validate:"required"`
}

type GetMessageCommand struct {
	Room   RoomID `validate:"required"`
	Cursor *string
}

func (p GetMessageCommand) RoomID() RoomID {
	return p.Room
}
