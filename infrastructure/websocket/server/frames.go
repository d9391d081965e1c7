package server

import (
	"campus-chat/domain/chat"
	"campus-chat/errors"
)

// Client frame types.
const (
	joinFrame     = "join"
	leaveFrame    = "leave"
	announceFrame = "announce"
	sendFrame     = "send_message"
	editFrame     = "edit_message"
	deleteFrame   = "delete_message"
	reactFrame    = "react"
	viewFrame     = "view"
)

// clientFrame is every action a client can send.
// Ref is echoed back so the client can match replies to requests.
type clientFrame struct {
	Type      string      `json:"type"`
	Ref       string      `json:"ref,omitempty"`
	Room      chat.RoomID `json:"room,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	Content   string      `json:"content,omitempty"`
	Emoji     string      `json:"emoji,omitempty"`
}

// ackFrame confirms an action to the connection that sent it.
// Room events still arrive separately through the broadcast.
type ackFrame struct {
	Type   string `json:"type"`
	Ref    string `json:"ref,omitempty"`
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ack(frame clientFrame, data any) ackFrame {
	return ackFrame{Type: "ack", Ref: frame.Ref, Action: frame.Type, Data: data}
}

func failure(ref string, err error) errorFrame {
	return errorFrame{Type: "error", Ref: ref, Code: errors.Code(err), Message: errors.PublicMessage(err)}
}
