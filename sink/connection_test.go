package sink

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConnection_Consume_Encodes_Envelope(t *testing.T) {
	req := require.New(t)
	conn := NewConnection("c1", slog.Default(), 4)
	id := uuid.New()

	req.NoError(conn.Consume(context.Background(), event.MessageDeleted{Room: "MIT", MessageID: id}))

	frame := <-conn.Frames()
	var envelope struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Data struct {
			MessageID string `json:"message_id"`
		} `json:"data"`
	}
	req.NoError(json.Unmarshal(frame, &envelope))
	req.Equal("message_deleted", envelope.Type)
	req.Equal("MIT", envelope.Room)
	req.Equal(id.String(), envelope.Data.MessageID)
}

func TestConnection_Slow_Consumer_Is_Closed(t *testing.T) {
	req := require.New(t)
	conn := NewConnection("c1", slog.Default(), 1)
	evt := event.MessagePosted{Message: chat.Message{Room: "MIT", Content: "hello"}}

	// Given a buffer already full
	req.NoError(conn.Consume(context.Background(), evt))

	// When another event arrives
	err := conn.Consume(context.Background(), evt)

	// Then the connection is dropped instead of blocking the dispatcher
	req.ErrorIs(err, errors.ErrSlowConsumer)
	select {
	case <-conn.Done():
	default:
		req.Fail("Connection should be closed")
	}
	req.ErrorIs(conn.Consume(context.Background(), evt), errors.ErrConnectionClosed)
}

func TestConnection_Close_Is_Idempotent(t *testing.T) {
	conn := NewConnection("c1", slog.Default(), 1)
	conn.Close()
	conn.Close()
	require.ErrorIs(t, conn.Send(map[string]string{"type": "pong"}), errors.ErrConnectionClosed)
}
