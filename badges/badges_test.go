package badges

import (
	"campus-chat/domain/chat"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, msgs...)
	return w.err
}

func TestCounter_And_Multi(t *testing.T) {
	req := require.New(t)
	first, second := NewCounter(), NewCounter()
	observer := Multi{first, second}
	ctx := context.Background()

	observer.MessagePosted(ctx, chat.Message{Room: "MIT", SenderID: "alice"})
	observer.MessagePosted(ctx, chat.Message{Room: "MIT", SenderID: "alice"})
	observer.MessagePosted(ctx, chat.Message{Room: "Stanford", SenderID: "alice"})

	req.Equal(2, first.Posts("MIT", "alice"))
	req.Equal(2, second.Posts("MIT", "alice"))
	req.Equal(1, first.Posts("Stanford", "alice"))
	req.Zero(first.Posts("MIT", "bob"))
}

func TestKafkaObserver_Publishes_Post(t *testing.T) {
	req := require.New(t)
	writer := &recordingWriter{}
	observer := NewKafkaObserver(slog.Default(), writer)
	msg := chat.Message{
		ID:        uuid.New(),
		Room:      "MIT",
		SenderID:  "alice",
		Content:   "hello",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	observer.MessagePosted(context.Background(), msg)

	req.Len(writer.messages, 1)
	req.Equal([]byte("alice"), writer.messages[0].Key)
	var published PostEvent
	req.NoError(json.Unmarshal(writer.messages[0].Value, &published))
	req.Equal(msg.ID, published.MessageID)
	req.Equal(msg.Room, published.Room)
	req.True(msg.CreatedAt.Equal(published.At))
	// Content is not part of the badge record
	req.NotContains(string(writer.messages[0].Value), "hello")
}

func TestKafkaObserver_Failure_Is_Swallowed(t *testing.T) {
	writer := &recordingWriter{err: fmt.Errorf("broker unreachable")}
	observer := NewKafkaObserver(slog.Default(), writer)

	require.NotPanics(t, func() {
		observer.MessagePosted(context.Background(), chat.Message{ID: uuid.New(), Room: "MIT", SenderID: "alice"})
	})
}
