package badges

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ contract.BadgeObserver = (*KafkaObserver)(nil)

// MessageWriter is the part of *kafka.Writer the observer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// PostEvent is the record published for every successful post.
type PostEvent struct {
	Type      string      `json:"type"`
	MessageID uuid.UUID   `json:"message_id"`
	Room      chat.RoomID `json:"room"`
	UserID    string      `json:"user_id"`
	At        time.Time   `json:"at"`
}

// KafkaObserver forwards posts to a topic consumed by the badge service.
// The writer is expected to be asynchronous, failures are only logged.
type KafkaObserver struct {
	log    *slog.Logger
	writer MessageWriter
}

func NewKafkaObserver(log *slog.Logger, writer MessageWriter) *KafkaObserver {
	return &KafkaObserver{log: log, writer: writer}
}

// NewKafkaWriter builds an async writer keyed by user, so the posts of one
// user stay on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
	}
}

func (k *KafkaObserver) MessagePosted(ctx context.Context, msg chat.Message) {
	value, err := json.Marshal(PostEvent{
		Type:      "message_posted",
		MessageID: msg.ID,
		Room:      msg.Room,
		UserID:    msg.SenderID,
		At:        msg.CreatedAt,
	})
	if err != nil {
		k.log.Warn("Badge event not encoded", "message_id", msg.ID, "error", err)
		return
	}
	err = k.writer.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Key:   []byte(msg.SenderID),
		Value: value,
		Time:  msg.CreatedAt,
	})
	if err != nil {
		k.log.Warn("Badge event not published", "message_id", msg.ID, "error", err)
	}
}
