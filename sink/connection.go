// Package sink holds the event sinks the dispatcher delivers to.
package sink

import (
	"campus-chat/contract"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"context"
	"log/slog"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ contract.EventSink = (*Connection)(nil)

// Connection is the outbound side of one live client.
// Frames are queued in a bounded buffer drained by the transport writer.
// Consume never blocks: a client that cannot keep up is closed and skipped.
type Connection struct {
	id        string
	log       *slog.Logger
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(id string, log *slog.Logger, bufferSize int) *Connection {
	return &Connection{
		id:     id,
		log:    log,
		frames: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

// Frames is read by the transport writer until Done is closed.
func (c *Connection) Frames() <-chan []byte { return c.frames }

func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) Consume(_ context.Context, e event.DomainEvent) error {
	return c.Send(event.ToEnvelope(e))
}

// Send queues any frame, replies and errors included.
func (c *Connection) Send(frame any) error {
	bytes, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.frames <- bytes:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
		c.log.Warn("Slow consumer dropped", "connection", c.id)
		c.Close()
		return errors.ErrSlowConsumer
	}
}

// Close is idempotent. The frames channel stays open so a late Send never panics.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
