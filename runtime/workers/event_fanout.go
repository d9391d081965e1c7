package workers

import (
	"campus-chat/contract"
	"campus-chat/domain/event"
	"campus-chat/observability"
	"context"
	"log/slog"
	"time"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout delivers the events of one dispatcher shard to the connections
// subscribed to the event's room.
//
// A shard is consumed by exactly one EventFanout, and every room always maps to
// the same shard, so events of a room reach each subscriber in publish order.
// Delivery is best-effort per connection: a sink that fails or exceeds
// sinkTimeout is skipped and the other subscribers still get the event.
type EventFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	events      <-chan event.DomainEvent
	sinkTimeout time.Duration
	metrics     *observability.Metrics
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry,
	events <-chan event.DomainEvent, sinkTimeout time.Duration,
	metrics *observability.Metrics) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		events:      events,
		sinkTimeout: sinkTimeout,
		metrics:     metrics,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout pushes one event to every current subscriber of its room,
// or to every connection when the event is global.
// Publishing to a room with no subscriber is a no-op.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	var sinks []contract.EventSink
	if evt.RoomID() == "" {
		sinks = w.registry.AllSinks()
	} else {
		sinks = w.registry.GetSinksForRoom(evt.RoomID())
	}

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		err := sink.Consume(sinkCtx, evt)
		cancel()
		if err != nil {
			w.log.Warn("Delivery skipped",
				"kind", evt.Kind(),
				"room", evt.RoomID(),
				"error", err)
		}
		w.metrics.ObserveDelivery(string(evt.Kind()), err == nil)
	}
}
