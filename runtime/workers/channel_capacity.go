package workers

import (
	"campus-chat/domain/event"
	"campus-chat/observability"
	"context"
	"log/slog"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel <-chan event.DomainEvent
}

// ChannelCapacityWorker periodically samples how many events wait in each queue.
// Reading len(channel) is non-blocking, so this won't interfere with the fanout.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metrics        *observability.Metrics
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, metrics *observability.Metrics,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		metrics:        metrics,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping queue sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w ChannelCapacityWorker) sample() {
	for _, nc := range w.channels {
		length := len(nc.Channel)
		w.metrics.SetQueueLength(nc.Name, length)
		// A queue close to full means Publish callers are about to block
		if c := cap(nc.Channel); c > 0 && length*10 >= c*9 {
			w.log.Warn("Dispatcher queue almost full", "queue", nc.Name, "length", length, "capacity", c)
		}
	}
}
