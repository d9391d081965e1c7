// Package runtime holds the live side of the chat: who is connected, which room they
// listen to and how events reach them. It carries no business rule.
package runtime

import (
	"campus-chat/contract"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/observability"
	"campus-chat/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

var _ contract.Publisher = (*Orchestrator)(nil)

// Orchestrator is the broadcast dispatcher.
// Events are split across shards, one fanout worker each, and a room is
// always hashed to the same shard. This keeps per-room ordering while rooms
// on different shards are delivered in parallel.
type Orchestrator struct {
	mu          sync.Mutex
	log         *slog.Logger
	supervisor  contract.ISupervisor
	registry    contract.IRegistry
	shards      []chan event.DomainEvent
	sinkTimeout time.Duration
	metrics     *observability.Metrics
	started     bool
	cancel      context.CancelFunc
	stopped     chan struct{}
	stopOnce    sync.Once

	sampleInterval time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, numShards, bufferSize int,
	sinkTimeout time.Duration, metrics *observability.Metrics) *Orchestrator {
	if numShards < 1 {
		numShards = 1
	}
	shards := make([]chan event.DomainEvent, numShards)
	for i := range shards {
		shards[i] = make(chan event.DomainEvent, bufferSize)
	}
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		registry:    registry,
		shards:      shards,
		sinkTimeout: sinkTimeout,
		metrics:     metrics,
		stopped:     make(chan struct{}),
	}
}

// Publish enqueues an event for delivery. It blocks while the shard is full,
// so a caller never loses an event silently: either it is queued in publish
// order or an error is returned.
func (o *Orchestrator) Publish(ctx context.Context, e event.DomainEvent) error {
	shard := o.shards[o.shardOf(e)]
	select {
	case <-o.stopped:
		return errors.ErrDispatcherStopped
	default:
	}
	select {
	case shard <- e:
		o.log.Debug("Event published", "kind", e.Kind(), "room", e.RoomID())
		return nil
	case <-o.stopped:
		return errors.ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) shardOf(e event.DomainEvent) uint64 {
	return xxhash.Sum64String(string(e.RoomID())) % uint64(len(o.shards))
}

// WithQueueSampling reports the length of every shard queue at the given interval.
// It must be called before Start.
func (o *Orchestrator) WithQueueSampling(interval time.Duration) *Orchestrator {
	o.sampleInterval = interval
	return o
}

// Start registers one fanout worker per shard and runs them under supervision.
// It returns immediately, workers live until Stop or ctx is done.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	queues := make([]workers.NamedChannel, 0, len(o.shards))
	for i, shard := range o.shards {
		o.supervisor.Add(workers.NewEventFanout(o.log, o.registry, shard, o.sinkTimeout, o.metrics))
		queues = append(queues, workers.NamedChannel{Name: fmt.Sprintf("shard-%d", i), Channel: shard})
	}
	if o.sampleInterval > 0 {
		o.supervisor.Add(workers.NewChannelCapacityWorker(o.log, queues, o.metrics, o.sampleInterval))
	}
	o.mu.Unlock()

	o.log.Info("Starting dispatcher", "shards", len(o.shards))
	go o.supervisor.Run(ctx)
}

// Stop refuses new events and cancels the fanout workers.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.log.Info("Requesting dispatcher shutdown")
		close(o.stopped)
		o.mu.Lock()
		if o.cancel != nil {
			o.cancel()
		}
		o.mu.Unlock()
		o.supervisor.Stop()
	})
}
