package runtime

import (
	"campus-chat/contract"
	"campus-chat/domain/event"
	"campus-chat/observability"
	"context"
	"log/slog"
	"sync"
)

// Presence is the process-wide connection -> user table.
// It only feeds the online counter and is never used to authorize anything.
type Presence struct {
	mu        sync.Mutex
	log       *slog.Logger
	users     map[string]string
	publisher contract.Publisher
	store     contract.PresenceStore
	metrics   *observability.Metrics
}

// NewPresence builds the tracker. store is optional and mirrors the table elsewhere.
func NewPresence(log *slog.Logger, publisher contract.Publisher,
	store contract.PresenceStore, metrics *observability.Metrics) *Presence {
	return &Presence{
		log:       log,
		users:     make(map[string]string),
		publisher: publisher,
		store:     store,
		metrics:   metrics,
	}
}

// Announce records who is behind a connection and broadcasts the new total.
// Announcing again from the same connection replaces the user, the total is unchanged.
// The mirror is written under the lock, like Forget, so it never outlives the entry.
func (p *Presence) Announce(ctx context.Context, connectionID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[connectionID] = userID

	if p.store != nil {
		if err := p.store.Set(ctx, connectionID, userID); err != nil {
			p.log.Warn("Presence mirror failed", "connection", connectionID, "error", err)
		}
	}
	return p.broadcastLocked(ctx)
}

// Forget drops a connection on disconnect.
// Nothing is broadcast for a connection that never announced itself.
func (p *Presence) Forget(ctx context.Context, connectionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[connectionID]; !ok {
		return nil
	}
	delete(p.users, connectionID)

	if p.store != nil {
		if err := p.store.Remove(ctx, connectionID); err != nil {
			p.log.Warn("Presence mirror failed", "connection", connectionID, "error", err)
		}
	}
	return p.broadcastLocked(ctx)
}

func (p *Presence) Online() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}

// broadcastLocked publishes while holding the table lock
// so the last count on the wire is always the current one.
func (p *Presence) broadcastLocked(ctx context.Context) error {
	count := len(p.users)
	p.metrics.SetOnline(count)
	return p.publisher.Publish(ctx, event.OnlineCount{Count: count})
}
