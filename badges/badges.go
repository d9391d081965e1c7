// Package badges observes successful posts for achievement counters.
// Observers run after the write and never affect the outcome of an action,
// so they must not block.
package badges

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"context"
	"sync"
)

var (
	_ contract.BadgeObserver = (*Counter)(nil)
	_ contract.BadgeObserver = Multi(nil)
)

// Counter keeps the number of posts of each user in each room.
type Counter struct {
	mu     sync.RWMutex
	counts map[chat.RoomID]map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[chat.RoomID]map[string]int)}
}

func (c *Counter) MessagePosted(_ context.Context, msg chat.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counts[msg.Room]; !ok {
		c.counts[msg.Room] = make(map[string]int)
	}
	c.counts[msg.Room][msg.SenderID]++
}

func (c *Counter) Posts(room chat.RoomID, userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[room][userID]
}

// Multi notifies every observer in order.
type Multi []contract.BadgeObserver

func (m Multi) MessagePosted(ctx context.Context, msg chat.Message) {
	for _, observer := range m {
		observer.MessagePosted(ctx, msg)
	}
}
