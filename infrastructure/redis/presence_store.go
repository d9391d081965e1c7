// Package redis mirrors the presence table so other processes can read it.
package redis

import (
	"campus-chat/contract"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKey = "presence:connections"

var _ contract.PresenceStore = (*PresenceStore)(nil)

// PresenceStore keeps connection -> user in one hash.
// It is a read model only, the in-process tracker stays authoritative.
type PresenceStore struct {
	client *redis.Client
}

func NewClient(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func (p *PresenceStore) Set(ctx context.Context, connectionID, userID string) error {
	return p.client.HSet(ctx, presenceKey, connectionID, userID).Err()
}

func (p *PresenceStore) Remove(ctx context.Context, connectionID string) error {
	return p.client.HDel(ctx, presenceKey, connectionID).Err()
}

// Online is the number of connections known to the mirror.
func (p *PresenceStore) Online(ctx context.Context) (int64, error) {
	return p.client.HLen(ctx, presenceKey).Result()
}

// Clear drops the mirror, used at startup since connections do not survive a restart.
func (p *PresenceStore) Clear(ctx context.Context) error {
	return p.client.Del(ctx, presenceKey).Err()
}
