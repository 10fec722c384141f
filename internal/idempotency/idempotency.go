package idempotency

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyTTL = 24 * time.Hour

// Guard rejects replays of admin broadcast requests carrying the same
// idempotency key.
type Guard struct {
	client *redis.Client
}

func NewGuard(client *redis.Client) *Guard {
	return &Guard{client: client}
}

// IsDuplicate reports whether key has been seen within the TTL. The check
// uses SETNX so concurrent requests with the same key resolve to exactly one
// winner. A nil guard (Redis not configured) treats everything as new.
func (g *Guard) IsDuplicate(ctx context.Context, key string) (bool, error) {
	if g == nil || g.client == nil {
		return false, nil
	}
	wasSet, err := g.client.SetNX(ctx, "idempotency:"+key, "processed", keyTTL).Result()
	if err != nil {
		return false, err
	}
	return !wasSet, nil
}
