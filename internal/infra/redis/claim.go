package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultClaimTTL = 10 * time.Minute
	claimKeyPrefix  = "dispatch:claim:"
)

// DispatchClaimer marks a (type, dedupe, recipient) tuple as being handled so
// an overlapping trigger skips it while the first one is still running.
type DispatchClaimer struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewDispatchClaimer(client *goredis.Client, ttl time.Duration) (*DispatchClaimer, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &DispatchClaimer{client: client, ttl: ttl}, nil
}

// Claim returns true when the caller now owns key, false when another run holds it.
func (c *DispatchClaimer) Claim(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("claim key is required")
	}

	ok, err := c.client.SetNX(ctx, claimKeyPrefix+key, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %q: %w", key, err)
	}
	return ok, nil
}
