package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores lookup results in redis so slow-changing reference data
// (municipalities, streets, postal places) survives restarts and is shared
// across instances. Values are JSON; expiry is delegated to redis.
//
// A redis or decode failure is reported as a plain cache miss: the cache
// must never turn a lookup into an error.
type Redis[R any] struct {
	client redis.UniversalClient
	kind   string
	ttl    time.Duration
}

// NewRedis creates a redis-backed store for one lookup kind.
func NewRedis[R any](client redis.UniversalClient, kind string, ttl time.Duration) *Redis[R] {
	return &Redis[R]{client: client, kind: kind, ttl: ttl}
}

func (r *Redis[R]) key(key string) string {
	return "lookup:" + r.kind + ":" + key
}

// Get returns the cached value for key, or false when absent, expired, or
// unreadable.
func (r *Redis[R]) Get(ctx context.Context, key string) ([]R, bool) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}

	var value []R
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Set stores value under key with the kind's TTL. Failures are swallowed;
// the next identical lookup simply goes to the network again.
func (r *Redis[R]) Set(ctx context.Context, key string, value []R) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	r.client.Set(ctx, r.key(key), raw, r.ttl)
}
