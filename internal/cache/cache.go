// Package cache provides the session-scoped lookup result cache consulted
// before any outbound lookup request. Entries are immutable once stored and
// a new fetch for the same key overwrites rather than mutates. Only
// successful fetches are ever stored; an empty stored value is a legitimate
// "no results" answer and replays as such.
package cache

import "context"

// Store is a TTL-bounded key/value store for one lookup kind.
// Implementations must be safe for concurrent use by multiple fields.
type Store[R any] interface {
	// Get returns the cached value for key, or false when absent or expired.
	Get(ctx context.Context, key string) ([]R, bool)
	// Set stores value under key, replacing any previous entry.
	Set(ctx context.Context, key string, value []R)
}
