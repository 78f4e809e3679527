package cache

import "context"

// Null never stores anything. It backs phone-owner lookups, which are keyed
// by personally identifying input and must not persist between sessions.
type Null[R any] struct{}

// NewNull creates a store that always misses.
func NewNull[R any]() *Null[R] {
	return &Null[R]{}
}

// Get always reports a miss.
func (n *Null[R]) Get(context.Context, string) ([]R, bool) {
	return nil, false
}

// Set discards the value.
func (n *Null[R]) Set(context.Context, string, []R) {}
