// Package lookup implements the debounced, cancellable, cache-aware
// external-lookup engine shared by every autocomplete/validation field
// (municipality, street, house number, phone owner, postal code).
//
// The engine turns a rapid stream of input changes into a minimal, race-free
// series of backend calls: at most one observable in-flight request per
// field, last-write-wins debounce, and strict "latest request id wins"
// delivery so an out-of-order response can never overwrite a newer result.
package lookup

import (
	"context"
	"errors"
	"strings"
)

// Status is the field-visible lookup state.
type Status string

const (
	// StatusIdle means no lookup is pending or wanted.
	StatusIdle Status = "idle"
	// StatusLoading means a request is in flight.
	StatusLoading Status = "loading"
	// StatusSuccess means the latest request returned records.
	StatusSuccess Status = "success"
	// StatusNotFound means the latest request returned zero records.
	// This is a legitimate terminal state, not an error.
	StatusNotFound Status = "not-found"
	// StatusError means the latest request failed (transport, non-2xx,
	// malformed payload) or the input failed local validation.
	StatusError Status = "error"
	// StatusUnavailable means the backend explicitly signalled degraded
	// mode; the field should offer manual entry rather than a retry.
	StatusUnavailable Status = "unavailable"
)

// Result is the single coherent state presented to the form for one field.
// Exactly one Result is current per field; it is replaced atomically when a
// newer request resolves.
type Result[R any] struct {
	Status Status `json:"status"`
	Data   []R    `json:"data,omitempty"`
	// ErrDetail carries the raw failure or validation reason for display.
	ErrDetail string `json:"error,omitempty"`
	// Validation marks ErrDetail as a local input-format failure detected
	// before any network call, distinct from a lookup error.
	Validation bool `json:"validation,omitempty"`
}

// ErrUnavailable is returned (or wrapped) by adapters to signal an explicit
// degraded/fallback response, distinct from a hard transport failure.
var ErrUnavailable = errors.New("lookup service unavailable")

// ErrTooShort is returned by gates when the input has not reached the
// field's minimum searchable length. The engine resets to idle.
var ErrTooShort = errors.New("query below minimum length")

// Adapter maps a gated query to an outbound request and the backend's raw
// payload into normalized records. Adapters never return an error for "no
// results" (empty slice instead); they may only fail for transport or
// protocol reasons, or return ErrUnavailable for degraded mode.
type Adapter[R any] interface {
	// Kind names the lookup for logging and cache namespacing.
	Kind() string
	// Fetch performs one lookup. The context carries the request timeout.
	Fetch(ctx context.Context, query string) ([]R, error)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc[R any] struct {
	Name string
	Fn   func(ctx context.Context, query string) ([]R, error)
}

func (a AdapterFunc[R]) Kind() string { return a.Name }

func (a AdapterFunc[R]) Fetch(ctx context.Context, query string) ([]R, error) {
	return a.Fn(ctx, query)
}

// Gate normalizes raw input into the query actually sent to the backend.
// It returns ErrTooShort when the field should sit idle, or a validation
// error when the input fails local format rules.
type Gate func(raw string) (string, error)

// MinLengthGate accepts trimmed input of at least n runes.
func MinLengthGate(n int) Gate {
	return func(raw string) (string, error) {
		trimmed := strings.TrimSpace(raw)
		if len([]rune(trimmed)) < n {
			return "", ErrTooShort
		}
		return trimmed, nil
	}
}
