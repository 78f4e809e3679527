package lookup

import (
	"context"
	"errors"
	"sync"
	"time"

	"norskform_backend/internal/cache"
	"norskform_backend/platform/logger"
)

// Config holds the per-field engine settings.
type Config struct {
	// Debounce is the quiet window before a gated query is issued.
	Debounce time.Duration
	// Timeout bounds one adapter fetch; a hung upstream surfaces as error.
	Timeout time.Duration
}

// Engine drives one form field. All operations are safe for concurrent use;
// field state transitions are linearized under the engine mutex and follow
// request-issue order filtered by the latest-id-wins rule.
//
// Internally the engine moves through {idle, debouncing, in-flight, settled},
// driven only by query changes, timer fires, and fetch settles. The sequence
// counter serves double duty: a bump invalidates both the pending debounce
// timer and any in-flight fetch.
type Engine[R any] struct {
	adapter Adapter[R]
	store   cache.Store[R]
	gate    Gate
	cfg     Config
	log     *logger.Logger

	// onUpdate, when set, observes every visible result transition.
	onUpdate func(Result[R])

	mu       sync.Mutex
	seq      uint64
	timer    *time.Timer
	result   Result[R]
	failures int
	closed   bool
}

// NewEngine creates a field engine. The store decides the caching policy for
// this field's kind (memory/redis for reference data, null for PII lookups).
func NewEngine[R any](adapter Adapter[R], store cache.Store[R], gate Gate, cfg Config, log *logger.Logger) *Engine[R] {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Engine[R]{
		adapter: adapter,
		store:   store,
		gate:    gate,
		cfg:     cfg,
		log:     log,
		result:  Result[R]{Status: StatusIdle},
	}
}

// OnUpdate registers a callback invoked (outside the lock) after each
// visible result transition.
func (e *Engine[R]) OnUpdate(fn func(Result[R])) {
	e.mu.Lock()
	e.onUpdate = fn
	e.mu.Unlock()
}

// OnQueryChange records the latest raw input. A too-short query cancels any
// pending timer, obsoletes any in-flight request, and resets the field to
// idle. A query failing local format rules surfaces a validation error
// without touching the network. Otherwise the debounce timer restarts:
// only the most recently scheduled timer may fire (last-write-wins).
func (e *Engine[R]) OnQueryChange(raw string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	e.seq++
	e.stopTimerLocked()

	query, err := e.gate(raw)
	if errors.Is(err, ErrTooShort) {
		e.setResultLocked(Result[R]{Status: StatusIdle})
		return
	}
	if err != nil {
		e.setResultLocked(Result[R]{Status: StatusError, ErrDetail: err.Error(), Validation: true})
		return
	}

	gen := e.seq
	e.timer = time.AfterFunc(e.cfg.Debounce, func() {
		e.fire(gen, query)
	})
	e.mu.Unlock()
}

// fire runs when a debounce timer expires. A timer whose generation no
// longer matches was superseded and does nothing.
func (e *Engine[R]) fire(gen uint64, query string) {
	e.mu.Lock()
	if e.closed || gen != e.seq {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.mu.Unlock()

	go e.resolve(gen, query)
}

// resolve consults the cache and, on a miss, performs the network fetch.
// It owns no engine state: every write back is re-checked against the
// current sequence so a stale resolution can never reach the field.
func (e *Engine[R]) resolve(gen uint64, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()

	if data, ok := e.store.Get(ctx, query); ok {
		e.settle(gen, data, nil)
		return
	}

	e.markLoading(gen)

	data, err := e.adapter.Fetch(ctx, query)
	if err == nil {
		// A stale response may still populate the cache for its own key:
		// the value is valid data for that specific query. Failures are
		// never cached.
		e.store.Set(context.WithoutCancel(ctx), query, data)
	}
	e.settle(gen, data, err)
}

func (e *Engine[R]) markLoading(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.seq {
		e.mu.Unlock()
		return
	}
	e.setResultLocked(Result[R]{Status: StatusLoading})
}

// settle applies a completed resolution, unless a newer request has been
// issued since, in which case the result is discarded silently.
func (e *Engine[R]) settle(gen uint64, data []R, err error) {
	e.mu.Lock()
	if e.closed || gen != e.seq {
		e.mu.Unlock()
		return
	}

	switch {
	case errors.Is(err, ErrUnavailable):
		e.setResultLocked(Result[R]{Status: StatusUnavailable, ErrDetail: err.Error()})
	case err != nil:
		e.failures++
		if e.log != nil {
			e.log.UpstreamError(e.adapter.Kind(), "fetch", err)
		}
		e.setResultLocked(Result[R]{Status: StatusError, ErrDetail: err.Error()})
	case len(data) == 0:
		e.failures = 0
		e.setResultLocked(Result[R]{Status: StatusNotFound, Data: []R{}})
	default:
		e.failures = 0
		e.setResultLocked(Result[R]{Status: StatusSuccess, Data: data})
	}
}

// Select finishes the field after the user picks a record: the pending
// timer is cancelled, any in-flight request is obsoleted, and the field
// returns to idle. Cross-field cascades (clearing dependent fields) belong
// to the form, not the engine.
func (e *Engine[R]) Select() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.seq++
	e.stopTimerLocked()
	e.failures = 0
	e.setResultLocked(Result[R]{Status: StatusIdle})
}

// Cancel tears the field down. Pending timers are cancelled and any
// in-flight completion will be ignored.
func (e *Engine[R]) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.seq++
	e.stopTimerLocked()
}

// Snapshot returns the current result.
func (e *Engine[R]) Snapshot() Result[R] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Failures returns the consecutive transport-failure count for this field
// instance. The form layer consumes it to decide when to escalate from an
// inline error to a blocking manual-entry notice.
func (e *Engine[R]) Failures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}

func (e *Engine[R]) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// setResultLocked replaces the current result and releases the lock before
// notifying the observer.
func (e *Engine[R]) setResultLocked(r Result[R]) {
	e.result = r
	fn := e.onUpdate
	e.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}
