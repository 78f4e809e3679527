package lookup

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"norskform_backend/internal/cache"
)

type record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

const testDebounce = 20 * time.Millisecond

// countingAdapter counts fetches and delegates to fn.
type countingAdapter struct {
	calls int64
	fn    func(ctx context.Context, query string) ([]record, error)
}

func (a *countingAdapter) Kind() string { return "test" }

func (a *countingAdapter) Fetch(ctx context.Context, query string) ([]record, error) {
	atomic.AddInt64(&a.calls, 1)
	return a.fn(ctx, query)
}

func (a *countingAdapter) count() int64 {
	return atomic.LoadInt64(&a.calls)
}

// newTestEngine builds an engine with a short debounce and an update channel
// so tests can wait for transitions instead of sleeping blindly.
func newTestEngine(t *testing.T, adapter Adapter[record], store cache.Store[record], gate Gate) (*Engine[record], chan Result[record]) {
	t.Helper()
	if store == nil {
		store = cache.NewNull[record]()
	}
	if gate == nil {
		gate = MinLengthGate(2)
	}
	eng := NewEngine(adapter, store, gate, Config{Debounce: testDebounce, Timeout: time.Second}, nil)
	updates := make(chan Result[record], 32)
	eng.OnUpdate(func(r Result[record]) {
		updates <- r
	})
	t.Cleanup(eng.Cancel)
	return eng, updates
}

// awaitStatus drains updates until the wanted status appears.
func awaitStatus(t *testing.T, updates chan Result[record], want Status) Result[record] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case r := <-updates:
			if r.Status == want {
				return r
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestEngineDeliversDebouncedResult(t *testing.T) {
	adapter := &countingAdapter{fn: func(_ context.Context, query string) ([]record, error) {
		if strings.HasPrefix("oslo", strings.ToLower(query)) {
			return []record{{ID: "0301", Name: "Oslo"}}, nil
		}
		return nil, nil
	}}
	eng, updates := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("Osl")

	got := awaitStatus(t, updates, StatusSuccess)
	if len(got.Data) != 1 || got.Data[0].ID != "0301" || got.Data[0].Name != "Oslo" {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
	if adapter.count() != 1 {
		t.Fatalf("expected exactly one fetch, got %d", adapter.count())
	}
}

func TestEngineDebounceCoalescesRapidInput(t *testing.T) {
	adapter := &countingAdapter{fn: func(_ context.Context, query string) ([]record, error) {
		return []record{{ID: query, Name: query}}, nil
	}}
	eng, updates := newTestEngine(t, adapter, nil, nil)

	// Keystrokes arrive faster than the debounce window.
	eng.OnQueryChange("Os")
	eng.OnQueryChange("Osl")
	eng.OnQueryChange("Oslo")

	got := awaitStatus(t, updates, StatusSuccess)
	if got.Data[0].ID != "Oslo" {
		t.Fatalf("expected only the final query to fire, got %q", got.Data[0].ID)
	}
	if adapter.count() != 1 {
		t.Fatalf("expected one fetch after coalescing, got %d", adapter.count())
	}
}

func TestEngineStaleResponseNeverWins(t *testing.T) {
	slow := make(chan struct{})
	adapter := &countingAdapter{fn: func(_ context.Context, query string) ([]record, error) {
		if query == "first" {
			<-slow
		}
		return []record{{ID: query, Name: query}}, nil
	}}
	eng, updates := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("first")
	awaitStatus(t, updates, StatusLoading)

	eng.OnQueryChange("second")
	got := awaitStatus(t, updates, StatusSuccess)
	if got.Data[0].ID != "second" {
		t.Fatalf("expected newest result, got %q", got.Data[0].ID)
	}

	// Let the older request finish after the newer one settled.
	close(slow)
	time.Sleep(50 * time.Millisecond)

	final := eng.Snapshot()
	if final.Status != StatusSuccess || final.Data[0].ID != "second" {
		t.Fatalf("stale response overwrote newer result: %+v", final)
	}
}

func TestEngineStaleSuccessStillPopulatesOwnCacheKey(t *testing.T) {
	slow := make(chan struct{})
	adapter := &countingAdapter{fn: func(_ context.Context, query string) ([]record, error) {
		if query == "first" {
			<-slow
		}
		return []record{{ID: query, Name: query}}, nil
	}}
	store := cache.NewMemory[record](time.Hour)
	eng, updates := newTestEngine(t, adapter, store, nil)

	eng.OnQueryChange("first")
	awaitStatus(t, updates, StatusLoading)
	eng.OnQueryChange("second")
	awaitStatus(t, updates, StatusSuccess)

	close(slow)
	time.Sleep(50 * time.Millisecond)

	// The superseded response is still valid data for its own key.
	if cached, ok := store.Get(context.Background(), "first"); !ok || cached[0].ID != "first" {
		t.Fatalf("expected stale success to be cached under its own key, got %v %v", cached, ok)
	}
}

func TestEngineCacheHitSkipsAdapter(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return nil, errors.New("network must not be touched")
	}}
	store := cache.NewMemory[record](time.Hour)
	store.Set(context.Background(), "Oslo", []record{{ID: "0301", Name: "Oslo"}})
	eng, updates := newTestEngine(t, adapter, store, nil)

	eng.OnQueryChange("Oslo")

	got := awaitStatus(t, updates, StatusSuccess)
	if got.Data[0].ID != "0301" {
		t.Fatalf("unexpected cached data: %+v", got.Data)
	}
	if adapter.count() != 0 {
		t.Fatalf("cache hit must not invoke the adapter, got %d calls", adapter.count())
	}
}

func TestEngineCachedEmptyReplaysAsNotFound(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return nil, errors.New("network must not be touched")
	}}
	store := cache.NewMemory[record](time.Hour)
	store.Set(context.Background(), "Oslo", []record{})
	eng, updates := newTestEngine(t, adapter, store, nil)

	eng.OnQueryChange("Oslo")

	awaitStatus(t, updates, StatusNotFound)
	if adapter.count() != 0 {
		t.Fatalf("cache hit must not invoke the adapter, got %d calls", adapter.count())
	}
}

func TestEngineShortQueryStaysIdle(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return []record{{ID: "x"}}, nil
	}}
	eng, _ := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("O")
	time.Sleep(3 * testDebounce)

	if got := eng.Snapshot(); got.Status != StatusIdle {
		t.Fatalf("expected idle for short query, got %q", got.Status)
	}
	if adapter.count() != 0 {
		t.Fatalf("short query must not schedule a lookup, got %d calls", adapter.count())
	}
}

func TestEngineShortQueryCancelsPendingLookup(t *testing.T) {
	adapter := &countingAdapter{fn: func(_ context.Context, query string) ([]record, error) {
		return []record{{ID: query}}, nil
	}}
	eng, _ := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("Oslo")
	// Backspacing below the gate before the debounce fires.
	eng.OnQueryChange("O")
	time.Sleep(3 * testDebounce)

	if got := eng.Snapshot(); got.Status != StatusIdle {
		t.Fatalf("expected idle after query shrank, got %q", got.Status)
	}
	if adapter.count() != 0 {
		t.Fatalf("cancelled debounce must not fetch, got %d calls", adapter.count())
	}
}

func TestEngineValidationErrorBeforeAnyNetworkCall(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return []record{{ID: "x"}}, nil
	}}
	badPrefix := errors.New("country code prefix not allowed")
	gate := func(raw string) (string, error) {
		if strings.HasPrefix(raw, "+") {
			return "", badPrefix
		}
		return raw, nil
	}
	eng, updates := newTestEngine(t, adapter, nil, gate)

	eng.OnQueryChange("+4712345678")

	got := awaitStatus(t, updates, StatusError)
	if !got.Validation {
		t.Fatal("expected a validation error, not a lookup error")
	}
	if adapter.count() != 0 {
		t.Fatalf("validation failure must not reach the adapter, got %d calls", adapter.count())
	}
}

func TestEngineEmptyResultIsNotFound(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return []record{}, nil
	}}
	eng, updates := newTestEngine(t, adapter, nil, MinLengthGate(8))

	eng.OnQueryChange("12345678")

	awaitStatus(t, updates, StatusNotFound)
}

func TestEngineTransportErrorNotCached(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return nil, errors.New("connection refused")
	}}
	store := cache.NewMemory[record](time.Hour)
	eng, updates := newTestEngine(t, adapter, store, MinLengthGate(4))

	eng.OnQueryChange("0301")
	got := awaitStatus(t, updates, StatusError)
	if got.ErrDetail == "" {
		t.Fatal("expected failure reason to be captured")
	}
	if got.Validation {
		t.Fatal("transport error must not be marked as validation")
	}

	// A repeat identical query must hit the network again: failed lookups
	// are never cached as successes.
	eng.OnQueryChange("different")
	awaitStatus(t, updates, StatusError)
	eng.OnQueryChange("0301")
	awaitStatus(t, updates, StatusError)

	if adapter.count() != 3 {
		t.Fatalf("expected three fetch attempts, got %d", adapter.count())
	}
	if eng.Failures() != 3 {
		t.Fatalf("expected three consecutive failures, got %d", eng.Failures())
	}
}

func TestEngineFailureCountResetsOnSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		if fail.Load() {
			return nil, errors.New("boom")
		}
		return []record{{ID: "ok"}}, nil
	}}
	eng, updates := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("aa")
	awaitStatus(t, updates, StatusError)
	eng.OnQueryChange("ab")
	awaitStatus(t, updates, StatusError)
	if eng.Failures() != 2 {
		t.Fatalf("expected escalation threshold of 2 reached, got %d", eng.Failures())
	}

	fail.Store(false)
	eng.OnQueryChange("ac")
	awaitStatus(t, updates, StatusSuccess)
	if eng.Failures() != 0 {
		t.Fatalf("expected failure count reset after success, got %d", eng.Failures())
	}
}

func TestEngineUnavailableIsDistinctFromError(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return nil, ErrUnavailable
	}}
	eng, updates := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("aa")

	got := awaitStatus(t, updates, StatusUnavailable)
	if got.Status == StatusError {
		t.Fatal("unavailable must not surface as error")
	}
	if eng.Failures() != 0 {
		t.Fatalf("degraded mode must not count as transport failure, got %d", eng.Failures())
	}
}

func TestEngineSelectResetsToIdle(t *testing.T) {
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		return []record{{ID: "0301", Name: "Oslo"}}, nil
	}}
	eng, updates := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("Oslo")
	awaitStatus(t, updates, StatusSuccess)

	eng.Select()
	awaitStatus(t, updates, StatusIdle)
	if got := eng.Snapshot(); got.Status != StatusIdle {
		t.Fatalf("expected idle after selection, got %q", got.Status)
	}
}

func TestEngineCancelObsoletesInFlightRequest(t *testing.T) {
	slow := make(chan struct{})
	adapter := &countingAdapter{fn: func(context.Context, string) ([]record, error) {
		<-slow
		return []record{{ID: "late"}}, nil
	}}
	eng, updates := newTestEngine(t, adapter, nil, nil)

	eng.OnQueryChange("Oslo")
	awaitStatus(t, updates, StatusLoading)

	eng.Cancel()
	close(slow)
	time.Sleep(50 * time.Millisecond)

	if got := eng.Snapshot(); got.Status != StatusLoading {
		t.Fatalf("completion after cancel must be ignored, got %q", got.Status)
	}
}
