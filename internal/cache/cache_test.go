package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labdesk/backoffice/libs/retry"
)

type user struct {
	ID   string
	Name string
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGet_CacheHitSkipsFetch(t *testing.T) {
	var fetches atomic.Int32
	c := New(Options[user]{
		Fetch: func(_ context.Context, id string) (user, bool, error) {
			fetches.Add(1)
			return user{ID: id, Name: "A"}, true, nil
		},
		Fallback: func(id string) user { return user{ID: id, Name: "Unknown"} },
		Retry:    fastRetry(),
	})

	first := c.Get(context.Background(), "u-1")
	second := c.Get(context.Background(), "u-1")
	if first.Name != "A" || second.Name != "A" {
		t.Fatalf("unexpected values: %+v %+v", first, second)
	}
	if n := fetches.Load(); n != 1 {
		t.Fatalf("expected exactly one fetch within TTL, got %d", n)
	}
}

func TestGet_ExpiredEntryRefetched(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var fetches atomic.Int32
	c := New(Options[user]{
		Fetch: func(_ context.Context, id string) (user, bool, error) {
			fetches.Add(1)
			return user{ID: id, Name: "A"}, true, nil
		},
		Fallback: func(id string) user { return user{ID: id, Name: "Unknown"} },
		TTL:      5 * time.Minute,
		Retry:    fastRetry(),
		Clock:    clock.Now,
	})

	c.Get(context.Background(), "u-1")
	clock.Advance(5*time.Minute + time.Second)
	c.Get(context.Background(), "u-1")
	if n := fetches.Load(); n != 2 {
		t.Fatalf("expected refetch after TTL, got %d fetches", n)
	}
}

func TestGet_FallbackAfterExhaustedRetries(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var fetches atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)
	c := New(Options[user]{
		Fetch: func(_ context.Context, id string) (user, bool, error) {
			fetches.Add(1)
			if fail.Load() {
				return user{}, false, errors.New("store down")
			}
			return user{ID: id, Name: "A"}, true, nil
		},
		Fallback:    func(id string) user { return user{ID: id, Name: "Unknown"} },
		FallbackTTL: 30 * time.Second,
		Retry:       fastRetry(),
		Clock:       clock.Now,
	})

	got := c.Get(context.Background(), "u-1")
	if got.Name != "Unknown" {
		t.Fatalf("expected fallback sentinel, got %+v", got)
	}
	if n := fetches.Load(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}

	// Within the fallback TTL the sentinel is served without refetching.
	got = c.Get(context.Background(), "u-1")
	if got.Name != "Unknown" || fetches.Load() != 3 {
		t.Fatalf("expected cached fallback, got %+v after %d fetches", got, fetches.Load())
	}

	// After the fallback TTL the real store is retried.
	fail.Store(false)
	clock.Advance(31 * time.Second)
	got = c.Get(context.Background(), "u-1")
	if got.Name != "A" {
		t.Fatalf("expected real entity after fallback TTL, got %+v", got)
	}
}

func TestGetMany_BatchPath(t *testing.T) {
	var batchCalls, singleCalls atomic.Int32
	c := New(Options[user]{
		Fetch: func(_ context.Context, id string) (user, bool, error) {
			singleCalls.Add(1)
			return user{ID: id}, true, nil
		},
		FetchMany: func(_ context.Context, ids []string) (map[string]user, error) {
			batchCalls.Add(1)
			out := map[string]user{}
			for _, id := range ids {
				if id != "missing" {
					out[id] = user{ID: id, Name: "batch"}
				}
			}
			return out, nil
		},
		Fallback: func(id string) user { return user{ID: id, Name: "Unknown"} },
		Retry:    fastRetry(),
	})

	got := c.GetMany(context.Background(), []string{"u-1", "u-2", "missing"})
	if len(got) != 3 {
		t.Fatalf("expected complete mapping, got %d entries", len(got))
	}
	if got["u-1"] == nil || got["u-1"].Name != "batch" {
		t.Fatalf("unexpected u-1: %+v", got["u-1"])
	}
	if got["missing"] != nil {
		t.Fatalf("expected nil for missing id, got %+v", got["missing"])
	}
	if batchCalls.Load() != 1 || singleCalls.Load() != 0 {
		t.Fatalf("expected one batch call only, got batch=%d single=%d", batchCalls.Load(), singleCalls.Load())
	}

	// Batch results are cached: another GetMany resolves without any calls.
	got = c.GetMany(context.Background(), []string{"u-1", "u-2"})
	if got["u-2"] == nil || batchCalls.Load() != 1 {
		t.Fatalf("expected cache hits, got batch=%d", batchCalls.Load())
	}
}

func TestGetMany_IndividualFallbackWhenBatchUnavailable(t *testing.T) {
	var singleCalls atomic.Int32
	c := New(Options[user]{
		Fetch: func(_ context.Context, id string) (user, bool, error) {
			singleCalls.Add(1)
			if id == "broken" {
				return user{}, false, errors.New("boom")
			}
			return user{ID: id, Name: "single"}, true, nil
		},
		FetchMany: func(_ context.Context, _ []string) (map[string]user, error) {
			return nil, errors.New("batch endpoint unavailable")
		},
		Fallback:   func(id string) user { return user{ID: id, Name: "Unknown"} },
		Retry:      fastRetry(),
		BatchDelay: time.Millisecond,
	})

	got := c.GetMany(context.Background(), []string{"u-1", "u-2", "broken", "u-3", "u-4"})
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
	for _, id := range []string{"u-1", "u-2", "u-3", "u-4"} {
		if got[id] == nil || got[id].Name != "single" {
			t.Fatalf("unexpected %s: %+v", id, got[id])
		}
	}
	if got["broken"] != nil {
		t.Fatalf("expected nil for failing id, got %+v", got["broken"])
	}
	if n := singleCalls.Load(); n != 5 {
		t.Fatalf("expected 5 individual fetches, got %d", n)
	}
}
