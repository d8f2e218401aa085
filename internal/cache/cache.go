// Package cache wraps a fallible remote lookup with a TTL cache, a retry
// policy and a short-lived fallback entry for ids that keep failing. It is an
// explicit injected component: each instance owns its map, nothing goes
// through package globals.
package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/labdesk/backoffice/libs/retry"
)

// Fetcher loads one entity. found=false with a nil error is the remote
// store's soft "not there" answer and is not retried.
type Fetcher[T any] func(ctx context.Context, id string) (T, bool, error)

// BatchFetcher loads many entities in one call. Ids absent from the result
// simply were not found. An error means the batch path is unavailable and the
// caller falls back to individual fetches.
type BatchFetcher[T any] func(ctx context.Context, ids []string) (map[string]T, error)

type Options[T any] struct {
	Fetch     Fetcher[T]
	FetchMany BatchFetcher[T] // optional

	// Fallback synthesizes the sentinel entity cached briefly when every
	// retry fails, so a later call re-attempts the real store instead of
	// masking an outage for the full TTL.
	Fallback func(id string) T

	TTL            time.Duration // default 5m
	FallbackTTL    time.Duration // default 30s
	AttemptTimeout time.Duration // default 6s
	Retry          retry.Policy  // default 3 attempts, 300ms doubling

	BatchConcurrency int           // default 3
	BatchDelay       time.Duration // default 100ms between individual-fetch waves

	Clock  func() time.Time
	Logger *slog.Logger
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

type Cache[T any] struct {
	opts Options[T]

	mu      sync.Mutex
	entries map[string]entry[T]
}

func New[T any](opts Options[T]) *Cache[T] {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.FallbackTTL <= 0 {
		opts.FallbackTTL = 30 * time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 6 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: 300 * time.Millisecond, Multiplier: 2}
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 3
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = 100 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache[T]{
		opts:    opts,
		entries: map[string]entry[T]{},
	}
}

// Get returns a live cache hit without touching the network. Otherwise it
// fetches under the retry policy and, if every attempt fails, caches and
// returns the fallback sentinel under the short fallback TTL.
func (c *Cache[T]) Get(ctx context.Context, id string) T {
	if v, ok := c.lookup(id); ok {
		return v
	}

	v, ok, err := retryFetch(ctx, c, id)
	if err != nil {
		c.opts.Logger.Warn("lookup failed, serving fallback", "id", id, "err", err)
		fb := c.opts.Fallback(id)
		c.store(id, fb, c.opts.FallbackTTL)
		return fb
	}
	if !ok {
		// Soft not-found: the store answered, there is nothing to retry.
		fb := c.opts.Fallback(id)
		c.store(id, fb, c.opts.FallbackTTL)
		return fb
	}
	c.store(id, v, c.opts.TTL)
	return v
}

// GetMany resolves every id to an entity or nil, preferring one batched
// remote call for the uncached ids and degrading to individual fetches in
// waves of BatchConcurrency when the batch path is unavailable.
func (c *Cache[T]) GetMany(ctx context.Context, ids []string) map[string]*T {
	out := make(map[string]*T, len(ids))
	var uncached []string
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		if v, ok := c.lookup(id); ok {
			value := v
			out[id] = &value
			continue
		}
		out[id] = nil
		uncached = append(uncached, id)
	}
	if len(uncached) == 0 {
		return out
	}

	if c.opts.FetchMany != nil {
		batchCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		found, err := c.opts.FetchMany(batchCtx, uncached)
		cancel()
		if err == nil {
			for id, v := range found {
				value := v
				out[id] = &value
				c.store(id, v, c.opts.TTL)
			}
			return out
		}
		c.opts.Logger.Warn("batch lookup unavailable, fetching individually", "ids", len(uncached), "err", err)
	}

	c.fetchIndividually(ctx, uncached, out)
	return out
}

func (c *Cache[T]) fetchIndividually(ctx context.Context, ids []string, out map[string]*T) {
	type result struct {
		id    string
		value *T
	}

	for start := 0; start < len(ids); start += c.opts.BatchConcurrency {
		end := min(start+c.opts.BatchConcurrency, len(ids))
		wave := ids[start:end]

		results := make(chan result, len(wave))
		for _, id := range wave {
			go func(id string) {
				attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
				defer cancel()
				v, ok, err := c.opts.Fetch(attemptCtx, id)
				if err != nil || !ok {
					results <- result{id: id}
					return
				}
				results <- result{id: id, value: &v}
			}(id)
		}
		for range wave {
			r := <-results
			if r.value != nil {
				out[r.id] = r.value
				c.store(r.id, *r.value, c.opts.TTL)
			}
		}

		if end < len(ids) {
			select {
			case <-time.After(c.opts.BatchDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Invalidate drops the entry so the next Get refetches.
func (c *Cache[T]) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *Cache[T]) lookup(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	if !e.expiresAt.After(c.opts.Clock()) {
		// Lazy eviction: an expired entry is never returned.
		delete(c.entries, id)
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *Cache[T]) store(id string, v T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry[T]{value: v, expiresAt: c.opts.Clock().Add(ttl)}
}

func retryFetch[T any](ctx context.Context, c *Cache[T], id string) (T, bool, error) {
	type fetched struct {
		value T
		found bool
	}
	f, err := retry.Do(ctx, c.opts.Retry, func(ctx context.Context) (fetched, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
		defer cancel()
		v, ok, err := c.opts.Fetch(attemptCtx, id)
		if err != nil {
			return fetched{}, err
		}
		return fetched{value: v, found: ok}, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return f.value, f.found, nil
}
