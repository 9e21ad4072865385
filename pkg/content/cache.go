package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// FailurePolicy decides what a Cache keeps after a failed fetch.
type FailurePolicy string

const (
	// FailureMemoize keeps the failure for the lifetime of the cache.
	FailureMemoize FailurePolicy = "memoize"
	// FailureRetry forgets the failure once its waiters have seen it.
	FailureRetry FailurePolicy = "retry"
	// FailureBackoff keeps the failure for a fixed TTL, then refetches.
	FailureBackoff FailurePolicy = "backoff"
)

// ParseFailurePolicy accepts the policy names used in configuration. The
// empty string selects FailureMemoize.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FailureMemoize, nil
	case FailureMemoize, FailureRetry, FailureBackoff:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cache failure policy %q", s)
	}
}

// FetchFunc produces the value for key on a cache miss.
type FetchFunc func(ctx context.Context, key string) (string, error)

// CacheOptions configures a Cache.
type CacheOptions struct {
	Policy FailurePolicy
	// FailureTTL is how long FailureBackoff holds a failure.
	FailureTTL time.Duration
	Logger     *slog.Logger
}

// entry is one in-flight or completed fetch. value and err are written
// before done is closed and never after.
type entry struct {
	done  chan struct{}
	value string
	err   error
}

func (e *entry) completed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Cache memoizes text per key with at most one fetch in flight per key.
// Successful values are never evicted.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	policy     FailurePolicy
	failures   *gocache.Cache
	failureTTL time.Duration
	logger     *slog.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
	failed  atomic.Int64
}

// NewCache creates an empty Cache.
func NewCache(opts CacheOptions) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	policy := opts.Policy
	if policy == "" {
		policy = FailureMemoize
	}
	c := &Cache{
		entries:    make(map[string]*entry),
		policy:     policy,
		failureTTL: opts.FailureTTL,
		logger:     logger,
	}
	if policy == FailureBackoff {
		if c.failureTTL <= 0 {
			c.failureTTL = 30 * time.Second
		}
		c.failures = gocache.New(c.failureTTL, 2*c.failureTTL)
	}
	return c
}

// Policy returns the cache's failure policy.
func (c *Cache) Policy() FailurePolicy {
	return c.policy
}

// GetOrFetch returns the value for key, calling fetch only if no fetch for
// key has been started (or, under FailureRetry and FailureBackoff, if the
// previous one failed and has been forgotten).
//
// The fetch runs detached from ctx's cancellation so a departing caller does
// not fail the fetch for everyone else waiting on it; ctx only bounds how long
// this caller waits.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return c.wait(ctx, e)
	}
	if c.failures != nil {
		if cached, found := c.failures.Get(key); found {
			c.mu.Unlock()
			c.hits.Add(1)
			return "", cached.(error)
		}
	}
	e = &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	c.misses.Add(1)
	go c.run(context.WithoutCancel(ctx), key, e, fetch)
	return c.wait(ctx, e)
}

func (c *Cache) wait(ctx context.Context, e *entry) (string, error) {
	if e.completed() {
		return e.value, e.err
	}
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Cache) run(ctx context.Context, key string, e *entry, fetch FetchFunc) {
	defer close(e.done)
	c.fetches.Add(1)

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.err = fmt.Errorf("fetch for %q panicked: %v", key, r)
			}
		}()
		e.value, e.err = fetch(ctx, key)
	}()

	if e.err == nil {
		return
	}
	c.failed.Add(1)

	switch c.policy {
	case FailureRetry:
		c.forget(key, e)
		c.logger.Warn("Fetch failed, key will be retried on next request", "key", key, "error", e.err)
	case FailureBackoff:
		c.failures.Set(key, e.err, c.failureTTL)
		c.forget(key, e)
		c.logger.Warn("Fetch failed, key backing off", "key", key, "ttl", c.failureTTL, "error", e.err)
	default:
		c.logger.Warn("Fetch failed, failure memoized", "key", key, "error", e.err)
	}
}

// forget drops e unless key has already been replaced.
func (c *Cache) forget(key string, e *entry) {
	c.mu.Lock()
	if c.entries[key] == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// Warm fetches keys concurrently and waits for all of them. It returns the
// first failure; the other keys are still populated.
func (c *Cache) Warm(ctx context.Context, fetch FetchFunc, keys ...string) error {
	var g errgroup.Group
	for _, key := range keys {
		g.Go(func() error {
			if _, err := c.GetOrFetch(ctx, key, fetch); err != nil {
				return fmt.Errorf("failed to warm %q: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Purge drops a completed entry and any held failure for key so the next
// request fetches again. Pending entries are left alone.
func (c *Cache) Purge(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	purged := false
	if c.failures != nil {
		if _, found := c.failures.Get(key); found {
			c.failures.Delete(key)
			purged = true
		}
	}
	e, ok := c.entries[key]
	if !ok || !e.completed() {
		return purged
	}
	delete(c.entries, key)
	return true
}

// Stats is a point-in-time summary of a Cache.
type Stats struct {
	Policy   FailurePolicy `json:"policy"`
	Keys     int           `json:"keys"`
	Pending  int           `json:"pending"`
	Failed   int           `json:"failed"`
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
	Fetches  int64         `json:"fetches"`
	Failures int64         `json:"failures"`
}

// EntryInfo describes a single key.
type EntryInfo struct {
	Key   string `json:"key"`
	State string `json:"state"`
	Bytes int    `json:"bytes,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	StatePending = "pending"
	StateReady   = "ready"
	StateFailed  = "failed"
)

// Stats returns counters and entry totals.
func (c *Cache) Stats() Stats {
	s := Stats{
		Policy:   c.policy,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Fetches:  c.fetches.Load(),
		Failures: c.failed.Load(),
	}
	for _, info := range c.Entries() {
		s.Keys++
		switch info.State {
		case StatePending:
			s.Pending++
		case StateFailed:
			s.Failed++
		}
	}
	return s
}

// Entries lists every key sorted by name, including failures held by
// FailureBackoff.
func (c *Cache) Entries() []EntryInfo {
	c.mu.Lock()
	infos := make([]EntryInfo, 0, len(c.entries))
	for key, e := range c.entries {
		info := EntryInfo{Key: key, State: StatePending}
		if e.completed() {
			if e.err != nil {
				info.State = StateFailed
				info.Error = e.err.Error()
			} else {
				info.State = StateReady
				info.Bytes = len(e.value)
			}
		}
		infos = append(infos, info)
	}
	if c.failures != nil {
		for key, item := range c.failures.Items() {
			if _, ok := c.entries[key]; ok {
				continue
			}
			info := EntryInfo{Key: key, State: StateFailed}
			if err, ok := item.Object.(error); ok {
				info.Error = err.Error()
			}
			infos = append(infos, info)
		}
	}
	c.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}
