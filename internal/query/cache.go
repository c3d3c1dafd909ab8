// Package query is the client-side cache of list and detail queries. It
// deduplicates concurrent fetches of the same key, treats old entries as
// stale, invalidates by key prefix after mutations and never lets an
// earlier-issued response overwrite a later one.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/model"
)

const (
	defaultStaleTime  = 5 * time.Minute
	defaultGCTime     = 10 * time.Minute
	defaultMaxEntries = 256
)

// ErrEmptyKey is returned for a zero-length query key.
var ErrEmptyKey = errors.New("query: empty key")

// Fetcher loads the value for one key.
type Fetcher func(ctx context.Context) (any, error)

// Options tune a single query.
type Options struct {
	// StaleTime overrides the cache default. Negative means always stale.
	StaleTime time.Duration
	// KeepPreviousData keeps an observer's last data visible while the next
	// key loads.
	KeepPreviousData bool
}

// Result describes how Fetch was satisfied.
type Result struct {
	Data any
	// Cached is true when a fresh entry answered without a network call.
	Cached bool
	// Shared is true when the call joined another caller's flight.
	Shared bool
	// Superseded is true when a newer fetch was issued for the key while
	// this one was in flight. The data was not committed.
	Superseded bool
}

// Snapshot is the observable state of one key.
type Snapshot struct {
	Key            model.QueryKey
	Data           any
	HasData        bool
	Err            error
	State          State
	IsLoading      bool
	IsStale        bool
	IsPreviousData bool
	UpdatedAt      time.Time
}

type entry struct {
	key       model.QueryKey
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	lastUsed  time.Time
	invalid   bool
	// issued is the tag of the latest fetch allowed to commit.
	issued uint64
	// inflight is the tag of the running fetch, 0 when idle.
	inflight  uint64
	observers int
	machine   *Machine
}

type flight struct {
	data       any
	superseded bool
}

// Cache holds query results keyed by model.QueryKey.
type Cache struct {
	mu        sync.Mutex
	entries   *simplelru.LRU[string, *entry]
	group     singleflight.Group
	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a cache from config. Zero values take the defaults.
func New(cfg config.CacheConfig, opts ...Option) *Cache {
	c := &Cache{
		staleTime: cfg.StaleTime,
		gcTime:    cfg.GCTime,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	if c.staleTime == 0 {
		c.staleTime = defaultStaleTime
	}
	if c.gcTime == 0 {
		c.gcTime = defaultGCTime
	}
	size := cfg.MaxEntries
	if size <= 0 {
		size = defaultMaxEntries
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries, _ = simplelru.NewLRU[string, *entry](size, func(id string, e *entry) {
		c.group.Forget(id)
		c.logger.Debug("query: evicted", zap.String("key", e.key.Display()))
	})
	return c
}

// entryLocked returns the entry for key, creating it if needed.
func (c *Cache) entryLocked(key model.QueryKey) *entry {
	id := key.String()
	if e, ok := c.entries.Get(id); ok {
		return e
	}
	e := &entry{
		key:     append(model.QueryKey(nil), key...),
		machine: NewQueryMachine(key.Display()),
	}
	c.entries.Add(id, e)
	c.metrics.SetCacheEntries(c.entries.Len())
	return e
}

func (c *Cache) staleAfter(opts Options) time.Duration {
	if opts.StaleTime != 0 {
		return opts.StaleTime
	}
	return c.staleTime
}

func (c *Cache) staleLocked(e *entry, opts Options) bool {
	if !e.hasData || e.err != nil || e.invalid {
		return true
	}
	ttl := c.staleAfter(opts)
	return ttl < 0 || c.now().Sub(e.updatedAt) >= ttl
}

// Fetch returns the cached value for key when it is fresh, otherwise runs
// fetch. Concurrent callers for the same key share one call. The shared call
// is detached from any single caller's cancellation; a cancelled caller
// returns ctx.Err() without waiting.
func (c *Cache) Fetch(ctx context.Context, key model.QueryKey, fetch Fetcher, opts Options) (Result, error) {
	if len(key) == 0 {
		return Result{}, ErrEmptyKey
	}
	id := key.String()
	resource := key[0]
	ctx, span := observability.StartQuerySpan(ctx, resource, key.Display())

	c.mu.Lock()
	e := c.entryLocked(key)
	e.lastUsed = c.now()
	if !c.staleLocked(e, opts) && e.inflight == 0 {
		data := e.data
		c.mu.Unlock()
		c.metrics.RecordCacheHit(resource)
		c.logger.Debug("query: hit", zap.String("key", key.Display()))
		observability.SetCacheHit(span, true)
		span.End()
		return Result{Data: data, Cached: true}, nil
	}
	c.mu.Unlock()
	c.metrics.RecordCacheMiss(resource)
	observability.SetCacheHit(span, false)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (any, error) {
		tag := c.begin(key)
		data, err := fetch(detached)
		committed := c.commit(key, tag, data, err)
		return flight{data: data, superseded: !committed}, err
	})

	select {
	case <-ctx.Done():
		observability.EndSpanWithError(span, ctx.Err())
		return Result{}, ctx.Err()
	case res := <-ch:
		f, _ := res.Val.(flight)
		observability.EndSpanWithError(span, res.Err)
		return Result{Data: f.data, Shared: res.Shared, Superseded: f.superseded}, res.Err
	}
}

// begin issues a new tag for key and moves it to loading.
func (c *Cache) begin(key model.QueryKey) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	e.issued++
	e.inflight = e.issued
	if e.machine.State() != StateLoading {
		_ = e.machine.Transition(StateLoading)
	}
	c.logger.Debug("query: fetching", zap.String("key", key.Display()), zap.Uint64("tag", e.issued))
	return e.issued
}

// commit stores a response if tag is still the latest issued for the key. It
// reports whether the response was committed.
func (c *Cache) commit(key model.QueryKey, tag uint64, data any, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key.String())
	if !ok || e.issued != tag {
		if ok && e.inflight == tag {
			e.inflight = 0
			_ = e.machine.Transition(StateIdle)
		}
		c.metrics.RecordCacheDiscard(key[0])
		c.logger.Debug("query: discarded superseded response",
			zap.String("key", key.Display()),
			zap.Uint64("tag", tag),
		)
		return false
	}

	e.inflight = 0
	if err != nil {
		e.err = err
		_ = e.machine.Transition(StateError)
		return true
	}
	e.data = data
	e.hasData = true
	e.err = nil
	e.invalid = false
	e.updatedAt = c.now()
	_ = e.machine.Transition(StateSuccess)
	return true
}

// Observe returns the current state of key without fetching.
func (c *Cache) Observe(key model.QueryKey) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{Key: key, State: StateIdle, IsStale: true}
	e, ok := c.entries.Get(key.String())
	if !ok {
		return s
	}
	e.lastUsed = c.now()
	s.Data = e.data
	s.HasData = e.hasData
	s.Err = e.err
	s.State = e.machine.State()
	s.IsLoading = s.State == StateLoading
	s.IsStale = c.staleLocked(e, Options{})
	s.UpdatedAt = e.updatedAt
	return s
}

// Set stores data for key as if it had just been fetched.
func (c *Cache) Set(key model.QueryKey, data any) {
	if len(key) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	e.issued++
	e.inflight = 0
	e.data = data
	e.hasData = true
	e.err = nil
	e.invalid = false
	e.updatedAt = c.now()
	if e.machine.State() != StateSuccess {
		if e.machine.State() != StateLoading {
			_ = e.machine.Transition(StateLoading)
		}
		_ = e.machine.Transition(StateSuccess)
	}
}

// Invalidate marks every entry whose key starts with prefix as stale so the
// next access refetches. A fetch in flight for such a key is superseded: its
// response predates the invalidation. It returns the number of entries
// marked.
func (c *Cache) Invalidate(prefix model.QueryKey) int {
	c.mu.Lock()
	n := 0
	for _, id := range c.entries.Keys() {
		e, ok := c.entries.Peek(id)
		if !ok || !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalid = true
		if e.inflight != 0 {
			e.issued++
		}
		c.group.Forget(id)
		n++
	}
	c.mu.Unlock()

	c.metrics.RecordCacheInvalidation(prefix.Display(), n)
	c.logger.Debug("query: invalidated", zap.String("prefix", prefix.Display()), zap.Int("entries", n))
	return n
}

// InvalidateAll invalidates each prefix in turn.
func (c *Cache) InvalidateAll(prefixes ...model.QueryKey) int {
	n := 0
	for _, p := range prefixes {
		n += c.Invalidate(p)
	}
	return n
}

// Remove drops key.
func (c *Cache) Remove(key model.QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := key.String()
	c.entries.Remove(id)
	c.group.Forget(id)
	c.metrics.SetCacheEntries(c.entries.Len())
}

// Clear drops every entry, e.g. on logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.metrics.SetCacheEntries(0)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Collect removes entries that nobody observes, are not loading and were
// last used more than the GC time ago. It returns the number removed.
func (c *Cache) Collect() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.gcTime)
	n := 0
	for _, id := range c.entries.Keys() {
		e, ok := c.entries.Peek(id)
		if !ok || e.observers > 0 || e.inflight != 0 || e.lastUsed.After(cutoff) {
			continue
		}
		c.entries.Remove(id)
		n++
	}
	if n > 0 {
		c.metrics.SetCacheEntries(c.entries.Len())
		c.logger.Debug("query: collected", zap.Int("entries", n))
	}
	return n
}

// RunCollector calls Collect every interval until ctx is done.
func (c *Cache) RunCollector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.gcTime / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

func (c *Cache) retain(key model.QueryKey, delta int) {
	if len(key) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if delta < 0 {
		e, ok := c.entries.Peek(key.String())
		if ok && e.observers > 0 {
			e.observers--
		}
		return
	}
	e := c.entryLocked(key)
	e.observers += delta
}

// Get is Fetch with a typed result.
func Get[T any](ctx context.Context, c *Cache, key model.QueryKey, fetch func(context.Context) (T, error), opts Options) (T, Result, error) {
	var zero T
	res, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)
	if err != nil {
		return zero, res, err
	}
	v, ok := res.Data.(T)
	if !ok {
		return zero, res, fmt.Errorf("query: value for %s is %T, not %T", key.Display(), res.Data, zero)
	}
	return v, res, nil
}
