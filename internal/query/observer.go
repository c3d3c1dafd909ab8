package query

import (
	"context"
	"sync"

	"github.com/pitabwire/console/model"
)

// Observer follows one key at a time, the way a paginated table follows its
// current page. With KeepPreviousData the last page stays visible while the
// next one loads.
type Observer struct {
	cache *Cache
	opts  Options

	mu      sync.Mutex
	key     model.QueryKey
	last    any
	hasLast bool
	closed  bool
}

// Watch returns an observer on key. Observed entries are never collected.
func (c *Cache) Watch(key model.QueryKey, opts Options) *Observer {
	c.retain(key, 1)
	return &Observer{cache: c, opts: opts, key: key}
}

// Key returns the observed key.
func (o *Observer) Key() model.QueryKey {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// SetKey switches to another key.
func (o *Observer) SetKey(key model.QueryKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.key.Equal(key) {
		return
	}
	o.cache.retain(o.key, -1)
	o.cache.retain(key, 1)
	o.key = key
}

// Fetch fetches the observed key.
func (o *Observer) Fetch(ctx context.Context, fetch Fetcher) (Result, error) {
	key := o.Key()
	res, err := o.cache.Fetch(ctx, key, fetch, o.opts)
	if err == nil && !res.Superseded {
		o.remember(key, res.Data)
	}
	return res, err
}

func (o *Observer) remember(key model.QueryKey, data any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.key.Equal(key) {
		o.last = data
		o.hasLast = true
	}
}

// Snapshot returns the observed key's state, substituting the previous data
// while the current key has none yet.
func (o *Observer) Snapshot() Snapshot {
	o.mu.Lock()
	key := o.key
	o.mu.Unlock()

	s := o.cache.Observe(key)

	o.mu.Lock()
	defer o.mu.Unlock()
	if s.HasData {
		o.last = s.Data
		o.hasLast = true
		return s
	}
	if o.opts.KeepPreviousData && o.hasLast && s.State != StateError {
		s.Data = o.last
		s.HasData = true
		s.IsPreviousData = true
	}
	return s
}

// Close releases the observed entry so it can be collected.
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.cache.retain(o.key, -1)
}
