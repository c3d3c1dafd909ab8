package devbackend

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pitabwire/console/model"
)

// record is one stored item in its JSON object form.
type record = map[string]any

const idField = "id"

// idString renders an id the same way regardless of whether it was seeded
// as an int64 or decoded from JSON as a float64.
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// collection is an ordered in-memory set of records for one resource.
type collection struct {
	mu        sync.RWMutex
	name      string
	items     []record
	nextID    int64
	stringIDs bool
}

func newCollection(name string, stringIDs bool) *collection {
	return &collection{name: name, nextID: 1, stringIDs: stringIDs}
}

// insert stores r and returns a copy carrying its assigned id. A record that
// already has an id keeps it.
func (c *collection) insert(r record) record {
	c.mu.Lock()
	defer c.mu.Unlock()

	r = maps.Clone(r)
	switch {
	case idString(r[idField]) != "":
		if n, err := strconv.ParseInt(idString(r[idField]), 10, 64); err == nil && n >= c.nextID {
			c.nextID = n + 1
		}
	case c.stringIDs:
		r[idField] = uuid.NewString()
	default:
		r[idField] = float64(c.nextID)
		c.nextID++
	}
	c.items = append(c.items, r)
	return maps.Clone(r)
}

func (c *collection) indexLocked(id string) int {
	for i, r := range c.items {
		if idString(r[idField]) == id {
			return i
		}
	}
	return -1
}

func (c *collection) get(id string) (record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	return maps.Clone(c.items[i]), true
}

// mutate applies fn to the stored record under the write lock. fn may
// reject the change by returning an error, which leaves the record intact.
func (c *collection) mutate(id string, fn func(r record) error) (record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return nil, false, nil
	}
	next := maps.Clone(c.items[i])
	if err := fn(next); err != nil {
		return nil, true, err
	}
	next[idField] = c.items[i][idField]
	c.items[i] = next
	return maps.Clone(next), true, nil
}

// setExclusive marks id with field=true and clears it on every other record.
func (c *collection) setExclusive(id, field string) (record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return nil, false
	}
	for j, r := range c.items {
		r[field] = j == i
	}
	return maps.Clone(c.items[i]), true
}

// remove deletes id unless guard rejects the stored record.
func (c *collection) remove(id string, guard func(r record) error) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	if guard != nil {
		if err := guard(c.items[i]); err != nil {
			return true, err
		}
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true, nil
}

// list returns copies of the records matching every filter and, when
// search is set, containing it in any top-level string value.
func (c *collection) list(search string, filters map[string]string) []record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]record, 0, len(c.items))
	for _, r := range c.items {
		if !matchesFilters(r, filters) || !matchesSearch(r, search) {
			continue
		}
		out = append(out, maps.Clone(r))
	}
	return out
}

// exists reports whether another record than exclude has field == value,
// compared case-insensitively.
func (c *collection) exists(field, value, exclude string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.items {
		if idString(r[idField]) == exclude {
			continue
		}
		if s, ok := r[field].(string); ok && strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}

func (c *collection) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func matchesFilters(r record, filters map[string]string) bool {
	for field, want := range filters {
		if idString(r[field]) != want {
			return false
		}
	}
	return true
}

func matchesSearch(r record, search string) bool {
	if search == "" {
		return true
	}
	for _, v := range r {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), search) {
			return true
		}
	}
	return false
}

// paginate returns the 1-based page of items.
func paginate(items []record, page, pageSize int) []record {
	start, end := model.Window(len(items), page, pageSize)
	if start == end {
		return []record{}
	}
	return items[start:end]
}

// singleton holds the one record of a singleton resource.
type singleton struct {
	mu  sync.RWMutex
	rec record
}

func (s *singleton) get() record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.rec)
}

func (s *singleton) merge(patch record) record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		s.rec = record{idField: float64(1)}
	}
	for k, v := range patch {
		if k == idField {
			continue
		}
		s.rec[k] = v
	}
	return maps.Clone(s.rec)
}
