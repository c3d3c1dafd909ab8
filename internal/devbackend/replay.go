package devbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// replay is a stored mutation response.
type replay struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// ReplayStore keeps mutation responses by idempotency key.
type ReplayStore interface {
	Get(ctx context.Context, key string) (replay, bool, error)
	Put(ctx context.Context, key string, r replay) error
}

// --- MemoryReplayStore ---

// MemoryReplayStore is a bounded in-process ReplayStore. Least recently
// used keys are evicted first.
type MemoryReplayStore struct {
	cache *lru.Cache[string, replay]
}

// NewMemoryReplayStore creates a store holding at most size responses.
func NewMemoryReplayStore(size int) (*MemoryReplayStore, error) {
	cache, err := lru.New[string, replay](size)
	if err != nil {
		return nil, fmt.Errorf("creating replay cache: %w", err)
	}
	return &MemoryReplayStore{cache: cache}, nil
}

// Get returns the response stored under key.
func (s *MemoryReplayStore) Get(_ context.Context, key string) (replay, bool, error) {
	r, ok := s.cache.Get(key)
	return r, ok, nil
}

// Put stores a response under key.
func (s *MemoryReplayStore) Put(_ context.Context, key string, r replay) error {
	s.cache.Add(key, r)
	return nil
}

// --- RedisReplayStore ---

const replayKeyPrefix = "console:replay:"

// RedisReplayStore shares replays between dev backend instances. Entries
// expire after ttl.
type RedisReplayStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisReplayStore creates a Redis-backed store. A zero ttl keeps
// entries until Redis evicts them.
func NewRedisReplayStore(client redis.Cmdable, ttl time.Duration) *RedisReplayStore {
	return &RedisReplayStore{client: client, ttl: ttl}
}

// Get returns the response stored under key.
func (s *RedisReplayStore) Get(ctx context.Context, key string) (replay, bool, error) {
	raw, err := s.client.Get(ctx, replayKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return replay{}, false, nil
	}
	if err != nil {
		return replay{}, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	var r replay
	if err := json.Unmarshal(raw, &r); err != nil {
		return replay{}, false, fmt.Errorf("decoding replay %q: %w", key, err)
	}
	return r, true, nil
}

// Put stores a response under key.
func (s *RedisReplayStore) Put(ctx context.Context, key string, r replay) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding replay: %w", err)
	}
	if err := s.client.Set(ctx, replayKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis for the readiness endpoint.
func (s *RedisReplayStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
