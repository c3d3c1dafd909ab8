package devbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/console/internal/api"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/internal/resources"
	"github.com/pitabwire/console/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestMemoryReplayStore_evictsOldest(t *testing.T) {
	store, err := NewMemoryReplayStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, key, replay{Status: http.StatusCreated}))
	}

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "oldest key is evicted")
	got, ok, _ := store.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, http.StatusCreated, got.Status)
}

func TestRedisReplayStore_roundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisReplayStore(client, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	in := replay{
		Status: http.StatusCreated,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"id":7}`),
	}
	require.NoError(t, store.Put(ctx, "k", in))
	assert.True(t, mr.Exists(replayKeyPrefix+"k"))

	out, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestRedisReplayStore_expires(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisReplayStore(client, time.Second)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", replay{Status: http.StatusOK}))
	mr.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisReplayStore_corruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisReplayStore(client, 0)
	require.NoError(t, mr.Set(replayKeyPrefix+"k", "not json"))

	_, _, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestRedisReplayStore_sharedByServers(t *testing.T) {
	_, client := newTestRedis(t)
	first := newHarness(t, WithReplayStore(NewRedisReplayStore(client, time.Hour)))
	second := newHarness(t, WithReplayStore(NewRedisReplayStore(client, time.Hour)))
	first.login(t)
	second.login(t)
	ctx := context.Background()

	req := model.MutationRequest{Body: map[string]any{"name": "Shared", "parentFolderId": 1}, IdempotencyKey: "shared-1"}
	created, err := api.NewResource[model.Folder](first.client, first.descs[resources.Folders]).Create(ctx, req)
	require.NoError(t, err)
	replayed, err := api.NewResource[model.Folder](second.client, second.descs[resources.Folders]).Create(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, created.ID, replayed.ID)
	assert.Equal(t, 3, second.server.collections[resources.Folders].len(), "second server did not execute the create")
}

func TestRedisReplayStore_outageExecutesRequest(t *testing.T) {
	mr, client := newTestRedis(t)
	h := newHarness(t, WithReplayStore(NewRedisReplayStore(client, time.Hour)))
	h.login(t)
	mr.Close()

	req := model.MutationRequest{Body: map[string]any{"name": "Offline", "parentFolderId": 1}, IdempotencyKey: "k"}
	_, err := api.NewResource[model.Folder](h.client, h.descs[resources.Folders]).Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, h.server.collections[resources.Folders].len())
}

func TestReadiness_includesRedis(t *testing.T) {
	mr, client := newTestRedis(t)
	h := newHarness(t, WithReplayStore(NewRedisReplayStore(client, time.Hour)))

	resp := h.raw(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body observability.ReadinessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Checks["replay_store"].Status)

	mr.Close()
	resp = h.raw(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
