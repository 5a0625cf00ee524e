package refcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCmdable implements only the two redis.Cmdable methods RedisBackend
// calls; embedding the interface satisfies the rest without forcing a
// full mock of go-redis's large surface.
type fakeCmdable struct {
	redis.Cmdable
	store map[string][]byte

	getErr error
	setErr error
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{store: make(map[string][]byte)}
}

func (f *fakeCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.setErr != nil {
		cmd.SetErr(f.setErr)
		return cmd
	}
	switch v := value.(type) {
	case []byte:
		f.store[key] = v
	case string:
		f.store[key] = []byte(v)
	}
	cmd.SetVal("OK")
	return cmd
}

func Test_RedisBackend_StoreThenGetRoundTrips(t *testing.T) {
	client := newFakeCmdable()
	b := NewRedisBackend(client, "run-1", 50*time.Millisecond, time.Minute, zap.NewNop())

	b.Store("ardrive", Entry{ResolvedID: "tx-1", StatusCode: 200, Timings: map[string]int64{"totalMillis": 42}})

	got, ok := b.Get("ardrive")
	require.True(t, ok)
	require.Equal(t, "tx-1", got.ResolvedID)
	require.Equal(t, int64(42), got.Timings["totalMillis"])
}

func Test_RedisBackend_MissReturnsFalseWithoutError(t *testing.T) {
	client := newFakeCmdable()
	b := NewRedisBackend(client, "run-1", 50*time.Millisecond, time.Minute, zap.NewNop())

	_, ok := b.Get("missing")
	require.False(t, ok)
}

func Test_RedisBackend_DisablesAfterFirstNonNilError(t *testing.T) {
	client := newFakeCmdable()
	client.getErr = errors.New("connection refused")
	b := NewRedisBackend(client, "run-1", 50*time.Millisecond, time.Minute, zap.NewNop())

	_, ok := b.Get("ardrive")
	require.False(t, ok)
	require.True(t, b.disabled())

	// Once disabled, Store must also no-op for the rest of the run even
	// though the underlying client's error has nothing to do with Set.
	b.Store("ardrive", Entry{ResolvedID: "tx-1"})
	require.Empty(t, client.store)
}

func Test_RedisBackend_DistinctRunIDsDoNotCrossContaminate(t *testing.T) {
	client := newFakeCmdable()
	a := NewRedisBackend(client, "run-a", 50*time.Millisecond, time.Minute, zap.NewNop())
	b := NewRedisBackend(client, "run-b", 50*time.Millisecond, time.Minute, zap.NewNop())

	a.Store("ardrive", Entry{ResolvedID: "from-a"})
	b.Store("ardrive", Entry{ResolvedID: "from-b"})

	gotA, ok := a.Get("ardrive")
	require.True(t, ok)
	require.Equal(t, "from-a", gotA.ResolvedID)

	gotB, ok := b.Get("ardrive")
	require.True(t, ok)
	require.Equal(t, "from-b", gotB.ResolvedID)
}

func Test_RedisBackend_SetFailureDisablesClient(t *testing.T) {
	client := newFakeCmdable()
	client.setErr = errors.New("write failed")
	b := NewRedisBackend(client, "run-1", 50*time.Millisecond, time.Minute, zap.NewNop())

	b.Store("ardrive", Entry{ResolvedID: "tx-1"})
	require.True(t, b.disabled())
}
