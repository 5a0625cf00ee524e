package refcache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang/snappy"
	"go.uber.org/zap"
)

// defaultEntryTTL bounds how long a reference entry may live in Redis
// when the caller doesn't configure one. It only needs to outlast one
// report run; a generous default TTL means a crashed observer doesn't
// leave the keyspace growing unbounded, without claiming the cache is
// valid across epochs.
const defaultEntryTTL = 60 * time.Second

const keyPrefixBase = "arns-observer:refcache:"

// RedisBackend stores Entry values snappy-compressed, JSON-encoded, and
// namespaced under a per-run key prefix so concurrent GenerateReport
// calls sharing the same Redis instance never read or overwrite each
// other's entries.
type RedisBackend struct {
	client         redis.Cmdable
	clientTimeout  time.Duration
	ttl            time.Duration
	keyPrefix      string
	logger         *zap.Logger
	clientDisabled uint32
}

// NewRedisBackend wires a RedisBackend scoped to runID: every key it
// touches is namespaced under runID so two concurrent GenerateReport
// calls against the same Redis instance never cross-contaminate. client
// is never closed by Close(); the caller owns the client's lifecycle
// since it may be shared across runs. ttl <= 0 falls back to
// defaultEntryTTL.
func NewRedisBackend(client redis.Cmdable, runID string, clientTimeout, ttl time.Duration, logger *zap.Logger) *RedisBackend {
	if clientTimeout <= 0 {
		clientTimeout = 200 * time.Millisecond
	}
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		client:        client,
		clientTimeout: clientTimeout,
		ttl:           ttl,
		keyPrefix:     keyPrefixBase + runID + ":",
		logger:        logger,
	}
}

func (r *RedisBackend) disabled() bool {
	return atomic.LoadUint32(&r.clientDisabled) != 0
}

// disableClient flips the circuit breaker off after one failure for the
// remainder of this run: a single report generation is short-lived, so
// there's no value in background-pinging to re-enable it the way a
// long-lived daemon cache would.
func (r *RedisBackend) disableClient() {
	if atomic.CompareAndSwapUint32(&r.clientDisabled, 0, 1) {
		r.logger.Warn("reference cache redis backend disabled for remainder of run")
	}
}

func (r *RedisBackend) Get(name string) (Entry, bool) {
	if r.disabled() {
		return Entry{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.clientTimeout)
	defer cancel()
	raw, err := r.client.Get(ctx, r.keyPrefix+name).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("reference cache redis get", zap.Error(err))
			r.disableClient()
		}
		return Entry{}, false
	}

	decompressed, err := snappy.Decode(nil, raw)
	if err != nil {
		r.logger.Warn("reference cache redis decompress", zap.Error(err))
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(decompressed, &entry); err != nil {
		r.logger.Warn("reference cache redis unmarshal", zap.Error(err))
		return Entry{}, false
	}
	return entry, true
}

func (r *RedisBackend) Store(name string, entry Entry) {
	if r.disabled() {
		return
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		r.logger.Warn("reference cache redis marshal", zap.Error(err))
		return
	}
	compressed := snappy.Encode(nil, encoded)

	ctx, cancel := context.WithTimeout(context.Background(), r.clientTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.keyPrefix+name, compressed, r.ttl).Err(); err != nil {
		r.logger.Warn("reference cache redis set", zap.Error(err))
		r.disableClient()
	}
}

func (r *RedisBackend) Close() error {
	return nil
}
