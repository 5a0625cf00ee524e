package refcache

import (
	"sync/atomic"

	"github.com/ar-io/observer-core/pkg/concurrent_lru"
)

// MemBackend is a size-bounded, sharded in-process store. Eviction is
// strictly size-based LRU; there is no TTL, because an Entry only ever
// needs to live for the duration of one generateReport call — the
// caller discards the whole backend (NewMemBackend's result) once the
// run finishes.
type MemBackend struct {
	closed uint32
	lru    *concurrent_lru.ShardedLRU[Entry]
}

const shardCount = 16

// NewMemBackend builds a MemBackend sized for one report run: size is
// the maximum number of distinct ArNS names expected to appear across
// every gateway's prescribed/chosen lists in that run.
func NewMemBackend(size int) *MemBackend {
	perShard := size / shardCount
	if perShard < 16 {
		perShard = 16
	}
	return &MemBackend{
		lru: concurrent_lru.NewShardedLRU[Entry](shardCount, perShard, nil),
	}
}

func (m *MemBackend) Get(name string) (Entry, bool) {
	if atomic.LoadUint32(&m.closed) != 0 {
		return Entry{}, false
	}
	return m.lru.Get(name)
}

func (m *MemBackend) Store(name string, entry Entry) {
	if atomic.LoadUint32(&m.closed) != 0 {
		return
	}
	m.lru.Add(name, entry)
}

func (m *MemBackend) Close() error {
	atomic.StoreUint32(&m.closed, 1)
	return nil
}
