// Package pool provides sync.Pool-backed recycling of short-lived
// allocations used while streaming and timing HTTP probe bodies.
package pool

import (
	"bytes"
	"sync"
)

const maxPooledBufCap = 64 * 1024

var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetBuf returns a *bytes.Buffer from the pool. The caller MUST call
// ReleaseBuf after use.
func GetBuf() *bytes.Buffer {
	return bufPool.Get().(*bytes.Buffer)
}

// ReleaseBuf resets buf and returns it to the pool. Buffers that grew
// past maxPooledBufCap are dropped instead of recycled, so one outsized
// body read doesn't permanently bloat the pool.
func ReleaseBuf(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBufCap {
		return
	}
	buf.Reset()
	bufPool.Put(buf)
}

const chunkSize = 32 * 1024

var chunkPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, chunkSize)
	},
}

// GetChunk returns a reusable fixed-size read buffer. The caller MUST
// call ReleaseChunk after use.
func GetChunk() []byte {
	return chunkPool.Get().([]byte)
}

// ReleaseChunk returns a buffer obtained from GetChunk to the pool.
func ReleaseChunk(b []byte) {
	if cap(b) != chunkSize {
		return
	}
	chunkPool.Put(b[:chunkSize])
}
