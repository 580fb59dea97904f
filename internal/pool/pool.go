// Package pool recycles the buffers used to build sink request bodies.
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// MaxPooledSize caps the capacity of buffers returned to the pool so one
// oversized batch does not pin its memory
const MaxPooledSize = 4 << 20

var (
	gets    atomic.Uint64
	allocs  atomic.Uint64
	dropped atomic.Uint64
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		allocs.Add(1)
		return new(bytes.Buffer)
	},
}

// GetBuffer returns an empty buffer from the pool
func GetBuffer() *bytes.Buffer {
	gets.Add(1)
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. The caller must not use buf, or any
// slice obtained from buf.Bytes, afterwards.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > MaxPooledSize {
		dropped.Add(1)
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// Stats counts pool usage since process start
type Stats struct {
	Gets    uint64
	Allocs  uint64
	Dropped uint64
}

// GetStats returns current pool statistics
func GetStats() Stats {
	return Stats{
		Gets:    gets.Load(),
		Allocs:  allocs.Load(),
		Dropped: dropped.Load(),
	}
}
