package pools

import "sync"

// Buffer size tiers, adapted from the teacher's core/pools/buffer_pool.go.
const (
	SmallBufferSize  = 2 * 1024
	MediumBufferSize = 8 * 1024
	LargeBufferSize  = 32 * 1024
)

// BufferPool hands out reusable byte slices for response construction and
// the Connection's 8-KiB read chunks, in three capacity tiers.
type BufferPool struct {
	small, medium, large sync.Pool
}

// NewBufferPool creates a pool with all three tiers initialized.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small:  sync.Pool{New: func() any { b := make([]byte, 0, SmallBufferSize); return &b }},
		medium: sync.Pool{New: func() any { b := make([]byte, 0, MediumBufferSize); return &b }},
		large:  sync.Pool{New: func() any { b := make([]byte, 0, LargeBufferSize); return &b }},
	}
}

// Get returns a buffer with capacity at least estimatedSize, from the
// smallest tier that fits.
func (bp *BufferPool) Get(estimatedSize int) *[]byte {
	switch {
	case estimatedSize <= SmallBufferSize:
		return bp.small.Get().(*[]byte)
	case estimatedSize <= MediumBufferSize:
		return bp.medium.Get().(*[]byte)
	default:
		return bp.large.Get().(*[]byte)
	}
}

// Put returns buf to the pool tier matching its capacity. Oversized
// buffers are dropped so the GC can reclaim them.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	*buf = (*buf)[:0]
	switch cap(*buf) {
	case SmallBufferSize:
		bp.small.Put(buf)
	case MediumBufferSize:
		bp.medium.Put(buf)
	case LargeBufferSize:
		bp.large.Put(buf)
	}
}
