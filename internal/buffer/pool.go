// Package buffer provides a pool of reusable fixed-capacity byte
// buffers so size-bound payload handling avoids per-call allocation.
package buffer

import (
	"sync"

	"github.com/optilayer/optilayer/pkg/errors"
	"github.com/optilayer/optilayer/pkg/types"
)

// bucketSizes are the buffer capacities the pool pre-classifies into.
var bucketSizes = []int{
	1024,    // 1KB
	4096,    // 4KB
	16384,   // 16KB
	65536,   // 64KB
	262144,  // 256KB
	1048576, // 1MB
	4194304, // 4MB
}

// Buffer is a pooled byte buffer. It is exclusively owned by the
// acquiring caller until released; the generation tag lets the pool
// reject releases of buffers it no longer considers live.
type Buffer struct {
	data       []byte
	length     int
	generation uint64
}

// Bytes returns the buffer contents sliced to the acquired size.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.length]
}

// Cap returns the underlying capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Pool manages free-lists of buffers keyed by capacity bucket.
// Acquire and Release are O(1).
type Pool struct {
	mu         sync.Mutex
	free       map[int][]*Buffer
	live       map[*Buffer]uint64
	maxBuffers int
	nextGen    uint64

	total      int
	totalBytes int64
	inUseBytes int64
}

// NewPool creates a buffer pool. maxBuffers caps the total number of
// buffers the pool will hold; zero means unbounded.
func NewPool(maxBuffers int) *Pool {
	return &Pool{
		free:       make(map[int][]*Buffer),
		live:       make(map[*Buffer]uint64),
		maxBuffers: maxBuffers,
	}
}

// Acquire returns a buffer with capacity of at least size, reusing a
// free buffer when one exists. When the pool is at its cap and no free
// buffer fits, Acquire fails with POOL_EXHAUSTED.
func (p *Pool) Acquire(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParams, "buffer size must be positive, got %d", size).
			WithComponent("buffer")
	}

	bucket := bucketFor(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	buf := p.popFree(bucket)
	if buf == nil {
		if p.maxBuffers > 0 && p.total >= p.maxBuffers {
			return nil, errors.Newf(errors.ErrCodePoolExhausted, "pool at capacity of %d buffers", p.maxBuffers).
				WithComponent("buffer").
				WithDetail("requested", size)
		}
		buf = &Buffer{data: make([]byte, bucket)}
		p.total++
		p.totalBytes += int64(bucket)
	}

	p.nextGen++
	buf.generation = p.nextGen
	buf.length = size
	p.live[buf] = p.nextGen
	p.inUseBytes += int64(cap(buf.data))

	return buf, nil
}

// Release returns a buffer to the pool. Releasing a buffer that is not
// live, or releasing one twice, fails with INVALID_RELEASE and leaves
// the pool unchanged.
func (p *Pool) Release(buf *Buffer) error {
	if buf == nil {
		return errors.NewError(errors.ErrCodeInvalidRelease, "nil buffer").WithComponent("buffer")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	gen, live := p.live[buf]
	if !live || gen != buf.generation {
		return errors.NewError(errors.ErrCodeInvalidRelease, "buffer is not acquired from this pool").
			WithComponent("buffer").
			WithDetail("generation", buf.generation)
	}

	delete(p.live, buf)
	p.inUseBytes -= int64(cap(buf.data))

	// Clear contents so a later acquirer never sees stale data.
	for i := range buf.data {
		buf.data[i] = 0
	}
	buf.length = 0

	bucket := cap(buf.data)
	p.free[bucket] = append(p.free[bucket], buf)

	return nil
}

// Stats returns current pool utilization.
func (p *Pool) Stats() types.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := types.PoolStats{
		Buffers:    p.total,
		InUse:      len(p.live),
		TotalBytes: p.totalBytes,
		InUseBytes: p.inUseBytes,
	}
	if p.totalBytes > 0 {
		stats.Utilization = float64(p.inUseBytes) / float64(p.totalBytes)
	}
	return stats
}

// popFree pops the most recently released buffer whose capacity fits
// the bucket, preferring an exact bucket match.
func (p *Pool) popFree(bucket int) *Buffer {
	for _, size := range append([]int{bucket}, largerBuckets(bucket)...) {
		stack := p.free[size]
		if len(stack) == 0 {
			continue
		}
		buf := stack[len(stack)-1]
		p.free[size] = stack[:len(stack)-1]
		return buf
	}
	return nil
}

// bucketFor rounds a size up to the smallest bucket that fits it.
// Sizes beyond the largest bucket get an exact-size allocation.
func bucketFor(size int) int {
	for _, bucket := range bucketSizes {
		if bucket >= size {
			return bucket
		}
	}
	return size
}

func largerBuckets(bucket int) []int {
	var out []int
	for _, size := range bucketSizes {
		if size > bucket {
			out = append(out, size)
		}
	}
	return out
}
