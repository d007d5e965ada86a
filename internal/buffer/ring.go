package buffer

import (
	"sync/atomic"

	"beatbox/pkg/bitint"
)

// ring is a fixed-capacity single-producer/single-consumer queue of buffer
// pointers. One goroutine may push and one may pop; head and tail are only
// ever written by their owning side, so a push and a pop never contend.
//
// Capacity is rounded up to a power of two so the index wrap is a mask
// instead of a modulo.
type ring struct {
	slots []*Buffer
	mask  uint64
	head  atomic.Uint64 // next slot to pop, advanced by the consumer
	tail  atomic.Uint64 // next slot to fill, advanced by the producer
}

func newRing(capacity int) *ring {
	n := bitint.NextPowerOfTwo(capacity)
	return &ring{
		slots: make([]*Buffer, n),
		mask:  uint64(n - 1),
	}
}

// push appends b. Returns false if the ring is full. Producer side only.
func (r *ring) push(b *Buffer) bool {
	t := r.tail.Load()
	if t-r.head.Load() > r.mask {
		return false
	}
	r.slots[t&r.mask] = b
	r.tail.Store(t + 1)
	return true
}

// pop removes and returns the oldest buffer, or nil if the ring is empty.
// Consumer side only.
func (r *ring) pop() *Buffer {
	h := r.head.Load()
	if h == r.tail.Load() {
		return nil
	}
	b := r.slots[h&r.mask]
	r.slots[h&r.mask] = nil
	r.head.Store(h + 1)
	return b
}

// len reports the number of queued buffers. Approximate under concurrency,
// exact when only one side is active.
func (r *ring) len() int {
	return int(r.tail.Load() - r.head.Load())
}
