// Package buffer implements the lock-free buffer exchange between the audio
// callback and the analysis thread.
//
// Two SPSC queues carry pre-allocated buffers in a cycle:
//
//	pool queue:  analysis thread  -> audio callback   (empty, ready for capture)
//	data queue:  audio callback   -> analysis thread  (filled, awaiting analysis)
//
// The callback pops an empty buffer, fills it, and publishes it; the analysis
// thread takes it, processes it, and releases it back. Every buffer has
// exactly one owner at any instant, and no allocation happens after NewPool.
package buffer

import (
	"errors"
	"time"
)

// Default sizing: 16 buffers of 2048 samples gives the analysis thread
// roughly 0.7 s of slack at 48 kHz before capture periods are dropped.
const (
	DefaultBufferCount = 16
	DefaultBufferSize  = 2048
)

// ErrExhausted is returned by Acquire when the pool queue is empty. The audio
// callback must treat this as "skip capture this period", never as fatal.
var ErrExhausted = errors.New("buffer pool exhausted")

// Buffer is a fixed-capacity block of mono samples owned by exactly one side
// at a time. Start is the engine frame counter value at the first sample,
// stamped by the audio callback before Publish.
type Buffer struct {
	Data  []float32
	Start uint64
}

// Pool owns the two queues and the pre-allocated buffer set.
type Pool struct {
	data *ring // filled buffers awaiting analysis
	free *ring // empty buffers available for capture
}

// NewPool pre-allocates count buffers of size samples and parks them all on
// the pool queue. This is the only place the package allocates.
func NewPool(count, size int) *Pool {
	if count <= 0 {
		count = DefaultBufferCount
	}
	if size <= 0 {
		size = DefaultBufferSize
	}

	p := &Pool{
		data: newRing(count),
		free: newRing(count),
	}
	for i := 0; i < count; i++ {
		p.free.push(&Buffer{Data: make([]float32, size)})
	}
	return p
}

// Acquire pops an empty buffer from the pool queue. Called only from the
// audio callback. O(1), allocation-free, never blocks.
func (p *Pool) Acquire() (*Buffer, error) {
	b := p.free.pop()
	if b == nil {
		return nil, ErrExhausted
	}
	return b, nil
}

// Publish hands a filled buffer to the analysis thread. Called only from the
// audio callback. A full data queue cannot happen while buffer ownership is
// respected, but a false return is still tolerated by dropping the period.
func (p *Pool) Publish(b *Buffer) bool {
	return p.data.push(b)
}

// Release returns a processed buffer to the pool queue. Called only from the
// analysis thread.
func (p *Pool) Release(b *Buffer) {
	b.Start = 0
	p.free.push(b)
}

// TryTake pops a filled buffer without blocking.
func (p *Pool) TryTake() (*Buffer, bool) {
	b := p.data.pop()
	return b, b != nil
}

// Take blocks until a filled buffer is available or stop is closed. Used only
// by the analysis thread; the poll interval is far below one buffer period,
// so added latency is negligible.
func (p *Pool) Take(stop <-chan struct{}) (*Buffer, bool) {
	for {
		if b := p.data.pop(); b != nil {
			return b, true
		}
		select {
		case <-stop:
			// Drain whatever the callback already published so shutdown
			// leaves no buffer stranded on the data queue.
			if b := p.data.pop(); b != nil {
				return b, true
			}
			return nil, false
		case <-time.After(time.Millisecond):
		}
	}
}

// Available reports how many empty buffers are queued for capture.
func (p *Pool) Available() int {
	return p.free.len()
}

// Pending reports how many filled buffers are queued for analysis.
func (p *Pool) Pending() int {
	return p.data.len()
}
