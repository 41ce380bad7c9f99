// Package ringbuf provides a fixed-capacity circular buffer of model.Sample
// that overwrites the oldest entry once full. One writer and any number of
// concurrent readers are supported.
package ringbuf

import (
	"sync"
	"sync/atomic"

	"energy-livefeed/internal/model"
)

// Ring is a bounded FIFO of samples. Push never fails: when the ring is full
// the oldest sample is evicted to make room.
type Ring struct {
	mu   sync.RWMutex
	buf  []model.Sample
	pos  int // next write position
	full bool

	// Eviction counter (atomic, for metrics)
	evicted atomic.Uint64
}

// New creates a ring holding at most capacity samples. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.Sample, capacity)}
}

// Push appends a sample. Returns true if the oldest sample was evicted.
func (r *Ring) Push(s model.Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := r.full
	r.buf[r.pos] = s
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 {
		r.full = true
	}
	if evicted {
		r.evicted.Add(1)
	}
	return evicted
}

// Last returns the most recently pushed sample.
// Returns false if the ring is empty.
func (r *Ring) Last() (model.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.len() == 0 {
		return model.Sample{}, false
	}
	return r.buf[r.index(r.len()-1)], true
}

// First returns the oldest sample still held.
// Returns false if the ring is empty.
func (r *Ring) First() (model.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.len() == 0 {
		return model.Sample{}, false
	}
	return r.buf[r.index(0)], true
}

// Tail returns a copy of the last n samples, oldest first.
// n larger than Len returns everything; n <= 0 returns nil.
func (r *Ring) Tail(n int) []model.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.len()
	if n <= 0 || count == 0 {
		return nil
	}
	if n > count {
		n = count
	}
	out := make([]model.Sample, n)
	start := count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[r.index(start+i)]
	}
	return out
}

// Reset drops every sample. The eviction counter is kept.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.pos = 0
	r.full = false
	clear(r.buf)
	r.mu.Unlock()
}

// Len returns the current number of samples in the ring.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Evicted returns the total number of samples dropped to make room.
func (r *Ring) Evicted() uint64 {
	return r.evicted.Load()
}

func (r *Ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (r *Ring) index(logical int) int {
	if r.full {
		return (r.pos + logical) % len(r.buf)
	}
	return logical
}
