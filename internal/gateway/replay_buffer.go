package gateway

import "sync"

// replayEntry holds a single broadcast envelope for replay.
type replayEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// ReplayBuffer keeps the most recent sample envelopes for gap backfill.
// Sequence numbers are expected to be contiguous; slot i holds seq where
// seq % capacity == i, and [oldest, newest] is the retained range.
// A push that breaks the sequence (e.g. a restarted counter) drops history.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu     sync.RWMutex
	slots  [][]byte
	oldest int64 // 0 when empty
	newest int64
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{slots: make([][]byte, capacity)}
}

// Push stores the envelope for seq, evicting the oldest entry when full.
// data is copied.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.oldest == 0 || seq != rb.newest+1 {
		clear(rb.slots)
		rb.oldest = seq
	}
	rb.slots[rb.slot(seq)] = cp
	rb.newest = seq
	if rb.newest-rb.oldest >= int64(len(rb.slots)) {
		rb.oldest = rb.newest - int64(len(rb.slots)) + 1
	}
}

// Range returns all entries with seq in [fromSeq, toSeq] (inclusive), in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.collect(fromSeq, toSeq)
}

// Since returns every entry after afterSeq. ok is false when the buffer
// cannot bring a client at afterSeq up to date: entries after it were
// already overwritten, or afterSeq is ahead of anything broadcast (the
// client is from an earlier server run). The caller then sends a snapshot.
func (rb *ReplayBuffer) Since(afterSeq int64) (entries []replayEntry, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.oldest == 0 || afterSeq+1 < rb.oldest || afterSeq > rb.newest {
		return nil, false
	}
	return rb.collect(afterSeq+1, rb.newest), true
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.oldest == 0 {
		return 0
	}
	return int(rb.newest - rb.oldest + 1)
}

// collect must be called with rb.mu held.
func (rb *ReplayBuffer) collect(from, to int64) []replayEntry {
	if rb.oldest == 0 {
		return nil
	}
	from = max(from, rb.oldest)
	to = min(to, rb.newest)
	if from > to {
		return nil
	}
	out := make([]replayEntry, 0, to-from+1)
	for seq := from; seq <= to; seq++ {
		out = append(out, replayEntry{Seq: seq, Data: rb.slots[rb.slot(seq)]})
	}
	return out
}

func (rb *ReplayBuffer) slot(seq int64) int {
	i := seq % int64(len(rb.slots))
	if i < 0 {
		i += int64(len(rb.slots))
	}
	return int(i)
}
