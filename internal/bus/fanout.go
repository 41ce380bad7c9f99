// Package bus fans samples from the feed out to independent consumers.
package bus

import (
	"log/slog"
	"sync"

	"energy-livefeed/internal/model"
)

// FanOut broadcasts samples to N buffered output channels.
// If an output channel is full, the sample is dropped for that consumer so a
// slow consumer never stalls the tick.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Sample
	bufSize int
	closed  bool

	// OnDrop is called when a sample is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	if outputBufferSize < 0 {
		outputBufferSize = 0
	}
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel.
// Subscribing after Close returns an already-closed channel.
func (f *FanOut) Subscribe() <-chan model.Sample {
	ch := make(chan model.Sample, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.outputs = append(f.outputs, ch)
	return ch
}

// Publish delivers s to every subscriber without blocking.
// It has the model.Observer signature so it can be registered on a feed.
func (f *FanOut) Publish(s model.Sample) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for i, ch := range f.outputs {
		select {
		case ch <- s:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				slog.Warn("bus: output channel full, dropping sample",
					slog.Int("subscriber", i),
					slog.Time("ts", s.TS))
			}
		}
	}
}

// Close closes every output channel. Publish after Close is a no-op.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.outputs {
		close(ch)
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns a ChannelStat per subscriber, in subscription order.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
