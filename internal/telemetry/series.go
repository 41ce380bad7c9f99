// Package telemetry implements the mock live-telemetry feed: a bounded series
// of synthetic power readings that moves by a random walk on every tick.
package telemetry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"energy-livefeed/internal/model"
	"energy-livefeed/internal/ringbuf"
)

const (
	// DefaultCapacity is the maximum number of samples kept in the series.
	DefaultCapacity = 100
	// DefaultSeedCount is the number of backfilled samples created by Seed.
	DefaultSeedCount = 40
	// DefaultWindow is the number of samples returned by Window(n) for n <= 0.
	DefaultWindow = 40
	// SeedSpacing is the backfilled distance between seeded samples.
	SeedSpacing = 2 * time.Second
)

// Per-tick random walk bounds (symmetric, inclusive).
const (
	InverterStep = 0.1
	GridStep     = 0.05
	LoadStep     = 0.075
)

// Breaker is sampled closed when U(0,1) exceeds these thresholds.
const (
	seedBreakerOpenP = 0.08
	tickBreakerOpenP = 0.05
)

// ErrNotSeeded is returned by operations that need at least one sample.
var ErrNotSeeded = errors.New("telemetry: series not seeded")

// Source yields uniform pseudo-random numbers in [0, 1).
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Clock returns the current time.
type Clock func() time.Time

// Config holds optional dependencies of a Series. Zero values select defaults.
type Config struct {
	Capacity  int
	SeedCount int
	Rand      Source
	Clock     Clock
}

func (c *Config) defaults() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.SeedCount <= 0 {
		c.SeedCount = DefaultSeedCount
	}
	if c.SeedCount > c.Capacity {
		c.SeedCount = c.Capacity
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Series is the bounded, time-ordered collection of samples.
// Seed and Tick must be called from a single goroutine; reads may run
// concurrently with them.
type Series struct {
	cfg  Config
	ring *ringbuf.Ring
}

// NewSeries creates an empty series. Call Seed before Tick.
func NewSeries(cfg Config) *Series {
	cfg.defaults()
	return &Series{
		cfg:  cfg,
		ring: ringbuf.New(cfg.Capacity),
	}
}

// Seed discards any existing samples and backfills SeedCount samples spaced
// SeedSpacing apart, ending just before now.
func (s *Series) Seed() {
	s.ring.Reset()

	now := s.cfg.Clock()
	n := s.cfg.SeedCount
	for i := 0; i < n; i++ {
		fi := float64(i)
		s.ring.Push(model.Sample{
			TS:            now.Add(-time.Duration(n-i) * SeedSpacing),
			InverterKW:    2.4 + 0.6*math.Sin(fi/3) + s.uniform(0, 0.1),
			GridKW:        -0.6 + 0.2*math.Cos(fi/4) + s.uniform(0, 0.05),
			LoadKW:        1.8 + 0.4*math.Sin(fi/5) + s.uniform(0, 0.1),
			BreakerClosed: s.cfg.Rand.Float64() > seedBreakerOpenP,
		})
	}
}

// Tick appends the next random-walk step of the latest sample and returns it.
// The oldest sample is evicted once the series exceeds its capacity.
func (s *Series) Tick() (model.Sample, error) {
	next, _, err := s.step()
	return next, err
}

// step is Tick reporting whether an eviction happened.
func (s *Series) step() (model.Sample, bool, error) {
	prev, ok := s.ring.Last()
	if !ok {
		return model.Sample{}, false, ErrNotSeeded
	}

	ts := s.cfg.Clock()
	if ts.Before(prev.TS) {
		// Wall clock stepped backwards; keep the series ordered.
		ts = prev.TS
	}

	next := model.Sample{
		TS:            ts,
		InverterKW:    prev.InverterKW + s.uniform(-InverterStep, InverterStep),
		GridKW:        prev.GridKW + s.uniform(-GridStep, GridStep),
		LoadKW:        prev.LoadKW + s.uniform(-LoadStep, LoadStep),
		BreakerClosed: s.cfg.Rand.Float64() > tickBreakerOpenP,
	}
	evicted := s.ring.Push(next)
	return next, evicted, nil
}

// Latest returns the most recently appended sample.
func (s *Series) Latest() (model.Sample, error) {
	last, ok := s.ring.Last()
	if !ok {
		return model.Sample{}, ErrNotSeeded
	}
	return last, nil
}

// Window returns the last n samples in chronological order.
// n <= 0 selects DefaultWindow.
func (s *Series) Window(n int) []model.Sample {
	if n <= 0 {
		n = DefaultWindow
	}
	return s.ring.Tail(n)
}

// Len returns the number of samples in the series.
func (s *Series) Len() int {
	return s.ring.Len()
}

// Cap returns the maximum series length.
func (s *Series) Cap() int {
	return s.ring.Cap()
}

// Evicted returns how many samples have been dropped since creation.
func (s *Series) Evicted() uint64 {
	return s.ring.Evicted()
}

// uniform draws from [lo, hi).
func (s *Series) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.cfg.Rand.Float64()
}
