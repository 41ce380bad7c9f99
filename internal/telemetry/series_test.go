package telemetry

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

// constSource always returns the same value.
type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

// fakeClock advances by step on every call.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

const eps = 1e-9

func newTestSeries(t *testing.T) *Series {
	t.Helper()
	return NewSeries(Config{Rand: rand.New(rand.NewSource(42))})
}

func TestSeries_Seed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSeries(Config{
		Rand:  rand.New(rand.NewSource(1)),
		Clock: func() time.Time { return now },
	})
	s.Seed()

	if s.Len() != 40 {
		t.Fatalf("expected len=40 after seed, got %d", s.Len())
	}

	w := s.Window(40)
	first, last := w[0], w[len(w)-1]
	if !first.TS.Equal(now.Add(-80 * time.Second)) {
		t.Errorf("first ts = %v, want now-80s", first.TS)
	}
	if !last.TS.Equal(now.Add(-2 * time.Second)) {
		t.Errorf("last ts = %v, want now-2s", last.TS)
	}
	for i := 1; i < len(w); i++ {
		if got := w[i].TS.Sub(w[i-1].TS); got != SeedSpacing {
			t.Fatalf("spacing at %d = %v, want %v", i, got, SeedSpacing)
		}
	}
}

func TestSeries_SeedLastTimestampNearNow(t *testing.T) {
	s := newTestSeries(t)
	s.Seed()

	last, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest after seed: %v", err)
	}
	if age := time.Since(last.TS); age < 0 || age > 3*time.Second {
		t.Errorf("last seeded sample should be ~now, age=%v", age)
	}
}

func TestSeries_SeedFormula(t *testing.T) {
	// With U(0,1) pinned at 0 every noise term vanishes.
	s := NewSeries(Config{Rand: constSource(0)})
	s.Seed()

	for i, smp := range s.Window(40) {
		fi := float64(i)
		if want := 2.4 + 0.6*math.Sin(fi/3); math.Abs(smp.InverterKW-want) > eps {
			t.Errorf("[%d] inverter = %v, want %v", i, smp.InverterKW, want)
		}
		if want := -0.6 + 0.2*math.Cos(fi/4); math.Abs(smp.GridKW-want) > eps {
			t.Errorf("[%d] grid = %v, want %v", i, smp.GridKW, want)
		}
		if want := 1.8 + 0.4*math.Sin(fi/5); math.Abs(smp.LoadKW-want) > eps {
			t.Errorf("[%d] load = %v, want %v", i, smp.LoadKW, want)
		}
		if smp.BreakerClosed {
			t.Errorf("[%d] breaker should be open when U=0", i)
		}
	}
}

func TestSeries_SeedTwiceResets(t *testing.T) {
	s := newTestSeries(t)
	s.Seed()
	s.Tick()
	s.Seed()
	if s.Len() != 40 {
		t.Fatalf("expected len=40 after reseed, got %d", s.Len())
	}
}

func TestSeries_NotSeeded(t *testing.T) {
	s := newTestSeries(t)

	if _, err := s.Tick(); !IsNotSeeded(err) {
		t.Errorf("Tick before Seed: expected ErrNotSeeded, got %v", err)
	}
	if _, err := s.Latest(); !IsNotSeeded(err) {
		t.Errorf("Latest before Seed: expected ErrNotSeeded, got %v", err)
	}
	if w := s.Window(40); len(w) != 0 {
		t.Errorf("Window before Seed: expected empty, got %d", len(w))
	}
}

func TestSeries_LengthNeverExceedsCap(t *testing.T) {
	s := newTestSeries(t)
	s.Seed()

	for i := 0; i < 500; i++ {
		if _, err := s.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if s.Len() > 100 {
			t.Fatalf("len=%d exceeds 100 after %d ticks", s.Len(), i+1)
		}
	}
	if s.Len() != 100 {
		t.Fatalf("expected len=100, got %d", s.Len())
	}
}

func TestSeries_SixtyOneTicksEvictsOldest(t *testing.T) {
	s := newTestSeries(t)
	s.Seed()
	seeded := s.Window(40)

	for i := 0; i < 61; i++ {
		s.Tick()
	}

	if s.Len() != 100 {
		t.Fatalf("expected len=100 (40+61 capped), got %d", s.Len())
	}
	earliest := s.Window(100)[0]
	if earliest != seeded[1] {
		t.Fatalf("earliest survivor = %+v, want 2nd seeded sample %+v", earliest, seeded[1])
	}
	if s.Evicted() != 1 {
		t.Fatalf("expected 1 eviction, got %d", s.Evicted())
	}
}

func TestSeries_TickDeltaBounds(t *testing.T) {
	s := newTestSeries(t)
	s.Seed()

	prev, _ := s.Latest()
	for i := 0; i < 1000; i++ {
		next, err := s.Tick()
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if d := math.Abs(next.InverterKW - prev.InverterKW); d > InverterStep+eps {
			t.Fatalf("tick %d: inverter delta %v > %v", i, d, InverterStep)
		}
		if d := math.Abs(next.GridKW - prev.GridKW); d > GridStep+eps {
			t.Fatalf("tick %d: grid delta %v > %v", i, d, GridStep)
		}
		if d := math.Abs(next.LoadKW - prev.LoadKW); d > LoadStep+eps {
			t.Fatalf("tick %d: load delta %v > %v", i, d, LoadStep)
		}
		prev = next
	}
}

func TestSeries_TickExtremes(t *testing.T) {
	cases := []struct {
		name    string
		u       float64
		wantInv float64
		closed  bool
	}{
		{"low", 0, -InverterStep, false},
		{"mid", 0.5, 0, true},
		{"high", 1 - 1e-12, InverterStep, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSeries(Config{Rand: constSource(tc.u)})
			s.Seed()
			prev, _ := s.Latest()
			next, _ := s.Tick()

			if d := next.InverterKW - prev.InverterKW; math.Abs(d-tc.wantInv) > 1e-6 {
				t.Errorf("inverter delta = %v, want %v", d, tc.wantInv)
			}
			if next.BreakerClosed != tc.closed {
				t.Errorf("breaker = %v, want %v", next.BreakerClosed, tc.closed)
			}
		})
	}
}

func TestSeries_TimestampsNonDecreasing(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), step: 2 * time.Second}
	s := NewSeries(Config{Rand: rand.New(rand.NewSource(7)), Clock: clk.Now})
	s.Seed()
	for i := 0; i < 150; i++ {
		s.Tick()
	}

	w := s.Window(100)
	for i := 1; i < len(w); i++ {
		if w[i].TS.Before(w[i-1].TS) {
			t.Fatalf("timestamp decreased at %d: %v < %v", i, w[i].TS, w[i-1].TS)
		}
	}
}

func TestSeries_ClockStepsBackwards(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := now
	s := NewSeries(Config{Rand: constSource(0.5), Clock: func() time.Time { return clk }})
	s.Seed()

	clk = now.Add(-time.Hour)
	prev, _ := s.Latest()
	next, _ := s.Tick()
	if next.TS.Before(prev.TS) {
		t.Fatalf("tick ts %v precedes previous %v", next.TS, prev.TS)
	}
}

func TestSeries_Window(t *testing.T) {
	s := newTestSeries(t)
	s.Seed()
	for i := 0; i < 30; i++ {
		s.Tick()
	}

	all := s.Window(100)
	w := s.Window(40)
	if len(w) != 40 {
		t.Fatalf("Window(40): expected 40, got %d", len(w))
	}
	offset := len(all) - 40
	for i := range w {
		if w[i] != all[offset+i] {
			t.Fatalf("Window(40)[%d] is not the %d-th most recent sample", i, 40-i)
		}
	}
	if def := s.Window(0); len(def) != DefaultWindow {
		t.Errorf("Window(0): expected default %d, got %d", DefaultWindow, len(def))
	}
	if big := s.Window(1000); len(big) != s.Len() {
		t.Errorf("Window(1000): expected %d, got %d", s.Len(), len(big))
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{Capacity: 10, SeedCount: 50}
	cfg.defaults()
	if cfg.SeedCount != 10 {
		t.Errorf("seed count should be capped at capacity, got %d", cfg.SeedCount)
	}
	if cfg.Rand == nil || cfg.Clock == nil {
		t.Error("defaults should fill Rand and Clock")
	}
}
