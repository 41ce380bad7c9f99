package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"energy-livefeed/internal/model"
)

// DefaultInterval is the period between ticks.
const DefaultInterval = 2 * time.Second

// TickInfo describes one completed tick. It is passed to OnTick.
type TickInfo struct {
	Sample   model.Sample
	Evicted  bool
	Len      int
	Duration time.Duration
}

// Feed owns a Series and drives it from a repeating timer. Observers are
// notified synchronously, in registration order, once per tick.
type Feed struct {
	series   *Series
	interval time.Duration
	log      *slog.Logger

	// OnTick is called after observers for every completed tick.
	OnTick func(TickInfo)

	// OnTickError is called when a timer tick is skipped.
	OnTickError func(error)

	mu        sync.Mutex
	observers []model.Observer
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewFeed wraps series with a scheduler. interval <= 0 selects DefaultInterval.
func NewFeed(series *Series, interval time.Duration, logger *slog.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		series:   series,
		interval: interval,
		log:      logger.With(slog.String("component", "feed")),
	}
}

// Subscribe registers an observer fired with every new sample.
func (f *Feed) Subscribe(o model.Observer) {
	f.mu.Lock()
	f.observers = append(f.observers, o)
	f.mu.Unlock()
}

// Start seeds the series if it is empty and starts the tick timer.
// The timer stops when ctx is cancelled or Stop is called.
// Calling Start on a running feed is a no-op.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.done != nil {
		f.mu.Unlock()
		return
	}
	if f.series.Len() == 0 {
		f.series.Seed()
		f.log.Info("series seeded", slog.Int("len", f.series.Len()))
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	go f.run(ctx, done)
	f.log.Info("feed started", slog.Duration("interval", f.interval))
}

// Stop cancels the timer and waits for the in-flight tick to finish.
// Safe to call more than once.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	f.log.Info("feed stopped")
}

// Running reports whether the tick timer is active.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done != nil
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.TickOnce(); err != nil {
				f.log.Warn("tick skipped", slog.String("error", err.Error()))
				if f.OnTickError != nil {
					f.OnTickError(err)
				}
			}
		}
	}
}

// TickOnce advances the series by one step and notifies observers.
// It is what the timer calls; offline tools call it directly.
func (f *Feed) TickOnce() (model.Sample, error) {
	start := time.Now()
	next, evicted, err := f.series.step()
	if err != nil {
		return model.Sample{}, err
	}

	f.mu.Lock()
	observers := make([]model.Observer, len(f.observers))
	copy(observers, f.observers)
	f.mu.Unlock()

	for _, o := range observers {
		o(next)
	}

	if f.OnTick != nil {
		f.OnTick(TickInfo{
			Sample:   next,
			Evicted:  evicted,
			Len:      f.series.Len(),
			Duration: time.Since(start),
		})
	}
	f.log.Debug("tick",
		slog.Float64("inverter_kw", next.InverterKW),
		slog.Float64("grid_kw", next.GridKW),
		slog.Float64("load_kw", next.LoadKW),
		slog.Bool("breaker_closed", next.BreakerClosed),
	)
	return next, nil
}

// Seed resets the series to a fresh seeded window. Used by offline tools
// that drive the feed with TickOnce instead of Start.
func (f *Feed) Seed() { f.series.Seed() }

// Latest returns the most recent sample of the underlying series.
func (f *Feed) Latest() (model.Sample, error) { return f.series.Latest() }

// Window returns the last n samples of the underlying series.
func (f *Feed) Window(n int) []model.Sample { return f.series.Window(n) }

// Len returns the length of the underlying series.
func (f *Feed) Len() int { return f.series.Len() }

// Interval returns the tick period.
func (f *Feed) Interval() time.Duration { return f.interval }

// IsNotSeeded reports whether err is the empty-series precondition error.
func IsNotSeeded(err error) bool { return errors.Is(err, ErrNotSeeded) }
