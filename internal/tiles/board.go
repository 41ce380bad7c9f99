package tiles

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"energy-livefeed/internal/model"
)

// Tile ids, matching the dashboard elements they drive.
const (
	StatInverter = "stat-inverter"
	StatGrid     = "stat-grid"
	StatLoad     = "stat-load"
	TileInverter = "tile-inverter"
	TileGrid     = "tile-grid"
)

// numericOrder is the stable output order of numeric tiles.
var numericOrder = []string{StatInverter, StatGrid, StatLoad, TileInverter, TileGrid}

// target extracts a tile's value from a sample. Grid tiles show magnitude.
var target = map[string]func(model.Sample) float64{
	StatInverter: func(s model.Sample) float64 { return s.InverterKW },
	StatGrid:     func(s model.Sample) float64 { return math.Abs(s.GridKW) },
	StatLoad:     func(s model.Sample) float64 { return s.LoadKW },
	TileInverter: func(s model.Sample) float64 { return s.InverterKW },
	TileGrid:     func(s model.Sample) float64 { return math.Abs(s.GridKW) },
}

// Fixed copy of the status tiles.
const (
	ModeText     = "Auto"
	ModeNote     = "AI adjusting within safe band"
	InverterNote = "Updated just now"
	GridNote     = "Within target band"
)

// NumericTile is one rendered numeric tile.
type NumericTile struct {
	ID    string  `json:"id"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

// Frame is a snapshot of every tile at one instant.
type Frame struct {
	At           time.Time     `json:"at"`
	Numeric      []NumericTile `json:"numeric"`
	Breaker      string        `json:"breaker"`
	BreakerNote  string        `json:"breaker_note"`
	Mode         string        `json:"mode"`
	ModeNote     string        `json:"mode_note"`
	InverterNote string        `json:"inverter_note"`
	GridNote     string        `json:"grid_note"`
	Animating    bool          `json:"animating"`
}

// FormatKW renders a power value the way the tiles display it.
func FormatKW(v float64) string {
	return fmt.Sprintf("%.2f kW", v)
}

// BreakerText returns the breaker tile text and note.
func BreakerText(closed bool) (text, note string) {
	if closed {
		return "Closed", "Normal operation"
	}
	return "Open", "Awaiting close"
}

// Board holds the animated state of the dashboard tiles. Safe for concurrent use.
type Board struct {
	duration time.Duration

	mu      sync.Mutex
	tweens  map[string]Tween
	breaker bool
	seen    bool
}

// NewBoard creates a board whose tiles start at zero.
// duration <= 0 selects DefaultDuration.
func NewBoard(duration time.Duration) *Board {
	if duration <= 0 {
		duration = DefaultDuration
	}
	tw := make(map[string]Tween, len(numericOrder))
	for _, id := range numericOrder {
		tw[id] = Tween{Duration: duration}
	}
	return &Board{duration: duration, tweens: tw}
}

// Update retargets every numeric tile to s. Each tile starts from the value it
// displays at now, so an interrupted animation continues without a jump.
func (b *Board) Update(s model.Sample, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range numericOrder {
		current, _ := b.tweens[id].At(now)
		b.tweens[id] = Tween{
			From:     current,
			To:       target[id](s),
			Start:    now,
			Duration: b.duration,
		}
	}
	b.breaker = s.BreakerClosed
	b.seen = true
}

// Frame samples every tile at now.
func (b *Board) Frame(now time.Time) Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := Frame{
		At:           now,
		Numeric:      make([]NumericTile, 0, len(numericOrder)),
		Mode:         ModeText,
		ModeNote:     ModeNote,
		InverterNote: InverterNote,
		GridNote:     GridNote,
	}
	for _, id := range numericOrder {
		v, done := b.tweens[id].At(now)
		if !done {
			f.Animating = true
		}
		f.Numeric = append(f.Numeric, NumericTile{ID: id, Value: v, Text: FormatKW(v)})
	}
	if b.seen {
		f.Breaker, f.BreakerNote = BreakerText(b.breaker)
	}
	return f
}

// Animating reports whether any tile is still moving at now.
func (b *Board) Animating(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tw := range b.tweens {
		if _, done := tw.At(now); !done {
			return true
		}
	}
	return false
}

// DefaultFrameInterval approximates one animation frame.
const DefaultFrameInterval = 16 * time.Millisecond

// Run retargets the board for each sample from in and emits frames every
// frameInterval while an animation is in progress. The frame ticker stops
// itself once every tile has settled; the final settled frame is always
// emitted. Returns when ctx is cancelled or in is closed.
func (b *Board) Run(ctx context.Context, in <-chan model.Sample, frameInterval time.Duration, emit func(Frame)) {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}

	var ticker *time.Ticker
	var frames <-chan time.Time
	stopFrames := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, frames = nil, nil
		}
	}
	defer stopFrames()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			now := time.Now()
			b.Update(s, now)
			emit(b.Frame(now))
			if ticker == nil {
				ticker = time.NewTicker(frameInterval)
				frames = ticker.C
			}
		case now := <-frames:
			f := b.Frame(now)
			emit(f)
			if !f.Animating {
				stopFrames()
			}
		}
	}
}

// SettledFrame returns the frame a board shows once it has finished animating
// towards s.
func SettledFrame(s model.Sample, at time.Time) Frame {
	b := NewBoard(DefaultDuration)
	b.Update(s, at.Add(-DefaultDuration))
	return b.Frame(at)
}
