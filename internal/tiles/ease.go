// Package tiles animates the dashboard's numeric tiles towards each new
// sample and derives the text tiles (breaker, mode, notes) from it.
package tiles

import "time"

// DefaultDuration is how long a tile takes to reach a new target.
const DefaultDuration = 600 * time.Millisecond

// EaseInOutQuad is the quadratic ease-in-out curve. t is clamped to [0, 1].
func EaseInOutQuad(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	case t < 0.5:
		return 2 * t * t
	default:
		return -1 + (4-2*t)*t
	}
}

// Tween interpolates from From to To over Duration starting at Start.
type Tween struct {
	From     float64
	To       float64
	Start    time.Time
	Duration time.Duration
}

// Progress returns normalised time in [0, 1] at now.
func (tw Tween) Progress(now time.Time) float64 {
	if tw.Duration <= 0 {
		return 1
	}
	t := float64(now.Sub(tw.Start)) / float64(tw.Duration)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// At returns the displayed value at now and whether the tween has finished.
func (tw Tween) At(now time.Time) (float64, bool) {
	t := tw.Progress(now)
	if t >= 1 {
		return tw.To, true
	}
	return tw.From + (tw.To-tw.From)*EaseInOutQuad(t), false
}
