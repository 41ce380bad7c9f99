// Package render maps a window of samples onto a fixed-size drawing surface
// as three sparkline polylines.
package render

import (
	"math"

	"energy-livefeed/internal/model"
)

const (
	// DefaultMargin is the inset on every side of the surface, in pixels.
	DefaultMargin = 10.0
	// Padding widens the value range above and below the plotted data.
	Padding = 0.2
	// LineWidth is the stroke width of each polyline.
	LineWidth = 2.0
)

// Bounds is the vertical value range of a chart.
type Bounds struct {
	Min float64
	Max float64
}

// ComputeBounds returns the padded min/max over every channel of w.
// Returns false for an empty window.
func ComputeBounds(w []model.Sample) (Bounds, bool) {
	if len(w) == 0 {
		return Bounds{}, false
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range w {
		for _, ch := range model.Channels {
			v := s.Value(ch)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return Bounds{Min: lo - Padding, Max: hi + Padding}, true
}

// Viewport is the pixel geometry of a drawing surface.
type Viewport struct {
	Width  float64
	Height float64
	Margin float64
}

// NewViewport returns a viewport of w×h pixels with DefaultMargin.
func NewViewport(w, h int) Viewport {
	return Viewport{Width: float64(w), Height: float64(h), Margin: DefaultMargin}
}

// Y maps value v to a vertical pixel coordinate. b.Max lands on the top
// margin and b.Min on the bottom margin.
func (vp Viewport) Y(v float64, b Bounds) float64 {
	span := b.Max - b.Min
	if span == 0 {
		return vp.Height / 2
	}
	return vp.Height - ((v-b.Min)/span)*(vp.Height-2*vp.Margin) - vp.Margin
}

// X maps sample index idx of an n-sample window to a horizontal pixel
// coordinate spanning the width between the margins.
func (vp Viewport) X(idx, n int) float64 {
	den := n - 1
	if den < 1 {
		den = 1
	}
	return (float64(idx)/float64(den))*(vp.Width-2*vp.Margin) + vp.Margin
}
