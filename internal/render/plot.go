package render

import "energy-livefeed/internal/model"

// Point is a pixel coordinate on the surface.
type Point struct {
	X float64
	Y float64
}

// Polyline is one channel's stroke.
type Polyline struct {
	Channel model.Channel
	Color   string
	Points  []Point
}

// Plot lays out w on vp. It returns one polyline per channel in drawing order
// (inverter, load, grid), or nil for an empty window.
func Plot(w []model.Sample, vp Viewport) []Polyline {
	b, ok := ComputeBounds(w)
	if !ok {
		return nil
	}
	lines := make([]Polyline, 0, len(model.Channels))
	for _, ch := range model.Channels {
		pts := make([]Point, len(w))
		for i, s := range w {
			pts[i] = Point{X: vp.X(i, len(w)), Y: vp.Y(s.Value(ch), b)}
		}
		lines = append(lines, Polyline{Channel: ch, Color: ch.Color(), Points: pts})
	}
	return lines
}
