package render

import "energy-livefeed/internal/model"

// Surface is a drawing target of fixed pixel size.
type Surface interface {
	Size() (width, height int)
	Clear()
	Stroke(line Polyline, width float64)
}

// Render clears s and draws the sparkline of w onto it.
// A nil surface is tolerated and nothing is drawn.
func Render(s Surface, w []model.Sample) {
	if s == nil {
		return
	}
	width, height := s.Size()
	s.Clear()
	for _, line := range Plot(w, NewViewport(width, height)) {
		s.Stroke(line, LineWidth)
	}
}
