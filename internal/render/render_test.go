package render

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"energy-livefeed/internal/model"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func TestComputeBounds(t *testing.T) {
	w := []model.Sample{{InverterKW: 1.0, GridKW: 2.0, LoadKW: 1.5}}
	b, ok := ComputeBounds(w)
	if !ok {
		t.Fatal("expected bounds for non-empty window")
	}
	if !approx(b.Min, 0.8) || !approx(b.Max, 2.2) {
		t.Fatalf("bounds = %+v, want {0.8 2.2}", b)
	}

	if _, ok := ComputeBounds(nil); ok {
		t.Fatal("empty window should have no bounds")
	}
}

func TestViewport_YMapsBoundsToMargins(t *testing.T) {
	vp := NewViewport(300, 120)
	w := []model.Sample{{InverterKW: 1.0, GridKW: 2.0, LoadKW: 1.5}}
	b, _ := ComputeBounds(w)

	// Padded bounds land exactly on the drawable edges.
	if got := vp.Y(b.Min, b); !approx(got, 120-10) {
		t.Errorf("Y(min) = %v, want bottom edge %v", got, 110.0)
	}
	if got := vp.Y(b.Max, b); !approx(got, 10) {
		t.Errorf("Y(max) = %v, want top edge %v", got, 10.0)
	}

	// 1.0 is 0.2 above min over a 1.4 span: 100px drawable height.
	if got, want := vp.Y(1.0, b), 110-(0.2/1.4)*100; !approx(got, want) {
		t.Errorf("Y(1.0) = %v, want %v", got, want)
	}
	if got, want := vp.Y(2.0, b), 110-(1.2/1.4)*100; !approx(got, want) {
		t.Errorf("Y(2.0) = %v, want %v", got, want)
	}
	if vp.Y(1.0, b) <= vp.Y(2.0, b) {
		t.Error("smaller values must be drawn lower (larger y)")
	}
}

func TestViewport_YUnpaddedBounds(t *testing.T) {
	vp := NewViewport(300, 120)
	b := Bounds{Min: 1.0, Max: 2.0}
	if got := vp.Y(1.0, b); !approx(got, 110) {
		t.Errorf("Y(1.0) = %v, want bottom-most drawable 110", got)
	}
	if got := vp.Y(2.0, b); !approx(got, 10) {
		t.Errorf("Y(2.0) = %v, want top-most drawable 10", got)
	}
	if got := vp.Y(1.5, b); !approx(got, 60) {
		t.Errorf("Y(1.5) = %v, want midline 60", got)
	}
}

func TestViewport_X(t *testing.T) {
	vp := NewViewport(300, 120)
	cases := []struct {
		idx, n int
		want   float64
	}{
		{0, 40, 10},
		{39, 40, 290},
		{0, 1, 10},
		{1, 3, 150},
	}
	for _, tc := range cases {
		if got := vp.X(tc.idx, tc.n); !approx(got, tc.want) {
			t.Errorf("X(%d,%d) = %v, want %v", tc.idx, tc.n, got, tc.want)
		}
	}
}

func TestPlot_OrderAndColors(t *testing.T) {
	now := time.Now()
	w := []model.Sample{
		{TS: now, InverterKW: 2.4, GridKW: -0.6, LoadKW: 1.8},
		{TS: now.Add(2 * time.Second), InverterKW: 2.5, GridKW: -0.5, LoadKW: 1.7},
	}
	lines := Plot(w, NewViewport(300, 120))
	if len(lines) != 3 {
		t.Fatalf("expected 3 polylines, got %d", len(lines))
	}
	want := []struct {
		ch    model.Channel
		color string
	}{
		{model.Inverter, "#4fe1c1"},
		{model.Load, "#7aa0ff"},
		{model.Grid, "#f4bf4f"},
	}
	for i, l := range lines {
		if l.Channel != want[i].ch || l.Color != want[i].color {
			t.Errorf("line %d = %s/%s, want %s/%s", i, l.Channel, l.Color, want[i].ch, want[i].color)
		}
		if len(l.Points) != len(w) {
			t.Errorf("line %d: expected %d points, got %d", i, len(w), len(l.Points))
		}
		for _, p := range l.Points {
			if p.Y < 10-eps || p.Y > 110+eps || p.X < 10-eps || p.X > 290+eps {
				t.Errorf("line %d: point %+v outside drawable area", i, p)
			}
		}
	}
	if Plot(nil, NewViewport(300, 120)) != nil {
		t.Error("empty window should plot nothing")
	}
}

type recordingSurface struct {
	cleared int
	lines   []Polyline
}

func (r *recordingSurface) Size() (int, int) { return 200, 100 }
func (r *recordingSurface) Clear()            { r.cleared++; r.lines = nil }
func (r *recordingSurface) Stroke(l Polyline, width float64) {
	r.lines = append(r.lines, l)
}

func TestRender(t *testing.T) {
	w := []model.Sample{{InverterKW: 1}, {InverterKW: 2}}

	s := &recordingSurface{}
	Render(s, w)
	if s.cleared != 1 || len(s.lines) != 3 {
		t.Fatalf("expected 1 clear and 3 strokes, got %d/%d", s.cleared, len(s.lines))
	}

	Render(nil, w) // must not panic
}

func TestSVGSurface(t *testing.T) {
	w := []model.Sample{
		{InverterKW: 2.4, GridKW: -0.6, LoadKW: 1.8},
		{InverterKW: 2.5, GridKW: -0.55, LoadKW: 1.75},
	}
	svg := NewSVGSurface(300, 120)
	Render(svg, w)
	out := string(svg.Bytes())

	if !strings.HasPrefix(out, "<svg ") || !strings.HasSuffix(out, "</svg>\n") {
		t.Fatalf("not an svg document: %q", out)
	}
	if n := strings.Count(out, "<polyline"); n != 3 {
		t.Fatalf("expected 3 polylines, got %d", n)
	}
	inv := strings.Index(out, `data-channel="inverter"`)
	load := strings.Index(out, `data-channel="load"`)
	grid := strings.Index(out, `data-channel="grid"`)
	if !(inv >= 0 && inv < load && load < grid) {
		t.Errorf("polylines out of order: inverter=%d load=%d grid=%d", inv, load, grid)
	}

	// Re-rendering replaces the previous strokes.
	Render(svg, w)
	if n := strings.Count(string(svg.Bytes()), "<polyline"); n != 3 {
		t.Fatalf("expected 3 polylines after re-render, got %d", n)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSVGSurface_WriteToReportsError(t *testing.T) {
	svg := NewSVGSurface(300, 120)
	Render(svg, []model.Sample{{InverterKW: 1}, {InverterKW: 2}})
	if _, err := svg.WriteTo(failWriter{}); err == nil {
		t.Fatal("expected write error to be returned")
	}
}
