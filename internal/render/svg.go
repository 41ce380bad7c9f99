package render

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// SVGSurface records strokes and serialises them as an SVG document.
type SVGSurface struct {
	width, height int
	lines         []svgLine
}

type svgLine struct {
	line  Polyline
	width float64
}

// NewSVGSurface creates an empty w×h SVG surface.
func NewSVGSurface(w, h int) *SVGSurface {
	return &SVGSurface{width: w, height: h}
}

func (s *SVGSurface) Size() (int, int) { return s.width, s.height }

func (s *SVGSurface) Clear() { s.lines = s.lines[:0] }

func (s *SVGSurface) Stroke(line Polyline, width float64) {
	s.lines = append(s.lines, svgLine{line: line, width: width})
}

// WriteTo writes the SVG document to w and reports any write error.
func (s *SVGSurface) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	s.encode(&buf)
	return buf.WriteTo(w)
}

// Bytes returns the SVG document.
func (s *SVGSurface) Bytes() []byte {
	var buf bytes.Buffer
	s.encode(&buf)
	return buf.Bytes()
}

func (s *SVGSurface) encode(buf *bytes.Buffer) {
	fmt.Fprintf(buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		s.width, s.height, s.width, s.height)
	buf.WriteByte('\n')
	for _, l := range s.lines {
		fmt.Fprintf(buf, `<polyline data-channel="%s" fill="none" stroke="%s" stroke-width="%s" points="`,
			l.line.Channel, l.line.Color, strconv.FormatFloat(l.width, 'f', -1, 64))
		for i, p := range l.line.Points {
			if i > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(strconv.FormatFloat(p.X, 'f', 2, 64))
			buf.WriteByte(',')
			buf.WriteString(strconv.FormatFloat(p.Y, 'f', 2, 64))
		}
		buf.WriteString(`"/>`)
		buf.WriteByte('\n')
	}
	buf.WriteString("</svg>\n")
}
