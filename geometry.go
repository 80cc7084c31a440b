package yolomark

// Mapping between native image pixels and the displayed canvas.

import (
	"errors"
	"math"
)

// ErrEmptySize is returned when an image or viewport has a zero or negative dimension.
var ErrEmptySize = errors.New("empty size")

// Size is a width and height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Point is a position in either native or display space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform is the uniform scale and centring offset that fits an image into a viewport.
type Transform struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// FitTransform returns the transform that scales an image of size native to fit viewport while
// preserving its aspect ratio, and centres it. The image may be scaled up or down.
func FitTransform(native, viewport Size) (Transform, error) {
	if native.Empty() || viewport.Empty() {
		return Transform{}, ErrEmptySize
	}

	w, h := float64(native.Width), float64(native.Height)
	cw, ch := float64(viewport.Width), float64(viewport.Height)
	s := math.Min(cw/w, ch/h)

	return Transform{
		Scale:   s,
		OffsetX: (cw - w*s) / 2,
		OffsetY: (ch - h*s) / 2,
	}, nil
}

// ToDisplay maps a native point to display space.
func (t Transform) ToDisplay(p Point) Point {
	return Point{X: p.X*t.Scale + t.OffsetX, Y: p.Y*t.Scale + t.OffsetY}
}

// ToNative maps a display point back to native space.
func (t Transform) ToNative(p Point) Point {
	return Point{X: (p.X - t.OffsetX) / t.Scale, Y: (p.Y - t.OffsetY) / t.Scale}
}

// DisplaySize is the size of the scaled image on the canvas, truncated to whole pixels.
func (t Transform) DisplaySize(native Size) Size {
	return Size{
		Width:  int(float64(native.Width) * t.Scale),
		Height: int(float64(native.Height) * t.Scale),
	}
}

// BoxToDisplay maps both corners of a native box to display space.
func (t Transform) BoxToDisplay(b Box) Box {
	p1 := t.ToDisplay(Point{X: b.Coords[0], Y: b.Coords[1]})
	p2 := t.ToDisplay(Point{X: b.Coords[2], Y: b.Coords[3]})
	return Box{Coords: [4]float64{p1.X, p1.Y, p2.X, p2.Y}, Class: b.Class}
}
