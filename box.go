package yolomark

import "math"

// Box is a labelled axis-aligned rectangle in native image pixels.
//
// Coords holds x1, y1, x2, y2 with x1 <= x2 and y1 <= y2.
type Box struct {
	Coords [4]float64 `json:"coords"`
	Class  string     `json:"class"`
}

// NewBox returns the box spanned by two opposite corners, in any order.
func NewBox(p1, p2 Point, class string) Box {
	x1, x2 := p1.X, p2.X
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	y1, y2 := p1.Y, p2.Y
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{Coords: [4]float64{x1, y1, x2, y2}, Class: class}
}

// Clamp limits the corners of b to the area of an image of the given size.
func (b Box) Clamp(size Size) Box {
	w, h := float64(size.Width), float64(size.Height)
	for i, limit := range [4]float64{w, h, w, h} {
		b.Coords[i] = math.Max(0, math.Min(b.Coords[i], limit))
	}
	return b
}

// Width is the box width from b.Coords.
func (b Box) Width() float64 {
	return b.Coords[2] - b.Coords[0]
}

// Height is the box height from b.Coords.
func (b Box) Height() float64 {
	return b.Coords[3] - b.Coords[1]
}

// Contains reports whether p lies inside the box or on its border.
func (b Box) Contains(p Point) bool {
	return b.Coords[0] <= p.X && p.X <= b.Coords[2] && b.Coords[1] <= p.Y && p.Y <= b.Coords[3]
}

// Scale returns the box with its x coordinates multiplied by width and y by height.
func (b Box) Scale(width, height float64) Box {
	for j := 0; j < 4; j++ {
		if j&1 == 0 {
			b.Coords[j] *= width
		} else {
			b.Coords[j] *= height
		}
	}
	return b
}
