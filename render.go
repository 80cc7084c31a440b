package yolomark

// Rendering of the current image and its boxes onto the canvas.

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Canvas colors.
var (
	BackgroundColor  = color.NRGBA{R: 190, G: 190, B: 190, A: 255}
	BoxColor         = color.NRGBA{R: 255, A: 255}
	SelectedBoxColor = color.NRGBA{G: 255, A: 255}
	CaptionColor     = color.NRGBA{R: 255, G: 255, A: 255}
)

const boxLineWidth = 2

// Render draws img scaled to fit viewport and centred on a grey canvas, then draws the outlines
// of boxes (native coordinates) with their class names. The box at index selected is highlighted;
// pass -1 for none.
func Render(img image.Image, viewport Size, boxes []Box, selected int) (*image.NRGBA, error) {
	native := Size{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	t, err := FitTransform(native, viewport)
	if err != nil {
		return nil, err
	}

	canvas := imaging.New(viewport.Width, viewport.Height, BackgroundColor)
	display := t.DisplaySize(native)
	if !display.Empty() {
		scaled := imaging.Resize(img, display.Width, display.Height, imaging.Lanczos)
		canvas = imaging.Paste(canvas, scaled,
			image.Pt(int(math.Round(t.OffsetX)), int(math.Round(t.OffsetY))))
	}

	for i, b := range boxes {
		c := BoxColor
		if i == selected {
			c = SelectedBoxColor
		}
		d := t.BoxToDisplay(b)
		r := image.Rect(int(math.Round(d.Coords[0])), int(math.Round(d.Coords[1])),
			int(math.Round(d.Coords[2])), int(math.Round(d.Coords[3])))
		drawOutline(canvas, r, c, boxLineWidth)
		drawCaption(canvas, r.Min.Add(image.Pt(5, 5)), b.Class, CaptionColor)
	}

	return canvas, nil
}

// drawOutline draws a rectangle border of the given width inside r, clipped to dst.
func drawOutline(dst *image.NRGBA, r image.Rectangle, c color.NRGBA, width int) {
	fill := func(rr image.Rectangle) {
		rr = rr.Intersect(dst.Bounds())
		for y := rr.Min.Y; y < rr.Max.Y; y++ {
			for x := rr.Min.X; x < rr.Max.X; x++ {
				dst.SetNRGBA(x, y, c)
			}
		}
	}

	// Degenerate boxes still get a visible line.
	if r.Dx() < width {
		r.Max.X = r.Min.X + width
	}
	if r.Dy() < width {
		r.Max.Y = r.Min.Y + width
	}

	fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width))
	fill(image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y))
	fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y))
	fill(image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y))
}

// drawCaption draws text with its top-left corner at p.
func drawCaption(dst *image.NRGBA, p image.Point, text string, c color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(p.X, p.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

// Render draws the current image with its boxes into the viewport.
func (s *Session) Render() (*image.NRGBA, error) {
	path, ok := s.Current()
	if !ok {
		return nil, ErrNoImage
	}
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	s.sizes[path] = Size{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}

	return Render(img, s.viewport, s.Store.Boxes(path), s.selected)
}
