// Package canvas maintains the paired raster surfaces behind a mask-editing
// session: an immutable image layer and a mutable drawing layer of identical
// pixel dimensions, plus the display-to-native coordinate mapping.
package canvas

import (
	"errors"
	"image"
	"image/color"
	"math"
)

var ErrNoImage = errors.New("no image loaded")

// StrokeColor is the semi-transparent highlight used for visual feedback while
// painting. It is never the literal mask value; the mask compositor collapses
// any painted alpha to pure white.
var StrokeColor = color.RGBA{R: 236, G: 72, B: 153, A: 128}

// Point is a position in the image's native pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport describes the on-screen size at which the canvas is currently
// displayed. Pointer positions and brush widths arrive in this space and must
// be scaled into native pixels before painting.
type Viewport struct {
	DisplayWidth  float64
	DisplayHeight float64
}

// Pair owns the two same-sized raster surfaces of one editing session.
// The base layer is written once per Load; only the overlay mutates.
type Pair struct {
	base    *image.RGBA
	overlay *image.RGBA

	drawing    bool
	brushWidth float64
	last       Point
}

func NewPair() *Pair {
	return &Pair{}
}

// Load sizes both surfaces to the image's natural dimensions, draws the image
// into the base layer and clears the overlay. Any in-progress stroke is
// abandoned.
func (p *Pair) Load(img *image.RGBA) {
	bounds := img.Bounds()
	p.base = img
	p.overlay = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	p.drawing = false
}

func (p *Pair) Loaded() bool {
	return p.base != nil
}

func (p *Pair) Size() (int, int) {
	if p.base == nil {
		return 0, 0
	}
	bounds := p.base.Bounds()
	return bounds.Dx(), bounds.Dy()
}

func (p *Pair) Base() *image.RGBA {
	return p.base
}

func (p *Pair) Overlay() *image.RGBA {
	return p.overlay
}

// MapPoint scales an on-screen pointer position into native pixel space.
// The canvas is displayed at a CSS size potentially different from its pixel
// buffer; omitting this scaling misaligns strokes with the underlying image.
func (p *Pair) MapPoint(v Viewport, x, y float64) (Point, error) {
	if p.base == nil {
		return Point{}, ErrNoImage
	}
	if v.DisplayWidth <= 0 || v.DisplayHeight <= 0 {
		return Point{}, errors.New("viewport has no size")
	}

	w, h := p.Size()
	return Point{
		X: x * float64(w) / v.DisplayWidth,
		Y: y * float64(h) / v.DisplayHeight,
	}, nil
}

// MapBrushWidth scales a brush width specified in display pixels into native
// pixels, using the horizontal scale factor.
func (p *Pair) MapBrushWidth(v Viewport, width float64) (float64, error) {
	if p.base == nil {
		return 0, ErrNoImage
	}
	if v.DisplayWidth <= 0 {
		return 0, errors.New("viewport has no size")
	}

	w, _ := p.Size()
	scaled := width * float64(w) / v.DisplayWidth
	if scaled < 1 {
		scaled = 1
	}
	return scaled, nil
}

// BeginStroke starts a freehand path at pt with the given native brush width.
// A stroke already in progress is continued rather than restarted. Points
// outside the image rectangle are clamped to its edge.
func (p *Pair) BeginStroke(pt Point, brushWidth float64) error {
	if p.overlay == nil {
		return ErrNoImage
	}
	if p.drawing {
		p.ExtendStroke(pt)
		return nil
	}

	pt = p.clampPoint(pt)
	p.drawing = true
	p.brushWidth = brushWidth
	p.last = pt
	p.stampDisc(pt)
	return nil
}

// ExtendStroke continues the current path to pt, painting a connected segment
// with round caps. No-op when no stroke is in progress.
func (p *Pair) ExtendStroke(pt Point) {
	if !p.drawing {
		return
	}
	pt = p.clampPoint(pt)
	p.paintSegment(p.last, pt)
	p.last = pt
}

// clampPoint bounds a point to the image rectangle so a segment's length, and
// with it the painting cost, never exceeds the canvas diagonal.
func (p *Pair) clampPoint(pt Point) Point {
	w, h := p.Size()
	pt.X = math.Min(math.Max(pt.X, 0), float64(w))
	pt.Y = math.Min(math.Max(pt.Y, 0), float64(h))
	return pt
}

// EndStroke finishes the current path and captures the full drawing layer as
// a snapshot. Returns nil when no stroke was in progress.
func (p *Pair) EndStroke() *Snapshot {
	if !p.drawing {
		return nil
	}
	p.drawing = false
	return p.Capture()
}

// Capture deep-copies the overlay into an immutable snapshot.
func (p *Pair) Capture() *Snapshot {
	if p.overlay == nil {
		return nil
	}
	clone := image.NewRGBA(p.overlay.Bounds())
	copy(clone.Pix, p.overlay.Pix)
	return &Snapshot{pix: clone}
}

// Restore repaints the overlay from a snapshot, or clears it when the
// snapshot is nil.
func (p *Pair) Restore(s *Snapshot) {
	if p.overlay == nil {
		return
	}
	if s == nil {
		p.ClearOverlay()
		return
	}
	copy(p.overlay.Pix, s.pix.Pix)
}

func (p *Pair) ClearOverlay() {
	if p.overlay == nil {
		return
	}
	for i := range p.overlay.Pix {
		p.overlay.Pix[i] = 0
	}
}

// paintSegment stamps the round brush along the line from a to b at sub-radius
// spacing, which reads as one connected path with round join and cap.
func (p *Pair) paintSegment(a, b Point) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	dist := math.Hypot(dx, dy)

	step := p.brushWidth / 4
	if step < 0.5 {
		step = 0.5
	}

	steps := int(dist/step) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p.stampDisc(Point{X: a.X + dx*t, Y: a.Y + dy*t})
	}
}

// stampDisc paints a filled circle of the current brush at center. Pixels are
// set to the stroke color directly so that repeated passes over the same spot
// stay deterministic.
func (p *Pair) stampDisc(center Point) {
	radius := p.brushWidth / 2
	if radius < 0.5 {
		radius = 0.5
	}

	bounds := p.overlay.Bounds()
	minX := int(math.Floor(center.X - radius))
	maxX := int(math.Ceil(center.X + radius))
	minY := int(math.Floor(center.Y - radius))
	maxY := int(math.Ceil(center.Y + radius))

	for y := minY; y <= maxY; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			ddx := float64(x) + 0.5 - center.X
			ddy := float64(y) + 0.5 - center.Y
			if ddx*ddx+ddy*ddy <= radius*radius {
				p.overlay.SetRGBA(x, y, StrokeColor)
			}
		}
	}
}

// Snapshot is a full capture of the drawing layer at one point in time.
// Snapshots are immutable once taken.
type Snapshot struct {
	pix *image.RGBA
}

// Equal reports whether two snapshots carry identical pixel content.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.pix.Bounds() != other.pix.Bounds() {
		return false
	}
	for i := range s.pix.Pix {
		if s.pix.Pix[i] != other.pix.Pix[i] {
			return false
		}
	}
	return true
}
