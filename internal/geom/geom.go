// Package geom holds the planar primitives shared by detection, tracking
// and rendering: axis-aligned rectangles and points in pixel coordinates.
package geom

import (
	"image"
	"math"
)

// Rect is an axis-aligned bounding box. X and Y address the top-left
// corner; Width and Height are expected to be non-negative.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rect {
	return Rect{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// NewRectFrom converts a stdlib image.Rectangle.
func NewRectFrom(rect image.Rectangle) Rect {
	return Rect{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// ToImageRect snaps the box to the integer pixel grid.
func (r Rect) ToImageRect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
}

func (r Rect) Right() float64 {
	return r.X + r.Width
}

func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Center returns the box centroid.
func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2.0,
		Y: r.Y + r.Height/2.0,
	}
}

// Diagonal returns the box diagonal length.
func (r Rect) Diagonal() float64 {
	return math.Sqrt(r.Width*r.Width + r.Height*r.Height)
}

// IoU calculates Intersection over Union between two rectangles.
// The result is in [0, 1]; disjoint or degenerate boxes yield 0.
func (r Rect) IoU(other Rect) float64 {
	xA := math.Max(r.X, other.X)
	yA := math.Max(r.Y, other.Y)
	xB := math.Min(r.Right(), other.Right())
	yB := math.Min(r.Bottom(), other.Bottom())

	interArea := math.Max(0, xB-xA) * math.Max(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	union := r.Area() + other.Area() - interArea
	if union <= 0 {
		return 0.0
	}
	return interArea / union
}

// Point is a position in pixel coordinates.
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// DistanceTo returns the Euclidean distance to q.
func (p Point) DistanceTo(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}
