// Package images - geometry and image helpers for detection evaluation.
package images

import "github.com/chewxy/math32"

// Rect is a lightweight bounding box with corner coordinates.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// FromXYWH builds a Rect from an origin-plus-extent box.
func FromXYWH(x, y, w, h float32) Rect {
	return Rect{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Area returns the box area. Degenerate boxes have zero area.
func (r Rect) Area() float32 {
	return math32.Max(0, r.X2-r.X1) * math32.Max(0, r.Y2-r.Y1)
}

// Intersection returns the overlap area of two boxes.
func Intersection(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	return (ix2 - ix1) * (iy2 - iy1)
}

// CalculateIoU returns the intersection-over-union of two boxes. A detection
// matching a ground-truth box above some threshold counts as a hit.
func CalculateIoU(r, o Rect) float32 {
	inter := Intersection(r, o)
	if inter == 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// IntersectionOverArea returns the overlap relative to r's own area. Used
// when the other box is a crowd region that may legitimately contain r.
func IntersectionOverArea(r, o Rect) float32 {
	area := r.Area()
	if area <= 0 {
		return 0
	}
	return Intersection(r, o) / area
}
