package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromXYWH(t *testing.T) {
	r := FromXYWH(10, 20, 30, 40)
	assert.Equal(t, Rect{X1: 10, Y1: 20, X2: 40, Y2: 60}, r)
	assert.InDelta(t, 1200.0, float64(r.Area()), 1e-5)
}

func TestCalculateIoU(t *testing.T) {
	a := Rect{0, 0, 100, 100}
	b := Rect{50, 50, 150, 150}

	assert.InDelta(t, 2500.0/17500.0, float64(CalculateIoU(a, b)), 1e-5)
	assert.InDelta(t, 1.0, float64(CalculateIoU(a, a)), 1e-6)
	assert.Zero(t, CalculateIoU(a, Rect{200, 200, 300, 300}))
	// Touching edges do not overlap.
	assert.Zero(t, CalculateIoU(a, Rect{100, 0, 200, 100}))
}

func TestIntersectionOverArea(t *testing.T) {
	det := Rect{0, 0, 10, 10}
	crowd := Rect{0, 0, 100, 100}
	assert.InDelta(t, 1.0, float64(IntersectionOverArea(det, crowd)), 1e-6)

	half := Rect{5, 0, 15, 10}
	assert.InDelta(t, 0.5, float64(IntersectionOverArea(half, Rect{0, 0, 10, 10})), 1e-6)

	assert.Zero(t, IntersectionOverArea(Rect{0, 0, 0, 0}, crowd))
}
