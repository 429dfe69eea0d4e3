package coco

// Mask is a binary instance mask.
type Mask struct {
	// Height and Width are the mask dimensions in pixels.
	Height int
	Width  int
	// Bits holds the mask in row-major order, one entry per pixel.
	Bits []bool
}

// NewMask allocates an empty mask of the given dimensions.
func NewMask(height, width int) Mask {
	return Mask{Height: height, Width: width, Bits: make([]bool, height*width)}
}

// At reports whether the pixel at (x, y) is set.
func (m Mask) At(x, y int) bool {
	return m.Bits[y*m.Width+x]
}

// Set marks the pixel at (x, y).
func (m Mask) Set(x, y int) {
	m.Bits[y*m.Width+x] = true
}

// Area returns the number of set pixels.
func (m Mask) Area() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Equal reports whether two masks have identical dimensions and pixels.
func (m Mask) Equal(other Mask) bool {
	if m.Height != other.Height || m.Width != other.Width {
		return false
	}
	for i := range m.Bits {
		if m.Bits[i] != other.Bits[i] {
			return false
		}
	}
	return true
}
