package coco

import (
	"fmt"
)

// RLE is a run-length-encoded binary mask.
//
// Runs alternate between background and foreground pixels, always starting
// with background, over a column-major scan of the mask. Counts is the
// compact text form of the run lengths so the struct serializes directly
// into the record schema consumed by downstream scoring.
type RLE struct {
	// Size is [height, width].
	Size [2]int `json:"size"`
	// Counts is the text-encoded run lengths.
	Counts string `json:"counts"`
}

// EncodeMask run-length-encodes a binary mask.
func EncodeMask(m Mask) RLE {
	var runs []uint32
	var count uint32
	cur := false // runs start with background
	for x := 0; x < m.Width; x++ {
		for y := 0; y < m.Height; y++ {
			if m.At(x, y) != cur {
				runs = append(runs, count)
				count = 0
				cur = !cur
			}
			count++
		}
	}
	runs = append(runs, count)
	return RLE{
		Size:   [2]int{m.Height, m.Width},
		Counts: encodeCounts(runs),
	}
}

// Decode expands the RLE back into a binary mask.
func (r RLE) Decode() (Mask, error) {
	runs, err := decodeCounts(r.Counts)
	if err != nil {
		return Mask{}, err
	}
	h, w := r.Size[0], r.Size[1]
	m := NewMask(h, w)
	pos := 0
	val := false
	for _, run := range runs {
		for i := uint32(0); i < run; i++ {
			if pos >= h*w {
				return Mask{}, fmt.Errorf("rle runs exceed mask size %dx%d", h, w)
			}
			if val {
				// Column-major: pos walks down columns.
				m.Bits[(pos%h)*w+pos/h] = true
			}
			pos++
		}
		val = !val
	}
	if pos != h*w {
		return Mask{}, fmt.Errorf("rle runs cover %d of %d pixels", pos, h*w)
	}
	return m, nil
}

// Area returns the number of foreground pixels without decoding the mask.
func (r RLE) Area() (int, error) {
	runs, err := decodeCounts(r.Counts)
	if err != nil {
		return 0, err
	}
	area := 0
	for i := 1; i < len(runs); i += 2 {
		area += int(runs[i])
	}
	return area, nil
}

// encodeCounts packs run lengths into the compact text form: a variable-length
// scheme using 6 bits per character in the printable range starting at '0',
// with runs past the second stored as deltas against the run two back.
func encodeCounts(runs []uint32) string {
	out := make([]byte, 0, len(runs)*6)
	for i, run := range runs {
		x := int64(run)
		if i > 2 {
			x -= int64(runs[i-2])
		}
		for more := true; more; {
			c := byte(x & 0x1f)
			x >>= 5
			if c&0x10 != 0 {
				more = x != -1
			} else {
				more = x != 0
			}
			if more {
				c |= 0x20
			}
			out = append(out, c+48)
		}
	}
	return string(out)
}

// decodeCounts is the inverse of encodeCounts.
func decodeCounts(s string) ([]uint32, error) {
	var runs []uint32
	p := 0
	for p < len(s) {
		var x int64
		k := uint(0)
		for {
			if p >= len(s) {
				return nil, fmt.Errorf("truncated rle counts string")
			}
			c := s[p] - 48
			if c > 0x3f {
				return nil, fmt.Errorf("invalid rle counts byte %q at %d", s[p], p)
			}
			x |= int64(c&0x1f) << (5 * k)
			p++
			k++
			if c&0x20 == 0 {
				if c&0x10 != 0 {
					x |= -1 << (5 * k)
				}
				break
			}
		}
		if len(runs) > 2 {
			x += int64(runs[len(runs)-2])
		}
		if x < 0 {
			return nil, fmt.Errorf("negative run length %d in rle counts", x)
		}
		runs = append(runs, uint32(x))
	}
	return runs, nil
}
