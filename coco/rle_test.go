package coco

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	masks := []Mask{
		NewMask(1, 1),
		NewMask(4, 4),
		NewMask(7, 3),
	}
	// Empty, full, and checkerboard patterns.
	full := NewMask(4, 4)
	for i := range full.Bits {
		full.Bits[i] = true
	}
	masks = append(masks, full)
	checker := NewMask(5, 6)
	for y := 0; y < checker.Height; y++ {
		for x := 0; x < checker.Width; x++ {
			if (x+y)%2 == 0 {
				checker.Set(x, y)
			}
		}
	}
	masks = append(masks, checker)

	for _, m := range masks {
		rle := EncodeMask(m)
		decoded, err := rle.Decode()
		require.NoError(t, err)
		assert.True(t, m.Equal(decoded), "round trip must reproduce the mask exactly")
	}
}

func TestEncodeDecodeRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		h := 1 + rng.Intn(40)
		w := 1 + rng.Intn(40)
		m := NewMask(h, w)
		for j := range m.Bits {
			m.Bits[j] = rng.Intn(3) == 0
		}
		rle := EncodeMask(m)
		decoded, err := rle.Decode()
		require.NoError(t, err)
		require.True(t, m.Equal(decoded), "mask %dx%d failed round trip", h, w)
	}
}

func TestRLEArea(t *testing.T) {
	m := NewMask(6, 6)
	m.Set(0, 0)
	m.Set(3, 2)
	m.Set(5, 5)

	rle := EncodeMask(m)
	area, err := rle.Area()
	require.NoError(t, err)
	assert.Equal(t, 3, area)
	assert.Equal(t, 3, m.Area())
}

func TestRLESizeField(t *testing.T) {
	m := NewMask(7, 3)
	rle := EncodeMask(m)
	assert.Equal(t, [2]int{7, 3}, rle.Size)
}

func TestCountsIsText(t *testing.T) {
	m := NewMask(10, 10)
	for i := 20; i < 55; i++ {
		m.Bits[i] = true
	}
	rle := EncodeMask(m)
	for i := 0; i < len(rle.Counts); i++ {
		c := rle.Counts[i]
		assert.GreaterOrEqual(t, c, byte(48), "counts must stay in the printable range")
		assert.Less(t, c, byte(48+64))
	}
}

func TestDecodeRejectsMalformedCounts(t *testing.T) {
	_, err := RLE{Size: [2]int{4, 4}, Counts: "\x01\x02"}.Decode()
	assert.Error(t, err)

	// Valid characters but runs that do not cover the mask.
	short := EncodeMask(NewMask(2, 2))
	short.Size = [2]int{8, 8}
	_, err = short.Decode()
	assert.Error(t, err)
}

func TestLongRunDeltaEncoding(t *testing.T) {
	// Large masks force multi-character counts and the delta path.
	m := NewMask(64, 64)
	for x := 10; x < 50; x++ {
		for y := 5; y < 60; y++ {
			m.Set(x, y)
		}
	}
	rle := EncodeMask(m)
	decoded, err := rle.Decode()
	require.NoError(t, err)
	assert.True(t, m.Equal(decoded))
}
