package images

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Thumbnail scales an image to fit within the given cell size, preserving
// aspect ratio.
func Thumbnail(img image.Image, width, height int) image.Image {
	return resize.Thumbnail(uint(width), uint(height), img, resize.Bilinear)
}

// ComposeGrid lays out images left-to-right, top-to-bottom on a rows x cols
// grid of fixed-size cells. Each image is thumbnailed into its cell.
func ComposeGrid(imgs []image.Image, rows, cols, cellW, cellH int) (image.Image, error) {
	if len(imgs) > rows*cols {
		return nil, fmt.Errorf("%d images exceed a %dx%d grid", len(imgs), rows, cols)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, cols*cellW, rows*cellH))
	for i, img := range imgs {
		thumb := Thumbnail(img, cellW, cellH)
		x := (i % cols) * cellW
		y := (i / cols) * cellH
		// Center the thumbnail in its cell.
		b := thumb.Bounds()
		x += (cellW - b.Dx()) / 2
		y += (cellH - b.Dy()) / 2
		dst := image.Rect(x, y, x+b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, thumb, b.Min, draw.Src)
	}
	return canvas, nil
}
