package util

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ImageFile is one image on disk with its parsed image identifier.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// ID is the image identifier parsed from the file name.
	ID int
}

// LoadDirectoryImageFiles lists the image files in a directory, sorted by
// image identifier. File names must be a number with an optional prefix,
// e.g. 000123.jpg or image-123.png; the number is the image id.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %s", dir)
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		ext := filepath.Ext(file.Name())
		switch strings.ToLower(ext) {
		case ".jpg", ".jpeg", ".png", ".bmp":
		default:
			continue
		}
		id, err := ParseImageID(strings.TrimSuffix(file.Name(), ext))
		if err != nil {
			return nil, errors.Wrapf(err, "cannot derive image id from %s", file.Name())
		}
		images = append(images, ImageFile{
			Path: filepath.Join(dir, file.Name()),
			ID:   id,
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].ID < images[j].ID
	})
	return images, nil
}

// ParseImageID extracts the trailing number from a file stem.
func ParseImageID(stem string) (int, error) {
	start := len(stem)
	for start > 0 && stem[start-1] >= '0' && stem[start-1] <= '9' {
		start--
	}
	if start == len(stem) {
		return 0, errors.Errorf("no numeric suffix in %q", stem)
	}
	return strconv.Atoi(stem[start:])
}

// OpenImage decodes an image file.
func OpenImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return img, nil
}
