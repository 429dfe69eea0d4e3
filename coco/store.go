package coco

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// GroundTruth indexes a dataset's annotations for lookup by image and category.
type GroundTruth struct {
	images      map[int]Image
	categories  map[int]Category
	byImage     map[int][]*Annotation
	byImageCat  map[[2]int][]*Annotation
	categoryIDs []int
}

// NewGroundTruth builds the lookup indexes for a dataset.
func NewGroundTruth(ds Dataset) *GroundTruth {
	gt := &GroundTruth{
		images:     make(map[int]Image, len(ds.Images)),
		categories: make(map[int]Category, len(ds.Categories)),
		byImage:    make(map[int][]*Annotation),
		byImageCat: make(map[[2]int][]*Annotation),
	}
	for _, img := range ds.Images {
		gt.images[img.ID] = img
	}
	for _, cat := range ds.Categories {
		gt.categories[cat.ID] = cat
		gt.categoryIDs = append(gt.categoryIDs, cat.ID)
	}
	sort.Ints(gt.categoryIDs)
	for i := range ds.Annotations {
		ann := &ds.Annotations[i]
		gt.byImage[ann.ImageID] = append(gt.byImage[ann.ImageID], ann)
		key := [2]int{ann.ImageID, ann.CategoryID}
		gt.byImageCat[key] = append(gt.byImageCat[key], ann)
	}
	return gt
}

// LoadGroundTruth reads a COCO-format annotation file from disk.
func LoadGroundTruth(path string) (*GroundTruth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read annotation file %s", path)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, errors.Wrapf(err, "failed to parse annotation file %s", path)
	}
	return NewGroundTruth(ds), nil
}

// Annotations returns the ground-truth instances for an image and category.
func (gt *GroundTruth) Annotations(imageID, categoryID int) []*Annotation {
	return gt.byImageCat[[2]int{imageID, categoryID}]
}

// ImageAnnotations returns every ground-truth instance for an image.
func (gt *GroundTruth) ImageAnnotations(imageID int) []*Annotation {
	return gt.byImage[imageID]
}

// Image looks up an image entry by identifier.
func (gt *GroundTruth) Image(id int) (Image, bool) {
	img, ok := gt.images[id]
	return img, ok
}

// CategoryIDs returns all category identifiers in ascending order.
func (gt *GroundTruth) CategoryIDs() []int {
	return gt.categoryIDs
}

// Category looks up a category by identifier.
func (gt *GroundTruth) Category(id int) (Category, bool) {
	cat, ok := gt.categories[id]
	return cat, ok
}
