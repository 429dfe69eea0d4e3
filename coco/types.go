// Package coco - COCO-format dataset model, ground-truth access, and mask encoding.
package coco

// Image describes one image entry in a dataset.
type Image struct {
	ID       int    `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileName string `json:"file_name"`
}

// Category describes one annotation category.
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory,omitempty"`
}

// Annotation is a single ground-truth instance.
type Annotation struct {
	ID         int `json:"id"`
	ImageID    int `json:"image_id"`
	CategoryID int `json:"category_id"`
	// Bbox is [x, y, w, h] in pixel coordinates.
	Bbox    [4]float32 `json:"bbox"`
	Area    float32    `json:"area"`
	IsCrowd int        `json:"iscrowd"`
	// Segmentation, if present, holds the instance mask in RLE form.
	Segmentation *RLE `json:"segmentation,omitempty"`
	// Keypoints is a flat [x1, y1, v1, x2, y2, v2, ...] sequence.
	Keypoints    []float32 `json:"keypoints,omitempty"`
	NumKeypoints int       `json:"num_keypoints,omitempty"`
}

// Dataset is the top-level COCO annotation file layout.
type Dataset struct {
	Images      []Image      `json:"images"`
	Annotations []Annotation `json:"annotations"`
	Categories  []Category   `json:"categories"`
}
