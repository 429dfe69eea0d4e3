package records

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-eval/coco"
)

// Keypoint is one predicted keypoint with its visibility flag.
type Keypoint struct {
	X, Y, V float32
}

// Instances holds one image's predictions for a single metric kind.
//
// Boxes, Scores, and Labels are parallel slices; Masks and Keypoints are
// parallel too when present. The converter does not validate the lengths;
// mismatched inputs panic.
type Instances struct {
	// Boxes are [x1, y1, x2, y2] corner coordinates.
	Boxes [][4]float32
	// Scores are per-instance confidence scores.
	Scores []float32
	// Labels are per-instance category identifiers.
	Labels []int
	// Masks are per-instance binary masks.
	Masks []coco.Mask
	// Keypoints are per-instance keypoint channels.
	Keypoints [][]Keypoint
}

// Len returns the instance count.
func (in Instances) Len() int {
	return len(in.Scores)
}

// Record is one flat annotation record in the scorer's input schema.
type Record struct {
	ImageID    int       `json:"image_id"`
	CategoryID int       `json:"category_id"`
	Bbox       []float32 `json:"bbox,omitempty"`
	// Segmentation carries the mask with its counts field already text-encoded.
	Segmentation *coco.RLE `json:"segmentation,omitempty"`
	Keypoints    []float32 `json:"keypoints,omitempty"`
	Score        float32   `json:"score"`
}

// Convert turns one image's predictions into flat records for the given
// metric kind. Images with zero instances produce no records.
func Convert(kind Kind, imageID int, in Instances) []Record {
	if in.Len() == 0 {
		return nil
	}
	switch kind {
	case KindBbox:
		return convertBoxes(imageID, in)
	case KindSegm:
		return convertMasks(imageID, in)
	case KindKeypoints:
		return convertKeypoints(imageID, in)
	}
	return nil
}

// convertBoxes rewrites corner coordinates as origin plus extent.
func convertBoxes(imageID int, in Instances) []Record {
	recs := make([]Record, 0, in.Len())
	for i := 0; i < in.Len(); i++ {
		b := in.Boxes[i]
		recs = append(recs, Record{
			ImageID:    imageID,
			CategoryID: in.Labels[i],
			Bbox: []float32{
				b[0],
				b[1],
				math32.Max(0, b[2]-b[0]),
				math32.Max(0, b[3]-b[1]),
			},
			Score: in.Scores[i],
		})
	}
	return recs
}

func convertMasks(imageID int, in Instances) []Record {
	recs := make([]Record, 0, in.Len())
	for i := 0; i < in.Len(); i++ {
		rle := coco.EncodeMask(in.Masks[i])
		recs = append(recs, Record{
			ImageID:      imageID,
			CategoryID:   in.Labels[i],
			Segmentation: &rle,
			Score:        in.Scores[i],
		})
	}
	return recs
}

// convertKeypoints flattens each instance's keypoint channels into one
// [x1, y1, v1, x2, y2, v2, ...] sequence.
func convertKeypoints(imageID int, in Instances) []Record {
	recs := make([]Record, 0, in.Len())
	for i := 0; i < in.Len(); i++ {
		flat := make([]float32, 0, len(in.Keypoints[i])*3)
		for _, kp := range in.Keypoints[i] {
			flat = append(flat, kp.X, kp.Y, kp.V)
		}
		recs = append(recs, Record{
			ImageID:    imageID,
			CategoryID: in.Labels[i],
			Keypoints:  flat,
			Score:      in.Scores[i],
		})
	}
	return recs
}
