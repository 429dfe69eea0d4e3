// Package records converts structured predictions into flat annotation records.
package records

import "fmt"

// Kind identifies a metric type and selects the matching conversion strategy.
type Kind string

const (
	// KindBbox scores axis-aligned bounding boxes.
	KindBbox Kind = "bbox"
	// KindSegm scores instance segmentation masks.
	KindSegm Kind = "segm"
	// KindKeypoints scores keypoint predictions.
	KindKeypoints Kind = "keypoints"
)

// ParseKind validates a metric-type name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBbox, KindSegm, KindKeypoints:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown metric kind %q (want bbox, segm, or keypoints)", s)
}

func (k Kind) String() string {
	return string(k)
}
