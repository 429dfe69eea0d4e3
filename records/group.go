package records

import (
	"fmt"
	"sort"
)

// GroupByImage regroups flat records back into per-image predictions,
// populating the fields each requested kind scores. It is the loading path
// for results files that already use the flat schema; every record must carry
// every requested kind's field, so the instance slices stay parallel and the
// converters can run for each kind.
func GroupByImage(recs []Record, kinds ...Kind) (map[int]Instances, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("at least one metric kind is required")
	}
	out := make(map[int]Instances)
	for i, rec := range recs {
		in := out[rec.ImageID]
		for _, kind := range kinds {
			switch kind {
			case KindBbox:
				if len(rec.Bbox) != 4 {
					return nil, fmt.Errorf("record %d: bbox has %d elements, want 4", i, len(rec.Bbox))
				}
				in.Boxes = append(in.Boxes, [4]float32{
					rec.Bbox[0],
					rec.Bbox[1],
					rec.Bbox[0] + rec.Bbox[2],
					rec.Bbox[1] + rec.Bbox[3],
				})
			case KindSegm:
				if rec.Segmentation == nil {
					return nil, fmt.Errorf("record %d: missing segmentation", i)
				}
				mask, err := rec.Segmentation.Decode()
				if err != nil {
					return nil, fmt.Errorf("record %d: %w", i, err)
				}
				in.Masks = append(in.Masks, mask)
			case KindKeypoints:
				if len(rec.Keypoints) == 0 || len(rec.Keypoints)%3 != 0 {
					return nil, fmt.Errorf("record %d: malformed keypoints of length %d", i, len(rec.Keypoints))
				}
				kps := make([]Keypoint, 0, len(rec.Keypoints)/3)
				for j := 0; j+2 < len(rec.Keypoints); j += 3 {
					kps = append(kps, Keypoint{
						X: rec.Keypoints[j],
						Y: rec.Keypoints[j+1],
						V: rec.Keypoints[j+2],
					})
				}
				in.Keypoints = append(in.Keypoints, kps)
			default:
				return nil, fmt.Errorf("unknown metric kind %q", kind)
			}
		}
		in.Scores = append(in.Scores, rec.Score)
		in.Labels = append(in.Labels, rec.CategoryID)
		out[rec.ImageID] = in
	}
	return out, nil
}

// ImageIDs returns the sorted image identifiers of a prediction batch.
func ImageIDs(preds map[int]Instances) []int {
	ids := make([]int, 0, len(preds))
	for id := range preds {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
