package cocoscorer

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-eval/coco"
	"github.com/nvr-ai/go-eval/images"
	"github.com/nvr-ai/go-eval/records"
	"github.com/nvr-ai/go-eval/scorer"
)

// imageEval is the opaque per-image result blob. Downstream code only
// carries it; the scorer inspects it again at Accumulate time.
type imageEval struct {
	imageID int
	cells   []cell
}

// cell holds matching outcomes for one (category, area range) pair.
type cell struct {
	category int
	area     int
	// scores are detection scores in descending order, capped at the largest
	// MaxDetections entry. matched and ignored are [threshold][detection].
	scores  []float32
	matched [][]bool
	ignored [][]bool
	// numGT counts ground-truth instances that are scored (not ignored).
	numGT int
}

// EvaluateImage scores one image across all categories and area ranges,
// producing its opaque result.
func (s *Scorer) EvaluateImage(imageID int) (scorer.ImageResult, error) {
	if !s.scope[imageID] {
		return nil, errors.Errorf("image %d is outside the evaluation scope", imageID)
	}
	s.debugf("evaluating image %d (%s)\n", imageID, s.kind)

	ev := &imageEval{imageID: imageID}
	for _, catID := range s.gt.CategoryIDs() {
		gts := s.gt.Annotations(imageID, catID)
		dts := s.sortedDets(imageID, catID)
		if len(gts) == 0 && len(dts) == 0 {
			continue
		}
		for a := range s.params.AreaRanges {
			c, err := s.evaluateCell(catID, a, gts, dts)
			if err != nil {
				return nil, err
			}
			ev.cells = append(ev.cells, c)
		}
	}
	return ev, nil
}

// evaluateCell greedily matches detections to ground truth for one category
// and area range, at every IoU threshold.
func (s *Scorer) evaluateCell(catID, area int, gts []*coco.Annotation, dts []records.Record) (cell, error) {
	rng := s.params.AreaRanges[area]

	// Order ground truth with scored instances first so a detection prefers
	// them over ignored ones, and stops looking once only ignored remain.
	type gtEntry struct {
		ann    *coco.Annotation
		ignore bool
	}
	entries := make([]gtEntry, 0, len(gts))
	for _, g := range gts {
		entries = append(entries, gtEntry{ann: g, ignore: s.ignoreGT(g, rng)})
	}
	numGT := 0
	ordered := make([]gtEntry, 0, len(entries))
	for _, e := range entries {
		if !e.ignore {
			ordered = append(ordered, e)
			numGT++
		}
	}
	for _, e := range entries {
		if e.ignore {
			ordered = append(ordered, e)
		}
	}

	// IoU matrix, detections x ground truth.
	ious := make([][]float32, len(dts))
	for d := range dts {
		ious[d] = make([]float32, len(ordered))
		for g, e := range ordered {
			iou, err := s.similarity(dts[d], e.ann)
			if err != nil {
				return cell{}, err
			}
			ious[d][g] = iou
		}
	}

	c := cell{
		category: catID,
		area:     area,
		numGT:    numGT,
		matched:  make([][]bool, len(s.params.IoUThresholds)),
		ignored:  make([][]bool, len(s.params.IoUThresholds)),
	}
	for _, dt := range dts {
		c.scores = append(c.scores, dt.Score)
	}

	for t, thr := range s.params.IoUThresholds {
		c.matched[t] = make([]bool, len(dts))
		c.ignored[t] = make([]bool, len(dts))
		gtUsed := make([]bool, len(ordered))
		for d := range dts {
			best := -1
			bestIoU := float32(thr)
			for g, e := range ordered {
				if gtUsed[g] && e.ann.IsCrowd == 0 {
					continue
				}
				// Once matched to a scored instance, ignored ground truth
				// (which sorts last) cannot improve the match.
				if best >= 0 && !ordered[best].ignore && e.ignore {
					break
				}
				if ious[d][g] < bestIoU {
					continue
				}
				bestIoU = ious[d][g]
				best = g
			}
			switch {
			case best < 0:
				// Unmatched detections outside the area range do not count
				// as false positives.
				if hasArea, outside := s.detOutsideRange(dts[d], rng); hasArea && outside {
					c.ignored[t][d] = true
				}
			case ordered[best].ignore:
				c.ignored[t][d] = true
			default:
				c.matched[t][d] = true
				gtUsed[best] = true
			}
		}
	}
	return c, nil
}

// ignoreGT reports whether a ground-truth instance is excluded from scoring
// in the given area range.
func (s *Scorer) ignoreGT(g *coco.Annotation, rng [2]float64) bool {
	if g.IsCrowd != 0 {
		return true
	}
	area := float64(g.Area)
	if area <= 0 {
		area = float64(g.Bbox[2] * g.Bbox[3])
	}
	if area < rng[0] || area >= rng[1] {
		return true
	}
	if s.kind == records.KindKeypoints && visibleKeypoints(g.Keypoints) == 0 {
		return true
	}
	return false
}

// detOutsideRange reports whether the detection's own area falls outside the
// range. The first return is false when the kind has no usable area.
func (s *Scorer) detOutsideRange(dt records.Record, rng [2]float64) (bool, bool) {
	var area float64
	switch s.kind {
	case records.KindBbox:
		area = float64(dt.Bbox[2] * dt.Bbox[3])
	case records.KindSegm:
		a, err := dt.Segmentation.Area()
		if err != nil {
			return false, false
		}
		area = float64(a)
	default:
		return false, false
	}
	return true, area < rng[0] || area >= rng[1]
}

// similarity computes the match score between a detection and a ground-truth
// instance: IoU for boxes and masks, OKS for keypoints. Crowd regions use
// intersection over the detection's own area.
func (s *Scorer) similarity(dt records.Record, g *coco.Annotation) (float32, error) {
	switch s.kind {
	case records.KindBbox:
		det := images.FromXYWH(dt.Bbox[0], dt.Bbox[1], dt.Bbox[2], dt.Bbox[3])
		gtBox := images.FromXYWH(g.Bbox[0], g.Bbox[1], g.Bbox[2], g.Bbox[3])
		if g.IsCrowd != 0 {
			return images.IntersectionOverArea(det, gtBox), nil
		}
		return images.CalculateIoU(det, gtBox), nil
	case records.KindSegm:
		return s.maskSimilarity(dt, g)
	case records.KindKeypoints:
		return oks(dt.Keypoints, g), nil
	}
	return 0, errors.Errorf("unknown metric kind %q", s.kind)
}

func (s *Scorer) maskSimilarity(dt records.Record, g *coco.Annotation) (float32, error) {
	dm, err := dt.Segmentation.Decode()
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode detection mask")
	}
	if g.Segmentation == nil {
		// No ground-truth mask recorded; fall back to box overlap when the
		// record carries one.
		if len(dt.Bbox) != 4 {
			return 0, nil
		}
		det := images.FromXYWH(dt.Bbox[0], dt.Bbox[1], dt.Bbox[2], dt.Bbox[3])
		gtBox := images.FromXYWH(g.Bbox[0], g.Bbox[1], g.Bbox[2], g.Bbox[3])
		return images.CalculateIoU(det, gtBox), nil
	}
	gm, err := g.Segmentation.Decode()
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode ground-truth mask")
	}
	if dm.Height != gm.Height || dm.Width != gm.Width {
		return 0, errors.Errorf(
			"mask size mismatch: detection %dx%d vs ground truth %dx%d",
			dm.Height, dm.Width, gm.Height, gm.Width)
	}
	inter, union := 0, 0
	for i := range dm.Bits {
		d, gb := dm.Bits[i], gm.Bits[i]
		if d && gb {
			inter++
		}
		if d || gb {
			union++
		}
	}
	if g.IsCrowd != 0 {
		if da := dm.Area(); da > 0 {
			return float32(inter) / float32(da), nil
		}
		return 0, nil
	}
	if union == 0 {
		return 0, nil
	}
	return float32(inter) / float32(union), nil
}

// oksSigmas are the standard per-keypoint falloff constants for 17-point
// human pose.
var oksSigmas = []float32{
	0.026, 0.025, 0.025, 0.035, 0.035, 0.079, 0.079, 0.072, 0.072,
	0.062, 0.062, 0.107, 0.107, 0.087, 0.087, 0.089, 0.089,
}

// oks computes object keypoint similarity between predicted keypoints and a
// ground-truth instance, averaged over the instance's visible keypoints.
func oks(pred []float32, g *coco.Annotation) float32 {
	n := len(g.Keypoints) / 3
	if n == 0 || len(pred) < len(g.Keypoints) {
		return 0
	}
	area := g.Area
	if area <= 0 {
		area = g.Bbox[2] * g.Bbox[3]
	}
	var sum float32
	visible := 0
	for k := 0; k < n; k++ {
		if g.Keypoints[k*3+2] <= 0 {
			continue
		}
		dx := pred[k*3] - g.Keypoints[k*3]
		dy := pred[k*3+1] - g.Keypoints[k*3+1]
		sigma := float32(0.079)
		if k < len(oksSigmas) {
			sigma = oksSigmas[k]
		}
		v := 2 * sigma
		e := (dx*dx + dy*dy) / (v * v) / (area + math32.SmallestNonzeroFloat32) / 2
		sum += math32.Exp(-e)
		visible++
	}
	if visible == 0 {
		return 0
	}
	return sum / float32(visible)
}

func visibleKeypoints(kps []float32) int {
	n := 0
	for i := 2; i < len(kps); i += 3 {
		if kps[i] > 0 {
			n++
		}
	}
	return n
}
