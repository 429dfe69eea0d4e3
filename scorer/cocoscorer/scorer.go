// Package cocoscorer is a reference scorer: greedy IoU matching per category
// over a sweep of IoU thresholds and area ranges, with mAP-style summaries.
package cocoscorer

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-eval/coco"
	"github.com/nvr-ai/go-eval/records"
	"github.com/nvr-ai/go-eval/scorer"
)

// Params control the threshold and area-range sweep.
type Params struct {
	// IoUThresholds are the match thresholds, typically 0.50:0.05:0.95.
	IoUThresholds []float64
	// RecallThresholds sample the precision/recall curve.
	RecallThresholds []float64
	// AreaRanges partition instances by pixel area, [min, max) pairs.
	AreaRanges [][2]float64
	// AreaLabels name the ranges in summaries.
	AreaLabels []string
	// MaxDetections sweeps per-image detection caps in ascending order.
	// Summaries report precision at the largest cap and recall at each.
	MaxDetections []int
}

// DefaultParams returns the standard COCO sweep.
func DefaultParams() Params {
	p := Params{
		AreaRanges: [][2]float64{
			{0, 1e10},
			{0, 32 * 32},
			{32 * 32, 96 * 96},
			{96 * 96, 1e10},
		},
		AreaLabels:    []string{"all", "small", "medium", "large"},
		MaxDetections: []int{1, 10, 100},
	}
	// The last recall threshold must be exactly 1.0.
	for i := 0; i < 10; i++ {
		p.IoUThresholds = append(p.IoUThresholds, 0.5+0.05*float64(i))
	}
	for i := 0; i <= 100; i++ {
		p.RecallThresholds = append(p.RecallThresholds, float64(i)/100)
	}
	return p
}

// Scorer implements scorer.Scorer for one metric kind against one
// ground-truth store.
type Scorer struct {
	kind   records.Kind
	gt     *coco.GroundTruth
	params Params
	diag   io.Writer

	// dets is image id -> category id -> loaded records.
	dets  map[int]map[int][]records.Record
	scope map[int]bool

	// Accumulate output: precision is [T, R, K, A, M], recall is
	// [T, K, A, M], with -1 marking cells that had no ground truth.
	precision *tensor.Dense
	recall    *tensor.Dense
}

// New creates a scorer with the default parameter sweep.
func New(kind records.Kind, gt *coco.GroundTruth) *Scorer {
	return NewWithParams(kind, gt, DefaultParams())
}

// NewWithParams creates a scorer with an explicit sweep.
func NewWithParams(kind records.Kind, gt *coco.GroundTruth, params Params) *Scorer {
	return &Scorer{
		kind:   kind,
		gt:     gt,
		params: params,
		diag:   os.Stderr,
		dets:   make(map[int]map[int][]records.Record),
		scope:  make(map[int]bool),
	}
}

// Factory adapts New to the evaluation driver's factory signature.
func Factory(kind records.Kind, gt *coco.GroundTruth) (scorer.Scorer, error) {
	return New(kind, gt), nil
}

// SetDiagnostics redirects diagnostic output.
func (s *Scorer) SetDiagnostics(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	s.diag = w
}

// LoadRecords adds converted records to the detection pool. Batches
// accumulate; nothing is deduplicated here.
func (s *Scorer) LoadRecords(recs []records.Record) error {
	for i, rec := range recs {
		switch s.kind {
		case records.KindBbox:
			if len(rec.Bbox) != 4 {
				return errors.Errorf("record %d: bbox has %d elements, want 4", i, len(rec.Bbox))
			}
		case records.KindSegm:
			if rec.Segmentation == nil {
				return errors.Errorf("record %d: missing segmentation", i)
			}
		case records.KindKeypoints:
			if len(rec.Keypoints) == 0 || len(rec.Keypoints)%3 != 0 {
				return errors.Errorf("record %d: malformed keypoints of length %d", i, len(rec.Keypoints))
			}
		}
		byCat := s.dets[rec.ImageID]
		if byCat == nil {
			byCat = make(map[int][]records.Record)
			s.dets[rec.ImageID] = byCat
		}
		byCat[rec.CategoryID] = append(byCat[rec.CategoryID], rec)
	}
	return nil
}

// RestrictImages scopes evaluation to the given image ids.
func (s *Scorer) RestrictImages(ids []int) {
	s.scope = make(map[int]bool, len(ids))
	for _, id := range ids {
		s.scope[id] = true
	}
}

// sortedDets returns an image/category's detections by descending score,
// capped at the largest MaxDetections entry. The smaller caps are applied as
// prefixes at accumulation time.
func (s *Scorer) sortedDets(imageID, categoryID int) []records.Record {
	dts := s.dets[imageID][categoryID]
	out := make([]records.Record, len(dts))
	copy(out, dts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if n := len(s.params.MaxDetections); n > 0 {
		if limit := s.params.MaxDetections[n-1]; len(out) > limit {
			out = out[:limit]
		}
	}
	return out
}

func (s *Scorer) debugf(format string, args ...interface{}) {
	fmt.Fprintf(s.diag, format, args...)
}
