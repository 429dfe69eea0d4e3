package cocoscorer

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-eval/scorer"
)

// Accumulate folds the canonical per-image results into precision and recall
// arrays. ids and results must be parallel; ids order fixes the detection
// concatenation order across images.
func (s *Scorer) Accumulate(ids []int, results []scorer.ImageResult) error {
	if len(ids) != len(results) {
		return errors.Errorf("got %d ids but %d results", len(ids), len(results))
	}
	evals := make([]*imageEval, len(results))
	for i, r := range results {
		ev, ok := r.(*imageEval)
		if ok && ev.imageID != ids[i] {
			return errors.Errorf("result %d belongs to image %d, expected %d", i, ev.imageID, ids[i])
		}
		if !ok {
			return errors.Errorf("result %d was not produced by this scorer", i)
		}
		evals[i] = ev
	}

	catIDs := s.gt.CategoryIDs()
	if len(catIDs) == 0 {
		return errors.New("ground truth has no categories")
	}
	if len(s.params.MaxDetections) == 0 {
		return errors.New("max detections sweep is empty")
	}
	nT := len(s.params.IoUThresholds)
	nR := len(s.params.RecallThresholds)
	nK := len(catIDs)
	nA := len(s.params.AreaRanges)
	nM := len(s.params.MaxDetections)

	precBacking := make([]float64, nT*nR*nK*nA*nM)
	for i := range precBacking {
		precBacking[i] = -1
	}
	recBacking := make([]float64, nT*nK*nA*nM)
	for i := range recBacking {
		recBacking[i] = -1
	}
	precision := tensor.New(tensor.WithShape(nT, nR, nK, nA, nM), tensor.WithBacking(precBacking))
	recall := tensor.New(tensor.WithShape(nT, nK, nA, nM), tensor.WithBacking(recBacking))

	for k, catID := range catIDs {
		for a := 0; a < nA; a++ {
			var (
				cells []*cell
				numGT int
			)
			for _, ev := range evals {
				for i := range ev.cells {
					c := &ev.cells[i]
					if c.category != catID || c.area != a {
						continue
					}
					cells = append(cells, c)
					numGT += c.numGT
				}
			}
			if numGT == 0 {
				continue
			}

			for m, maxDet := range s.params.MaxDetections {
				// Each cell holds one image's detections in descending score
				// order, so the per-image cap is a prefix.
				var scores []float32
				matched := make([][]bool, nT)
				ignored := make([][]bool, nT)
				for _, c := range cells {
					n := len(c.scores)
					if n > maxDet {
						n = maxDet
					}
					scores = append(scores, c.scores[:n]...)
					for t := 0; t < nT; t++ {
						matched[t] = append(matched[t], c.matched[t][:n]...)
						ignored[t] = append(ignored[t], c.ignored[t][:n]...)
					}
				}

				// Global score ordering across images, stable on ties.
				order := make([]int, len(scores))
				for i := range order {
					order[i] = i
				}
				sort.SliceStable(order, func(i, j int) bool {
					return scores[order[i]] > scores[order[j]]
				})

				for t := 0; t < nT; t++ {
					prec, rec := prCurve(order, matched[t], ignored[t], numGT)
					if err := recall.SetAt(rec, t, k, a, m); err != nil {
						return errors.Wrap(err, "failed to store recall")
					}
					for r, thr := range s.params.RecallThresholds {
						v := interpolate(prec, thr)
						if err := precision.SetAt(v.p, t, r, k, a, m); err != nil {
							return errors.Wrap(err, "failed to store precision")
						}
					}
				}
			}
		}
	}

	s.precision = precision
	s.recall = recall
	return nil
}

type prPoint struct {
	p float64
	r float64
}

// prCurve walks detections in score order, skipping ignored ones, and
// returns the interpolated precision/recall curve plus the final recall.
func prCurve(order []int, matched, ignored []bool, numGT int) ([]prPoint, float64) {
	var curve []prPoint
	tp, fp := 0, 0
	for _, d := range order {
		if ignored[d] {
			continue
		}
		if matched[d] {
			tp++
		} else {
			fp++
		}
		curve = append(curve, prPoint{
			p: float64(tp) / float64(tp+fp),
			r: float64(tp) / float64(numGT),
		})
	}
	// Right-to-left maximum makes precision non-increasing in recall.
	for i := len(curve) - 2; i >= 0; i-- {
		if curve[i+1].p > curve[i].p {
			curve[i].p = curve[i+1].p
		}
	}
	if len(curve) == 0 {
		return nil, 0
	}
	return curve, curve[len(curve)-1].r
}

// interpolate finds the precision at the first recall point at or beyond the
// threshold; zero past the end of the curve.
func interpolate(curve []prPoint, recThr float64) prPoint {
	for _, pt := range curve {
		if pt.r >= recThr {
			return pt
		}
	}
	return prPoint{}
}

// Summarize writes the standard 12-line AP/AR block. Accumulate must run
// first.
func (s *Scorer) Summarize(w io.Writer) error {
	if s.precision == nil || s.recall == nil {
		return errors.New("summarize called before accumulate")
	}
	all := -1 // all IoU thresholds
	mLast := len(s.params.MaxDetections) - 1
	type line struct {
		ap    bool
		tIdx  int
		aIdx  int
		mIdx  int
		label string
	}
	lines := []line{
		{true, all, 0, mLast, "0.50:0.95"},
		{true, s.thresholdIndex(0.50), 0, mLast, "0.50"},
		{true, s.thresholdIndex(0.75), 0, mLast, "0.75"},
		{true, all, 1, mLast, "0.50:0.95"},
		{true, all, 2, mLast, "0.50:0.95"},
		{true, all, 3, mLast, "0.50:0.95"},
	}
	for m := range s.params.MaxDetections {
		lines = append(lines, line{false, all, 0, m, "0.50:0.95"})
	}
	for a := 1; a <= 3; a++ {
		lines = append(lines, line{false, all, a, mLast, "0.50:0.95"})
	}
	valueColor := color.New(color.FgCyan, color.Bold)
	for _, ln := range lines {
		if ln.tIdx < -1 || ln.aIdx >= len(s.params.AreaLabels) {
			continue
		}
		name, metric := "Average Precision", "AP"
		v, err := s.meanPrecision(ln.tIdx, ln.aIdx, ln.mIdx)
		if !ln.ap {
			name, metric = "Average Recall   ", "AR"
			v, err = s.meanRecall(ln.tIdx, ln.aIdx, ln.mIdx)
		}
		if err != nil {
			return err
		}
		value := valueColor.Sprintf("%.3f", v)
		if v < 0 {
			value = valueColor.Sprintf("-1.000")
		}
		fmt.Fprintf(w, " %s (%s) @[ IoU=%s | area=%6s | maxDets=%3d ] = %s\n",
			name, metric, ln.label, s.params.AreaLabels[ln.aIdx], s.params.MaxDetections[ln.mIdx], value)
	}
	return nil
}

func (s *Scorer) thresholdIndex(thr float64) int {
	for i, t := range s.params.IoUThresholds {
		if t > thr-1e-9 && t < thr+1e-9 {
			return i
		}
	}
	return -2 // skipped by Summarize
}

// meanPrecision averages precision over all recall thresholds and
// categories, for one IoU threshold (or all when tIdx < 0), one area range,
// and one max-detections cap. Cells without ground truth are excluded; -1
// when nothing scored.
func (s *Scorer) meanPrecision(tIdx, aIdx, mIdx int) (float64, error) {
	shape := s.precision.Shape()
	sum, n := 0.0, 0
	for t := 0; t < shape[0]; t++ {
		if tIdx >= 0 && t != tIdx {
			continue
		}
		for r := 0; r < shape[1]; r++ {
			for k := 0; k < shape[2]; k++ {
				raw, err := s.precision.At(t, r, k, aIdx, mIdx)
				if err != nil {
					return 0, errors.Wrap(err, "failed to read precision")
				}
				v := raw.(float64)
				if v < 0 {
					continue
				}
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return -1, nil
	}
	return sum / float64(n), nil
}

func (s *Scorer) meanRecall(tIdx, aIdx, mIdx int) (float64, error) {
	shape := s.recall.Shape()
	sum, n := 0.0, 0
	for t := 0; t < shape[0]; t++ {
		if tIdx >= 0 && t != tIdx {
			continue
		}
		for k := 0; k < shape[1]; k++ {
			raw, err := s.recall.At(t, k, aIdx, mIdx)
			if err != nil {
				return 0, errors.Wrap(err, "failed to read recall")
			}
			v := raw.(float64)
			if v < 0 {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return -1, nil
	}
	return sum / float64(n), nil
}
