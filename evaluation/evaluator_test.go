package evaluation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-eval/coco"
	"github.com/nvr-ai/go-eval/distributed"
	"github.com/nvr-ai/go-eval/records"
	"github.com/nvr-ai/go-eval/scorer"
)

// fakeScorer records the driver's calls for assertions.
type fakeScorer struct {
	kind       records.Kind
	diag       io.Writer
	loaded     []records.Record
	restricted []int
	evaluated  []int
	accIDs     []int
	accResults []scorer.ImageResult
	summarized bool
}

func (f *fakeScorer) LoadRecords(recs []records.Record) error {
	f.loaded = append(f.loaded, recs...)
	return nil
}

func (f *fakeScorer) RestrictImages(ids []int) {
	f.restricted = append([]int(nil), ids...)
}

func (f *fakeScorer) EvaluateImage(imageID int) (scorer.ImageResult, error) {
	// Diagnostic chatter the driver must silence.
	fmt.Fprintf(f.diag, "evaluating image %d\n", imageID)
	f.evaluated = append(f.evaluated, imageID)
	return fmt.Sprintf("%s-blob-%d", f.kind, imageID), nil
}

func (f *fakeScorer) Accumulate(ids []int, results []scorer.ImageResult) error {
	f.accIDs = append([]int(nil), ids...)
	f.accResults = append([]scorer.ImageResult(nil), results...)
	return nil
}

func (f *fakeScorer) Summarize(w io.Writer) error {
	f.summarized = true
	fmt.Fprintf(w, "summary over %d images\n", len(f.accIDs))
	return nil
}

func (f *fakeScorer) SetDiagnostics(w io.Writer) {
	f.diag = w
}

func newTestEvaluator(t *testing.T, diag io.Writer, kinds ...records.Kind) (*Evaluator, map[records.Kind]*fakeScorer) {
	t.Helper()
	scorers := make(map[records.Kind]*fakeScorer)
	eval, err := New(Config{
		Kinds:       kinds,
		GroundTruth: coco.NewGroundTruth(coco.Dataset{}),
		Diagnostics: diag,
		NewScorer: func(kind records.Kind, _ *coco.GroundTruth) (scorer.Scorer, error) {
			f := &fakeScorer{kind: kind}
			scorers[kind] = f
			return f, nil
		},
	})
	require.NoError(t, err)
	return eval, scorers
}

func TestNewValidation(t *testing.T) {
	gt := coco.NewGroundTruth(coco.Dataset{})
	factory := func(kind records.Kind, _ *coco.GroundTruth) (scorer.Scorer, error) {
		return &fakeScorer{kind: kind}, nil
	}

	_, err := New(Config{GroundTruth: gt, NewScorer: factory})
	assert.Error(t, err, "empty kind list must be rejected")

	_, err = New(Config{Kinds: []records.Kind{"masks"}, GroundTruth: gt, NewScorer: factory})
	assert.Error(t, err, "unknown kind must be rejected")

	_, err = New(Config{
		Kinds:       []records.Kind{records.KindBbox, records.KindBbox},
		GroundTruth: gt,
		NewScorer:   factory,
	})
	assert.Error(t, err, "duplicate kind must be rejected")

	_, err = New(Config{Kinds: []records.Kind{records.KindBbox}, NewScorer: factory})
	assert.Error(t, err, "missing ground truth must be rejected")
}

func TestProcessTracksAllImages(t *testing.T) {
	var diag bytes.Buffer
	eval, scorers := newTestEvaluator(t, &diag, records.KindBbox)

	preds := map[int]records.Instances{
		5: {
			Boxes:  [][4]float32{{0, 0, 10, 10}},
			Scores: []float32{0.9},
			Labels: []int{1},
		},
		7: {}, // zero instances
	}
	require.NoError(t, eval.Process(preds))

	f := scorers[records.KindBbox]
	// Image 7 produced no records but is still tracked and evaluated.
	for _, rec := range f.loaded {
		assert.NotEqual(t, 7, rec.ImageID)
	}
	assert.Len(t, f.loaded, 1)
	assert.Equal(t, []int{5, 7}, f.restricted)
	assert.Equal(t, []int{5, 7}, f.evaluated)

	acc := eval.Accumulator(records.KindBbox)
	assert.Equal(t, []int{5, 7}, acc.IDs())
	assert.Equal(t, acc.Len(), len(acc.Results()), "ids and results must stay parallel")
}

func TestProcessScopesAccumulate(t *testing.T) {
	var diag bytes.Buffer
	eval, scorers := newTestEvaluator(t, &diag, records.KindBbox)

	require.NoError(t, eval.Process(map[int]records.Instances{1: {}, 2: {}}))
	require.NoError(t, eval.Process(map[int]records.Instances{3: {}}))

	f := scorers[records.KindBbox]
	// The second batch is scoped to everything seen so far.
	assert.Equal(t, []int{1, 2, 3}, f.restricted)
	assert.Equal(t, []int{1, 2, 3}, eval.Accumulator(records.KindBbox).IDs())
}

func TestProcessSilencesDiagnostics(t *testing.T) {
	var diag bytes.Buffer
	eval, scorers := newTestEvaluator(t, &diag, records.KindBbox)

	require.NoError(t, eval.Process(map[int]records.Instances{1: {}}))

	assert.Empty(t, diag.String(), "per-image diagnostics must be discarded")
	// The configured writer is restored after each evaluation call.
	f := scorers[records.KindBbox]
	fmt.Fprint(f.diag, "after")
	assert.Equal(t, "after", diag.String())
}

func TestMergeWorkersOverlap(t *testing.T) {
	group, err := distributed.NewLocalGroup(2)
	require.NoError(t, err)

	batches := []map[int]records.Instances{
		{1: {}, 2: {}},
		{2: {}, 3: {}},
	}
	evals := make([]*Evaluator, 2)
	var wg sync.WaitGroup
	for rank := 0; rank < 2; rank++ {
		var diag bytes.Buffer
		eval, _ := newTestEvaluator(t, &diag, records.KindBbox)
		require.NoError(t, eval.Process(batches[rank]))
		// Tag blobs by rank so first-wins is observable.
		acc := eval.Accumulator(records.KindBbox)
		for i, id := range acc.IDs() {
			acc.Results()[i] = fmt.Sprintf("rank%d-blob-%d", rank, id)
		}
		evals[rank] = eval

		member, err := group.Member(rank)
		require.NoError(t, err)
		wg.Add(1)
		go func(eval *Evaluator, g distributed.Gatherer) {
			defer wg.Done()
			assert.NoError(t, eval.MergeWorkers(context.Background(), g))
		}(eval, member)
	}
	wg.Wait()

	for rank := 0; rank < 2; rank++ {
		acc := evals[rank].Accumulator(records.KindBbox)
		assert.Equal(t, []int{1, 2, 3}, acc.IDs())
		// Image 2's blob comes from rank 0.
		assert.Equal(t, "rank0-blob-2", acc.Results()[1])
		assert.Equal(t, "rank1-blob-3", acc.Results()[2])
	}
}

func TestSummarize(t *testing.T) {
	var diag bytes.Buffer
	eval, scorers := newTestEvaluator(t, &diag, records.KindBbox, records.KindSegm)

	require.NoError(t, eval.Process(map[int]records.Instances{1: {}, 2: {}}))
	require.NoError(t, eval.MergeWorkers(context.Background(), distributed.Single()))

	var out bytes.Buffer
	require.NoError(t, eval.Summarize(&out))

	for _, kind := range []records.Kind{records.KindBbox, records.KindSegm} {
		f := scorers[kind]
		assert.True(t, f.summarized)
		assert.Equal(t, []int{1, 2}, f.accIDs)
		assert.Len(t, f.accResults, 2)
		assert.Contains(t, out.String(), fmt.Sprintf("Evaluation results for %s", kind))
	}
	assert.Contains(t, out.String(), "summary over 2 images")
}

func TestKindsAndRunID(t *testing.T) {
	var diag bytes.Buffer
	eval, _ := newTestEvaluator(t, &diag, records.KindBbox, records.KindKeypoints)

	assert.Equal(t, []records.Kind{records.KindBbox, records.KindKeypoints}, eval.Kinds())
	assert.NotEmpty(t, eval.RunID())
}
