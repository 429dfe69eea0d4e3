// Package evaluation drives per-metric scorers over converted prediction
// records, merges per-image results across workers, and triggers summaries.
package evaluation

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-eval/coco"
	"github.com/nvr-ai/go-eval/distributed"
	"github.com/nvr-ai/go-eval/records"
	"github.com/nvr-ai/go-eval/scorer"
)

// ScorerFactory builds one scorer per metric kind.
type ScorerFactory func(kind records.Kind, gt *coco.GroundTruth) (scorer.Scorer, error)

// Config configures an Evaluator.
type Config struct {
	// Kinds are the metric types to score. Must be non-empty and known.
	Kinds []records.Kind
	// GroundTruth is the annotation store predictions are scored against.
	GroundTruth *coco.GroundTruth
	// NewScorer builds the scorer for each kind.
	NewScorer ScorerFactory
	// Diagnostics receives scorer diagnostic output outside evaluation
	// calls. Defaults to os.Stderr.
	Diagnostics io.Writer
	// Logger defaults to the logrus standard logger.
	Logger *logrus.Logger
}

// Evaluator accumulates per-image evaluation results for each configured
// metric kind. Each worker process owns its evaluator exclusively until
// MergeWorkers, after which every worker holds the same canonical state.
type Evaluator struct {
	runID   string
	kinds   []records.Kind
	gt      *coco.GroundTruth
	scorers map[records.Kind]scorer.Scorer
	accs    map[records.Kind]*scorer.Accumulator
	diag    io.Writer
	log     *logrus.Entry
}

// New validates the configuration and constructs the per-kind scorers.
func New(cfg Config) (*Evaluator, error) {
	if len(cfg.Kinds) == 0 {
		return nil, fmt.Errorf("at least one metric kind is required")
	}
	if cfg.GroundTruth == nil {
		return nil, fmt.Errorf("ground truth store is required")
	}
	if cfg.NewScorer == nil {
		return nil, fmt.Errorf("scorer factory is required")
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	e := &Evaluator{
		runID:   uuid.NewString(),
		gt:      cfg.GroundTruth,
		scorers: make(map[records.Kind]scorer.Scorer, len(cfg.Kinds)),
		accs:    make(map[records.Kind]*scorer.Accumulator, len(cfg.Kinds)),
		diag:    cfg.Diagnostics,
	}
	e.log = cfg.Logger.WithField("run_id", e.runID)

	for _, kind := range cfg.Kinds {
		if _, err := records.ParseKind(kind.String()); err != nil {
			return nil, err
		}
		if _, ok := e.scorers[kind]; ok {
			return nil, fmt.Errorf("metric kind %s listed twice", kind)
		}
		sc, err := cfg.NewScorer(kind, cfg.GroundTruth)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build %s scorer", kind)
		}
		sc.SetDiagnostics(cfg.Diagnostics)
		e.scorers[kind] = sc
		e.accs[kind] = &scorer.Accumulator{}
		e.kinds = append(e.kinds, kind)
	}
	return e, nil
}

// RunID identifies this evaluation run in logs.
func (e *Evaluator) RunID() string {
	return e.runID
}

// Kinds returns the configured metric kinds in evaluation order.
func (e *Evaluator) Kinds() []records.Kind {
	return e.kinds
}

// Accumulator exposes one kind's per-image state, mainly for inspection.
func (e *Evaluator) Accumulator(kind records.Kind) *scorer.Accumulator {
	return e.accs[kind]
}

// Process converts one batch of predictions and evaluates each image under
// every configured metric kind. Image ids across Process calls are assumed
// disjoint; duplicates are only collapsed at merge time. An image with zero
// instances contributes no records but is still tracked and evaluated.
func (e *Evaluator) Process(preds map[int]records.Instances) error {
	ids := records.ImageIDs(preds)
	for _, kind := range e.kinds {
		sc := e.scorers[kind]
		acc := e.accs[kind]

		var recs []records.Record
		for _, id := range ids {
			recs = append(recs, records.Convert(kind, id, preds[id])...)
		}
		if err := sc.LoadRecords(recs); err != nil {
			return errors.Wrapf(err, "failed to load %s records", kind)
		}

		// Scope the scorer to every image seen so far, including this batch.
		scope := make([]int, 0, acc.Len()+len(ids))
		scope = append(scope, acc.IDs()...)
		scope = append(scope, ids...)
		sc.RestrictImages(scope)

		for _, id := range ids {
			res, err := e.evaluateQuiet(sc, id)
			if err != nil {
				return errors.Wrapf(err, "failed to evaluate image %d (%s)", id, kind)
			}
			acc.Append(id, res)
		}
		e.log.WithFields(logrus.Fields{
			"kind":    kind,
			"images":  len(ids),
			"records": len(recs),
			"total":   acc.Len(),
		}).Debug("processed prediction batch")
	}
	return nil
}

// evaluateQuiet silences scorer diagnostics for the duration of one
// per-image evaluation call, restoring the configured writer afterward.
func (e *Evaluator) evaluateQuiet(sc scorer.Scorer, id int) (scorer.ImageResult, error) {
	sc.SetDiagnostics(io.Discard)
	defer sc.SetDiagnostics(e.diag)
	return sc.EvaluateImage(id)
}

// MergeWorkers gathers every worker's per-image results and replaces each
// kind's accumulator with the canonical deduplicated view. The gather is a
// blocking collective; its failures propagate unchanged.
func (e *Evaluator) MergeWorkers(ctx context.Context, g distributed.Gatherer) error {
	for _, kind := range e.kinds {
		acc := e.accs[kind]
		local := distributed.Report{ImageIDs: acc.IDs(), Results: acc.Results()}
		merged, err := distributed.AllGatherMerge(ctx, g, local)
		if err != nil {
			return errors.Wrapf(err, "all-gather failed for %s", kind)
		}
		acc.Replace(merged.ImageIDs, merged.Results)
		e.log.WithFields(logrus.Fields{
			"kind":   kind,
			"rank":   g.Rank(),
			"world":  g.WorldSize(),
			"images": acc.Len(),
		}).Info("merged worker results")
	}
	return nil
}

// Summarize feeds each kind's canonical results to its scorer and writes the
// scorer's summary. Call after MergeWorkers (or directly for a single
// worker).
func (e *Evaluator) Summarize(w io.Writer) error {
	for _, kind := range e.kinds {
		acc := e.accs[kind]
		sc := e.scorers[kind]
		if err := sc.Accumulate(acc.IDs(), acc.Results()); err != nil {
			return errors.Wrapf(err, "failed to accumulate %s results", kind)
		}
		fmt.Fprintf(w, "Evaluation results for %s (%d images):\n", kind, acc.Len())
		if err := sc.Summarize(w); err != nil {
			return errors.Wrapf(err, "failed to summarize %s results", kind)
		}
	}
	return nil
}
