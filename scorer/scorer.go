// Package scorer defines the contract between the evaluation driver and a
// per-metric scorer, and the accumulator that owns per-image results.
package scorer

import (
	"io"

	"github.com/nvr-ai/go-eval/records"
)

// ImageResult is one image's evaluation output. The driver and the merge
// step treat it as an atomic unit: it is never inspected, only carried.
type ImageResult interface{}

// Scorer evaluates flat annotation records against ground truth for one
// metric kind.
type Scorer interface {
	// LoadRecords adds converted records to the scorer's detection pool.
	// Records from successive batches accumulate.
	LoadRecords(recs []records.Record) error
	// RestrictImages scopes subsequent evaluation to the given image ids.
	RestrictImages(ids []int)
	// EvaluateImage scores one image and returns its opaque result.
	EvaluateImage(imageID int) (ImageResult, error)
	// Accumulate folds the canonical per-image results into summary state.
	Accumulate(ids []int, results []ImageResult) error
	// Summarize writes precision/recall summary statistics.
	Summarize(w io.Writer) error
	// SetDiagnostics redirects the scorer's diagnostic output.
	SetDiagnostics(w io.Writer)
}
