package scorer

// Accumulator owns one metric kind's per-image evaluation state. The ids and
// results slices grow in lockstep: entry i of Results belongs to entry i of
// IDs. Before a merge the slices are append-only; a merge replaces them
// wholesale with the canonical view.
type Accumulator struct {
	ids     []int
	results []ImageResult
}

// Append records one image's evaluation result.
func (a *Accumulator) Append(id int, r ImageResult) {
	a.ids = append(a.ids, id)
	a.results = append(a.results, r)
}

// Len returns the number of recorded images.
func (a *Accumulator) Len() int {
	return len(a.ids)
}

// IDs returns the recorded image identifiers in insertion order.
func (a *Accumulator) IDs() []int {
	return a.ids
}

// Results returns the recorded per-image results, parallel to IDs.
func (a *Accumulator) Results() []ImageResult {
	return a.results
}

// Replace swaps in the merged canonical state. Panics if the slices are not
// parallel, since that would break the ids/results invariant for good.
func (a *Accumulator) Replace(ids []int, results []ImageResult) {
	if len(ids) != len(results) {
		panic("scorer: accumulator ids and results must be parallel")
	}
	a.ids = ids
	a.results = results
}
