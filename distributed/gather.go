// Package distributed merges per-image evaluation results across cooperating
// worker processes.
package distributed

import (
	"context"
	"fmt"
	"sync"

	"github.com/nvr-ai/go-eval/scorer"
)

// Report is one worker's contribution to a merge: the image identifiers it
// evaluated and the parallel per-image results. Results are opaque.
type Report struct {
	ImageIDs []int
	Results  []scorer.ImageResult
}

// Gatherer is the all-gather collective supplied by the surrounding
// execution environment. AllGather blocks until every rank has contributed
// and returns all reports in rank order; a crashed or hung peer blocks the
// call until the context is cancelled.
type Gatherer interface {
	Rank() int
	WorldSize() int
	AllGather(ctx context.Context, local Report) ([]Report, error)
}

type single struct{}

// Single returns a trivial world-size-1 gatherer.
func Single() Gatherer {
	return single{}
}

func (single) Rank() int      { return 0 }
func (single) WorldSize() int { return 1 }

func (single) AllGather(_ context.Context, local Report) ([]Report, error) {
	return []Report{local}, nil
}

// LocalGroup coordinates an in-process group of worker goroutines. Each
// worker holds one member gatherer; a round completes when every member has
// called AllGather, and members may run any number of rounds.
type LocalGroup struct {
	size int

	mu  sync.Mutex
	cur *round
}

type round struct {
	reports []Report
	pending int
	done    chan struct{}
}

// NewLocalGroup creates a group for the given number of ranks.
func NewLocalGroup(size int) (*LocalGroup, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size must be positive, got %d", size)
	}
	return &LocalGroup{size: size}, nil
}

// Member returns the gatherer for one rank.
func (g *LocalGroup) Member(rank int) (Gatherer, error) {
	if rank < 0 || rank >= g.size {
		return nil, fmt.Errorf("rank %d out of range for group of %d", rank, g.size)
	}
	return &member{group: g, rank: rank}, nil
}

func (g *LocalGroup) gather(ctx context.Context, rank int, local Report) ([]Report, error) {
	g.mu.Lock()
	if g.cur == nil {
		g.cur = &round{
			reports: make([]Report, g.size),
			pending: g.size,
			done:    make(chan struct{}),
		}
	}
	r := g.cur
	r.reports[rank] = local
	r.pending--
	if r.pending == 0 {
		close(r.done)
		g.cur = nil
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.reports, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type member struct {
	group *LocalGroup
	rank  int
}

func (m *member) Rank() int      { return m.rank }
func (m *member) WorldSize() int { return m.group.size }

func (m *member) AllGather(ctx context.Context, local Report) ([]Report, error) {
	return m.group.gather(ctx, m.rank, local)
}
