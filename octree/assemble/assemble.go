// Package assemble implements the map-reduce octree assembler (C8): a
// bounded worker pool runs the per-chunk pipeline and builder over each
// incoming chunk (map), then folds the resulting per-chunk trees down to
// one via the merge engine (reduce), per spec.md §4.7.
//
// Concurrency follows the teacher's bounded fan-out idiom
// (triedb/pathdb/lookup.go's errgroup.Group + SetLimit(P)), generalized
// from "resolve N trie paths concurrently" to "build N chunk octrees
// concurrently".
package assemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/internal/log"
	"github.com/pointstream/pcidx/metrics"
	"github.com/pointstream/pcidx/octree/builder"
	"github.com/pointstream/pcidx/octree/merge"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/store/ref"
)

var (
	mapTimer     = metrics.NewRegisteredResettingTimer("octree/assemble/map", "time spent building one chunk's octree")
	reduceTimer  = metrics.NewRegisteredResettingTimer("octree/assemble/reduce", "time spent merging two chunk octrees")
	chunksMeter  = metrics.NewRegisteredMeter("octree/assemble/chunks", "chunks accepted into the map phase")
	droppedMeter = metrics.NewRegisteredMeter("octree/assemble/dropped", "chunks dropped by the pipeline (dedup)")
)

// ProgressFunc reports monotone progress in [0, 1], per spec.md §6's
// progress_callback.
type ProgressFunc func(float64)

// Options configures a single Assemble invocation.
type Options struct {
	SplitLimit  int
	Parallelism int // upper bound on concurrent map/reduce workers; <=0 means unbounded
	Pipeline    *chunk.Pipeline
	Progress    ProgressFunc // optional
}

// Assemble runs the full C8 map-reduce pipeline over chunks, returning
// the single resulting tree's root. An empty input returns an empty
// tree, matching the builder's own empty-chunk convention.
func Assemble(ctx context.Context, chunks []*chunk.Chunk, opts Options, loader ref.Loader[*node.Node]) (*node.Node, error) {
	logger := log.Root.With("assemble")
	if opts.SplitLimit <= 0 {
		return nil, fmt.Errorf("octree/assemble: split limit must be positive, got %d", opts.SplitLimit)
	}
	if len(chunks) == 0 {
		return builder.Build(ctx, &chunk.Chunk{}, opts.SplitLimit, loader)
	}

	report := func(p float64) {
		if opts.Progress != nil {
			opts.Progress(p)
		}
	}

	trees, err := mapPhase(ctx, chunks, opts, loader, logger, report)
	if err != nil {
		return nil, err
	}
	report(0.5)

	root, err := reducePhase(ctx, trees, opts, loader, logger, report)
	if err != nil {
		return nil, err
	}
	report(1.0)
	return root, nil
}

// mapPhase builds one octree per surviving chunk, up to opts.Parallelism
// concurrent workers, and reports progress linearly across [0, 0.5].
func mapPhase(ctx context.Context, chunks []*chunk.Chunk, opts Options, loader ref.Loader[*node.Node], logger *log.Logger, report ProgressFunc) ([]*node.Node, error) {
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}

	trees := make([]*node.Node, len(chunks))
	var done int64
	var mu sync.Mutex
	total := float64(len(chunks))

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			var built *chunk.Chunk
			keep := true
			if opts.Pipeline != nil {
				built, keep = opts.Pipeline.Apply(c)
			} else {
				built = c
			}
			if !keep {
				droppedMeter.Mark(1)
				mu.Lock()
				done++
				report(0.5 * float64(done) / total)
				mu.Unlock()
				return nil
			}
			if err := built.Validate(); err != nil {
				return fmt.Errorf("octree/assemble: chunk %d: %w", i, err)
			}
			chunksMeter.Mark(1)
			start := time.Now()
			tree, err := builder.Build(gctx, built, opts.SplitLimit, loader)
			mapTimer.UpdateSince(start)
			if err != nil {
				return fmt.Errorf("octree/assemble: build chunk %d: %w", i, err)
			}
			trees[i] = tree

			mu.Lock()
			done++
			report(0.5 * float64(done) / total)
			mu.Unlock()
			logger.Debug("built chunk octree", "chunk", i, "points", tree.PointCountTree)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := trees[:0]
	for _, t := range trees {
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// reducePhase folds trees down to one via pairwise C9 merges, reporting
// progress linearly across [0.5, 1]. Pairwise folding proceeds in
// rounds: each round merges adjacent pairs concurrently (bounded by
// opts.Parallelism), halving the list size, until one tree remains.
func reducePhase(ctx context.Context, trees []*node.Node, opts Options, loader ref.Loader[*node.Node], logger *log.Logger, report ProgressFunc) (*node.Node, error) {
	if len(trees) == 0 {
		return builder.Build(ctx, &chunk.Chunk{}, opts.SplitLimit, loader)
	}
	totalPairs := len(trees) - 1
	if totalPairs == 0 {
		return trees[0], nil
	}
	var mergesDone int64
	var mu sync.Mutex

	cur := trees
	for len(cur) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		if opts.Parallelism > 0 {
			g.SetLimit(opts.Parallelism)
		}
		next := make([]*node.Node, (len(cur)+1)/2)
		for i := 0; i+1 < len(cur); i += 2 {
			i := i
			a, b := cur[i], cur[i+1]
			g.Go(func() error {
				start := time.Now()
				merged, err := merge.Merge(gctx, a, b, opts.SplitLimit, loader)
				reduceTimer.UpdateSince(start)
				if err != nil {
					return fmt.Errorf("octree/assemble: reduce: %w", err)
				}
				next[i/2] = merged
				mu.Lock()
				mergesDone++
				report(0.5 + 0.5*float64(mergesDone)/float64(totalPairs))
				mu.Unlock()
				logger.Debug("merged pair", "points", merged.PointCountTree)
				return nil
			})
		}
		if len(cur)%2 == 1 {
			next[len(next)-1] = cur[len(cur)-1]
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		cur = next
	}
	return cur[0], nil
}
