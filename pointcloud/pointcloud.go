// Package pointcloud is the external façade (spec.md §6) tying the
// chunk pipeline, map-reduce assembler, LoD generator, and normal
// generator into the two entry points callers actually need: Import
// (build a fresh PointSet from raw chunks) and Merge (combine two
// existing PointSets). Open resolves a symbolic key back to its
// PointSet handle.
//
// Grounded on the teacher's top-level package shape (e.g. ethclient's
// thin façade over lower-level trie/state packages): a small surface
// that wires subsystems together and owns none of their internals.
package pointcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pointstream/pcidx/chunk"
	"github.com/pointstream/pcidx/internal/log"
	"github.com/pointstream/pcidx/octree/assemble"
	"github.com/pointstream/pcidx/octree/lod"
	"github.com/pointstream/pcidx/octree/merge"
	"github.com/pointstream/pcidx/octree/node"
	"github.com/pointstream/pcidx/octree/normal"
	"github.com/pointstream/pcidx/store"
)

// ErrNotFound is returned by Open when key has no PointSet handle.
// Distinct from a generic store error, per spec.md §7's "absent is not
// fatal" policy for named lookups.
var ErrNotFound = store.ErrNotFound

// Config collects every recognized option from spec.md §6's
// configuration table. Storage is the only required field.
type Config struct {
	// Key is the symbolic name the resulting PointSet handle is stored
	// under. If empty, one is generated.
	Key string

	// Storage is the backing Blob Store. Required.
	Storage store.Store

	// SplitLimit bounds points per leaf. Defaults to 8192.
	SplitLimit int

	// MinDist is the minimum-distance thinning radius; 0 disables.
	MinDist float64

	// Reproject is a per-point position transform applied before
	// building; nil disables.
	Reproject chunk.ReprojectFunc

	// EstimateNormals estimates normals for a batch of absolute
	// positions; nil skips the normal generation pass entirely.
	EstimateNormals normal.Estimator

	// CreateOctreeLOD runs the LoD pass after construction. Defaults to
	// true; set CreateOctreeLODSet to override with CreateOctreeLOD's
	// zero value.
	CreateOctreeLOD    bool
	CreateOctreeLODSet bool

	// DeduplicateChunks drops chunks with a duplicate content hash.
	DeduplicateChunks bool

	// MaxDegreeOfParallelism upper-bounds worker concurrency; <=0 means
	// unbounded.
	MaxDegreeOfParallelism int

	// ProgressCallback reports monotone progress in [0, 1]; optional.
	ProgressCallback func(float64)

	// Verbose enables debug-level logging to the root logger.
	Verbose bool
}

const defaultSplitLimit = 8192

func (c Config) splitLimit() int {
	if c.SplitLimit > 0 {
		return c.SplitLimit
	}
	return defaultSplitLimit
}

func (c Config) createLOD() bool {
	if c.CreateOctreeLODSet {
		return c.CreateOctreeLOD
	}
	return true
}

// PointSet is the named handle persisted under a caller-chosen key
// (spec.md §3, §6): {Id, RootNodeId, SplitLimit}.
type PointSet struct {
	Id         string
	RootNodeId string
	SplitLimit int
}

var pointSetCodec = store.Codec[PointSet]{
	Encode: func(p PointSet) ([]byte, error) { return json.Marshal(p) },
	Decode: func(data []byte) (PointSet, error) {
		var p PointSet
		err := json.Unmarshal(data, &p)
		return p, err
	},
}

func pointSetKey(key string) string { return "pointset/" + key }

// Import builds a fresh octree from chunks and persists it as a named
// PointSet, running the full C7->C6->C8->C10->C11 pipeline described by
// spec.md §2's dataflow line.
func Import(ctx context.Context, chunks []*chunk.Chunk, cfg Config) (*PointSet, error) {
	if cfg.Storage == nil {
		return nil, errors.New("pointcloud: Config.Storage is required")
	}
	log.SetLevel(cfg.Verbose)
	splitLimit := cfg.splitLimit()
	loader := node.Loader(cfg.Storage)

	pipeline := chunk.NewPipeline(cfg.Reproject, cfg.MinDist, cfg.DeduplicateChunks)
	opts := assemble.Options{
		SplitLimit:  splitLimit,
		Parallelism: cfg.MaxDegreeOfParallelism,
		Pipeline:    pipeline,
		Progress:    assembleProgress(cfg, 0, 0.6),
	}
	root, err := assemble.Assemble(ctx, chunks, opts, loader)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: import: %w", err)
	}

	root, err = runLODAndNormals(ctx, cfg, root, splitLimit, loader)
	if err != nil {
		return nil, err
	}

	return persistPointSet(cfg, root, splitLimit)
}

// Merge combines the trees behind two existing PointSets into one new
// PointSet, per C9, re-running LoD/normals over whatever newly-lifted
// or re-split structure the merge produced.
func Merge(ctx context.Context, cfg Config, a, b *PointSet) (*PointSet, error) {
	if cfg.Storage == nil {
		return nil, errors.New("pointcloud: Config.Storage is required")
	}
	log.SetLevel(cfg.Verbose)
	splitLimit := cfg.splitLimit()
	if a.SplitLimit != b.SplitLimit {
		return nil, fmt.Errorf("pointcloud: merge: mismatched split limits %d vs %d", a.SplitLimit, b.SplitLimit)
	}
	loader := node.Loader(cfg.Storage)

	rootA, err := node.Load(cfg.Storage, a.RootNodeId)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: merge: load %s: %w", a.RootNodeId, err)
	}
	rootB, err := node.Load(cfg.Storage, b.RootNodeId)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: merge: load %s: %w", b.RootNodeId, err)
	}

	merged, err := merge.Merge(ctx, rootA, rootB, splitLimit, loader)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: merge: %w", err)
	}
	if cfg.ProgressCallback != nil {
		cfg.ProgressCallback(0.6)
	}

	merged, err = runLODAndNormals(ctx, cfg, merged, splitLimit, loader)
	if err != nil {
		return nil, err
	}
	return persistPointSet(cfg, merged, splitLimit)
}

// Open looks up the PointSet handle stored under key, and the handle's
// root node, so a caller can hand the root straight to the query
// engine. Returns ErrNotFound if key is absent.
func Open(storage store.Store, key string) (*PointSet, *node.Node, error) {
	p, err := store.GetTyped(storage, pointSetKey(key), pointSetCodec)
	if err != nil {
		return nil, nil, err
	}
	root, err := node.Load(storage, p.RootNodeId)
	if err != nil {
		return nil, nil, fmt.Errorf("pointcloud: open %q: %w", key, err)
	}
	return &p, root, nil
}

func runLODAndNormals(ctx context.Context, cfg Config, root *node.Node, splitLimit int, loader func(string) (*node.Node, error)) (*node.Node, error) {
	var err error
	if cfg.createLOD() {
		root, err = lod.Generate(ctx, cfg.Storage, root, splitLimit, loader)
		if err != nil {
			return nil, fmt.Errorf("pointcloud: lod: %w", err)
		}
		if cfg.ProgressCallback != nil {
			cfg.ProgressCallback(0.8)
		}
	}
	if cfg.EstimateNormals != nil {
		root, err = normal.Generate(ctx, cfg.Storage, root, cfg.EstimateNormals, loader)
		if err != nil {
			return nil, fmt.Errorf("pointcloud: normal: %w", err)
		}
	}
	if cfg.ProgressCallback != nil {
		cfg.ProgressCallback(1.0)
	}
	return root, nil
}

func persistPointSet(cfg Config, root *node.Node, splitLimit int) (*PointSet, error) {
	if _, err := node.Persist(cfg.Storage, root); err != nil {
		return nil, fmt.Errorf("pointcloud: persist root: %w", err)
	}
	key := cfg.Key
	if key == "" {
		key = uuid.NewString()
	}
	ps := PointSet{Id: key, RootNodeId: root.ID, SplitLimit: splitLimit}
	if err := store.PutTyped(cfg.Storage, pointSetKey(key), ps, pointSetCodec); err != nil {
		return nil, fmt.Errorf("pointcloud: persist handle %q: %w", key, err)
	}
	log.Info("pointset persisted", "key", key, "points", root.PointCountTree)
	return &ps, nil
}

// assembleProgress rescales assemble's own [0,1] progress into
// [lo, lo+(hi-lo)] of the overall Import/Merge progress range, so LoD
// and normal generation (which report their own fixed checkpoints) get
// the remainder of the [0, 1] budget.
func assembleProgress(cfg Config, lo, hi float64) func(float64) {
	if cfg.ProgressCallback == nil {
		return nil
	}
	return func(p float64) {
		cfg.ProgressCallback(lo + (hi-lo)*p)
	}
}
