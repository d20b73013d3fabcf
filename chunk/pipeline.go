package chunk

import "sync"

// ReprojectFunc is a pure per-point position transform (spec.md §4.6).
type ReprojectFunc func(positions [][3]float64) [][3]float64

// Pipeline applies the chunk-level conditioning recognized by spec.md
// §4.6/§6: reprojection, minimum-distance thinning, and content-hash
// deduplication across repeated chunks.
//
// Apply is safe for concurrent use: the Map half of the C8 assembler
// feeds chunks through the same Pipeline from up to P worker goroutines,
// and the dedup hash set is shared mutable state.
type Pipeline struct {
	Reproject         ReprojectFunc
	MinDist           float64
	DeduplicateChunks bool

	mu         sync.Mutex
	seenHashes map[[32]byte]struct{}
}

// NewPipeline constructs a Pipeline with the given configuration.
func NewPipeline(reproject ReprojectFunc, minDist float64, dedup bool) *Pipeline {
	p := &Pipeline{Reproject: reproject, MinDist: minDist, DeduplicateChunks: dedup}
	if dedup {
		p.seenHashes = make(map[[32]byte]struct{})
	}
	return p
}

// Apply runs c through the configured reprojection and thinning steps,
// in that order, and reports whether c should be dropped entirely
// because deduplicate_chunks is set and an identical chunk was already
// processed.
func (p *Pipeline) Apply(c *Chunk) (out *Chunk, keep bool) {
	if p.DeduplicateChunks {
		h := c.ContentHash()
		p.mu.Lock()
		_, dup := p.seenHashes[h]
		if !dup {
			p.seenHashes[h] = struct{}{}
		}
		p.mu.Unlock()
		if dup {
			return nil, false
		}
	}
	if p.Reproject != nil {
		c.Positions = p.Reproject(c.Positions)
		c.bboxValid = false
	}
	if p.MinDist > 0 {
		c = thin(c, p.MinDist)
	}
	return c, true
}

// thin applies minimum-distance (poisson-like) thinning via grid-bucket
// quantization: positions are bucketed into cells of side minDist, and
// the first sample to land in a bucket is kept, per spec.md §4.6. This
// is deterministic given input order, as required.
func thin(c *Chunk, minDist float64) *Chunk {
	type bucketKey struct{ x, y, z int64 }
	seen := make(map[bucketKey]struct{}, len(c.Positions))

	keepIdx := make([]int, 0, len(c.Positions))
	for i, p := range c.Positions {
		key := bucketKey{
			x: quantize(p[0], minDist),
			y: quantize(p[1], minDist),
			z: quantize(p[2], minDist),
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keepIdx = append(keepIdx, i)
	}
	return project(c, keepIdx)
}

func quantize(v, step float64) int64 {
	q := v / step
	if q >= 0 {
		return int64(q)
	}
	return int64(q) - 1
}

func project(c *Chunk, idx []int) *Chunk {
	out := &Chunk{Positions: make([][3]float64, len(idx))}
	if len(c.Colors) > 0 {
		out.Colors = make([][4]uint8, len(idx))
	}
	if len(c.Normals) > 0 {
		out.Normals = make([][3]float32, len(idx))
	}
	if len(c.Intensities) > 0 {
		out.Intensities = make([]int32, len(idx))
	}
	if len(c.Classifications) > 0 {
		out.Classifications = make([]uint8, len(idx))
	}
	for newI, oldI := range idx {
		out.Positions[newI] = c.Positions[oldI]
		if out.Colors != nil {
			out.Colors[newI] = c.Colors[oldI]
		}
		if out.Normals != nil {
			out.Normals[newI] = c.Normals[oldI]
		}
		if out.Intensities != nil {
			out.Intensities[newI] = c.Intensities[oldI]
		}
		if out.Classifications != nil {
			out.Classifications[newI] = c.Classifications[oldI]
		}
	}
	return out
}
