// Package chunk defines the raw sample batch contract (spec.md §3, §6)
// and the pipeline that conditions incoming chunks before they reach the
// builder (C7): optional reprojection, minimum-distance thinning, and
// content-hash deduplication.
package chunk

import (
	"fmt"
	"math"

	"golang.org/x/crypto/sha3"
)

// Chunk is a batch of raw samples presented to the builder. Arrays must
// be equal length (positions define the length; every populated optional
// array must match it), per spec.md §6's input chunk contract.
type Chunk struct {
	Positions       [][3]float64
	Colors          [][4]uint8
	Normals         [][3]float32
	Intensities     []int32
	Classifications []uint8

	bboxMin, bboxMax [3]float64
	bboxValid        bool
}

// Validate checks the input chunk contract: equal-length optional
// arrays, finite positions.
func (c *Chunk) Validate() error {
	n := len(c.Positions)
	if len(c.Colors) != 0 && len(c.Colors) != n {
		return fmt.Errorf("chunk: colors length %d != positions length %d", len(c.Colors), n)
	}
	if len(c.Normals) != 0 && len(c.Normals) != n {
		return fmt.Errorf("chunk: normals length %d != positions length %d", len(c.Normals), n)
	}
	if len(c.Intensities) != 0 && len(c.Intensities) != n {
		return fmt.Errorf("chunk: intensities length %d != positions length %d", len(c.Intensities), n)
	}
	if len(c.Classifications) != 0 && len(c.Classifications) != n {
		return fmt.Errorf("chunk: classifications length %d != positions length %d", len(c.Classifications), n)
	}
	for i, p := range c.Positions {
		for a := 0; a < 3; a++ {
			if math.IsNaN(p[a]) || math.IsInf(p[a], 0) {
				return fmt.Errorf("chunk: non-finite position at index %d: %v", i, p)
			}
		}
	}
	return nil
}

// Len returns the number of points in the chunk.
func (c *Chunk) Len() int { return len(c.Positions) }

// BoundingBox returns the chunk's cached bounding box, computing it on
// first access (spec.md §3 "Chunk ... plus a cached bounding box").
func (c *Chunk) BoundingBox() (min, max [3]float64, empty bool) {
	if len(c.Positions) == 0 {
		return [3]float64{}, [3]float64{}, true
	}
	if c.bboxValid {
		return c.bboxMin, c.bboxMax, false
	}
	min, max = c.Positions[0], c.Positions[0]
	for _, p := range c.Positions[1:] {
		for a := 0; a < 3; a++ {
			if p[a] < min[a] {
				min[a] = p[a]
			}
			if p[a] > max[a] {
				max[a] = p[a]
			}
		}
	}
	c.bboxMin, c.bboxMax, c.bboxValid = min, max, true
	return min, max, false
}

// ContentHash fingerprints the chunk's raw bytes for deduplicate_chunks,
// using the same SHA-3 family the teacher reaches for throughout
// go-ethereum's crypto layer (golang.org/x/crypto/sha3), repurposed here
// for content fingerprinting rather than consensus hashing.
func (c *Chunk) ContentHash() [32]byte {
	h := sha3.New256()
	var buf [8]byte
	for _, p := range c.Positions {
		for _, v := range p {
			putFloat64(buf[:], v)
			h.Write(buf[:])
		}
	}
	for _, col := range c.Colors {
		h.Write(col[:])
	}
	for _, nrm := range c.Normals {
		for _, v := range nrm {
			putFloat32(buf[:4], v)
			h.Write(buf[:4])
		}
	}
	for _, it := range c.Intensities {
		putUint32(buf[:4], uint32(it))
		h.Write(buf[:4])
	}
	h.Write(c.Classifications)
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func putFloat64(b []byte, v float64) { putUint64(b, math.Float64bits(v)) }
func putFloat32(b []byte, v float32) { putUint32(b, math.Float32bits(v)) }

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
