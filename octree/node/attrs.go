package node

// AttributeName identifies one of the fixed, closed set of per-node
// attribute arrays a Node may carry, per spec.md §6.
type AttributeName string

const (
	AttrPositions      AttributeName = "Positions"
	AttrColors         AttributeName = "Colors"
	AttrNormals        AttributeName = "Normals"
	AttrIntensities    AttributeName = "Intensities"
	AttrClassifications AttributeName = "Classifications"
	AttrKdTree         AttributeName = "KdTree"
	AttrLodPositions   AttributeName = "LodPositions"
	AttrLodColors      AttributeName = "LodColors"
	AttrLodNormals     AttributeName = "LodNormals"
	AttrLodIntensities AttributeName = "LodIntensities"
	AttrLodClassifications AttributeName = "LodClassifications"
	AttrLodKdTree      AttributeName = "LodKdTree"
)

// Attributes holds the decoded, in-memory parallel arrays for either a
// node's direct (leaf) data or its LoD sample. Every populated slice must
// have the same length except KdTree, which is a serialized index over
// Positions.
//
// Positions are cell-relative single-precision triples, per spec.md §3;
// absolute position is recovered via Cell.Centre() + Positions[i].
type Attributes struct {
	Positions       [][3]float32
	Colors          [][4]uint8 // RGBA
	Normals         [][3]float32
	Intensities     []int32
	Classifications []uint8
	KdTree          []byte // serialized kdtree.Tree, regenerable from Positions
}

// Len returns the number of points described by a.Positions, or 0 if a
// holds no positions.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Positions)
}

// Empty reports whether a carries no positions at all.
func (a *Attributes) Empty() bool {
	return a == nil || len(a.Positions) == 0
}

// HasColors, HasNormals, HasIntensities, HasClassifications report
// whether the corresponding optional array is populated. Absent arrays
// must surface as null columns in query results (spec.md §4.11), never
// as zero-filled arrays.
func (a *Attributes) HasColors() bool          { return a != nil && len(a.Colors) > 0 }
func (a *Attributes) HasNormals() bool         { return a != nil && len(a.Normals) > 0 }
func (a *Attributes) HasIntensities() bool     { return a != nil && len(a.Intensities) > 0 }
func (a *Attributes) HasClassifications() bool { return a != nil && len(a.Classifications) > 0 }
