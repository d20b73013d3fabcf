package node

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/snappy"

	"github.com/pointstream/pcidx/octree/cell"
	"github.com/pointstream/pcidx/store"
	"github.com/pointstream/pcidx/store/ref"
)

// record is the JSON wire form of a Node, per spec.md §6.
type record struct {
	NodeType string            `json:"NodeType"`
	Id       string            `json:"Id"`
	Cell     recordCell        `json:"Cell"`
	BBox     *recordBox        `json:"BoundingBoxExact,omitempty"`
	PointCountTree uint64      `json:"PointCountTree"`
	PointCountNode uint32      `json:"PointCountNode,omitempty"`
	Subnodes []*string         `json:"Subnodes"`
	Attributes map[string]string `json:"Attributes"`

	// LinkedChild/LinkedCell are populated only for NodeType=="LinkedNode".
	LinkedChild *string    `json:"LinkedChild,omitempty"`
	LinkedCell  *recordCell `json:"LinkedCell,omitempty"`
}

type recordCell struct {
	X, Y, Z int64
	E       int32
	Centered bool `json:"Centered,omitempty"`
}

type recordBox struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

func toRecordCell(c cell.Cell) recordCell {
	if c.IsCentered() {
		return recordCell{E: c.E, Centered: true}
	}
	return recordCell{X: c.X, Y: c.Y, Z: c.Z, E: c.E}
}

func fromRecordCell(rc recordCell) cell.Cell {
	if rc.Centered {
		return cell.Centered(rc.E)
	}
	return cell.New(rc.X, rc.Y, rc.Z, rc.E)
}

// blobKey derives the storage key for an attribute array belonging to
// node id. The key is built from the node id and attribute name, not
// from the array's content, so two nodes never share an attribute key
// even when their arrays are byte-identical.
func blobKey(id string, attr AttributeName) string {
	return fmt.Sprintf("attr/%s/%s", id, attr)
}

// nodeKey derives the storage key for the node record blob itself.
func nodeKey(id string) string {
	return "node/" + id
}

// Persist writes n (and, recursively, any not-yet-persisted children) to
// s, post-order: every child blob is written strictly before its parent
// (spec.md §5 ordering guarantee). It returns n.ID.
func Persist(s store.Store, n *Node) (string, error) {
	if n.Type == LinkedNode {
		child, err := n.LinkedChild()
		if err != nil {
			return "", err
		}
		if _, err := Persist(s, child); err != nil {
			return "", err
		}
		return persistLinked(s, n)
	}
	subnodes := make([]*string, 8)
	for i := 0; i < 8; i++ {
		r := n.children[i]
		if r == nil {
			continue
		}
		child, err := r.Value()
		if err != nil {
			return "", err
		}
		if _, err := Persist(s, child); err != nil {
			return "", err
		}
		id := child.ID
		subnodes[i] = &id
	}
	attrKeys, err := persistAttributes(s, n.ID, "", &n.Attrs)
	if err != nil {
		return "", err
	}
	lodKeys, err := persistAttributes(s, n.ID, "Lod", &n.LodAttrs)
	if err != nil {
		return "", err
	}
	for k, v := range lodKeys {
		attrKeys[k] = v
	}
	rec := record{
		NodeType:       n.Type.String(),
		Id:             n.ID,
		Cell:           toRecordCell(n.Cell),
		BBox:           &recordBox{Min: n.BBoxMin, Max: n.BBoxMax},
		PointCountTree: n.PointCountTree,
		PointCountNode: n.PointCountNode,
		Subnodes:       subnodes,
		Attributes:     attrKeys,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("octree/node: marshal %s: %w", n.ID, err)
	}
	if err := s.Put(nodeKey(n.ID), data); err != nil {
		return "", fmt.Errorf("octree/node: put %s: %w", n.ID, err)
	}
	s.CachePut(nodeKey(n.ID), n)
	return n.ID, nil
}

func persistLinked(s store.Store, n *Node) (string, error) {
	childID := n.linkedChild.ID()
	rec := record{
		NodeType:    LinkedNode.String(),
		Id:          n.ID,
		Cell:        toRecordCell(n.Cell),
		LinkedChild: &childID,
		LinkedCell:  ptrRecordCell(toRecordCell(n.linkedCell)),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("octree/node: marshal linked %s: %w", n.ID, err)
	}
	if err := s.Put(nodeKey(n.ID), data); err != nil {
		return "", fmt.Errorf("octree/node: put linked %s: %w", n.ID, err)
	}
	s.CachePut(nodeKey(n.ID), n)
	return n.ID, nil
}

func ptrRecordCell(c recordCell) *recordCell { return &c }

func persistAttributes(s store.Store, id, prefix string, a *Attributes) (map[string]string, error) {
	out := make(map[string]string)
	put := func(name AttributeName, data []byte) error {
		if data == nil {
			return nil
		}
		key := blobKey(id, name)
		if err := s.Put(key, snappy.Encode(nil, data)); err != nil {
			return fmt.Errorf("octree/node: put attribute %s/%s: %w", id, name, err)
		}
		out[string(name)] = key
		return nil
	}
	positionsAttr := AttrPositions
	colorsAttr := AttrColors
	normalsAttr := AttrNormals
	intensitiesAttr := AttrIntensities
	classificationsAttr := AttrClassifications
	kdTreeAttr := AttrKdTree
	if prefix == "Lod" {
		positionsAttr, colorsAttr, normalsAttr = AttrLodPositions, AttrLodColors, AttrLodNormals
		intensitiesAttr, classificationsAttr, kdTreeAttr = AttrLodIntensities, AttrLodClassifications, AttrLodKdTree
	}
	if len(a.Positions) > 0 {
		if err := put(positionsAttr, encodePositions(a.Positions)); err != nil {
			return nil, err
		}
	}
	if len(a.Colors) > 0 {
		if err := put(colorsAttr, encodeColors(a.Colors)); err != nil {
			return nil, err
		}
	}
	if len(a.Normals) > 0 {
		if err := put(normalsAttr, encodePositions(a.Normals)); err != nil {
			return nil, err
		}
	}
	if len(a.Intensities) > 0 {
		if err := put(intensitiesAttr, encodeInt32s(a.Intensities)); err != nil {
			return nil, err
		}
	}
	if len(a.Classifications) > 0 {
		if err := put(classificationsAttr, a.Classifications); err != nil {
			return nil, err
		}
	}
	if len(a.KdTree) > 0 {
		if err := put(kdTreeAttr, a.KdTree); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Load reads and decodes the node stored under id, wiring its children
// (and, for LinkedNode, its forwarding target) as lazy references bound
// to s, never eagerly resolving them (spec.md §4.2).
func Load(s store.Store, id string) (*Node, error) {
	if cached, ok := s.CacheGet(nodeKey(id)); ok {
		if n, ok := cached.(*Node); ok {
			return n, nil
		}
	}
	data, err := s.Get(nodeKey(id))
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("octree/node: unmarshal %s: %w", id, err)
	}
	loader := Loader(s)
	if rec.NodeType == LinkedNode.String() {
		childRef := ref.New(*rec.LinkedChild, loader)
		n := NewLinked(rec.Id, childRef, fromRecordCell(*rec.LinkedCell))
		s.CachePut(nodeKey(id), n)
		return n, nil
	}
	n := NewWithID(rec.Id, fromRecordCell(rec.Cell))
	if rec.BBox != nil {
		n.BBoxMin, n.BBoxMax = rec.BBox.Min, rec.BBox.Max
	}
	n.PointCountTree = rec.PointCountTree
	n.PointCountNode = rec.PointCountNode
	for i, childID := range rec.Subnodes {
		if childID == nil {
			continue
		}
		n.children[i] = ref.New(*childID, loader)
	}
	attrs, err := loadAttributes(s, rec.Attributes, "")
	if err != nil {
		return nil, err
	}
	n.Attrs = *attrs
	lodAttrs, err := loadAttributes(s, rec.Attributes, "Lod")
	if err != nil {
		return nil, err
	}
	n.LodAttrs = *lodAttrs
	s.CachePut(nodeKey(id), n)
	return n, nil
}

func loadAttributes(s store.Store, keys map[string]string, prefix string) (*Attributes, error) {
	a := &Attributes{}
	get := func(name AttributeName) ([]byte, bool, error) {
		key, ok := keys[string(name)]
		if !ok {
			return nil, false, nil
		}
		raw, err := s.Get(key)
		if err != nil {
			return nil, false, err
		}
		data, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, false, fmt.Errorf("octree/node: snappy decode %s: %w", key, err)
		}
		return data, true, nil
	}
	positionsAttr, colorsAttr, normalsAttr := AttrPositions, AttrColors, AttrNormals
	intensitiesAttr, classificationsAttr, kdTreeAttr := AttrIntensities, AttrClassifications, AttrKdTree
	if prefix == "Lod" {
		positionsAttr, colorsAttr, normalsAttr = AttrLodPositions, AttrLodColors, AttrLodNormals
		intensitiesAttr, classificationsAttr, kdTreeAttr = AttrLodIntensities, AttrLodClassifications, AttrLodKdTree
	}
	if data, ok, err := get(positionsAttr); err != nil {
		return nil, err
	} else if ok {
		a.Positions = decodePositions(data)
	}
	if data, ok, err := get(colorsAttr); err != nil {
		return nil, err
	} else if ok {
		a.Colors = decodeColors(data)
	}
	if data, ok, err := get(normalsAttr); err != nil {
		return nil, err
	} else if ok {
		a.Normals = decodePositions(data)
	}
	if data, ok, err := get(intensitiesAttr); err != nil {
		return nil, err
	} else if ok {
		a.Intensities = decodeInt32s(data)
	}
	if data, ok, err := get(classificationsAttr); err != nil {
		return nil, err
	} else if ok {
		a.Classifications = data
	}
	if data, ok, err := get(kdTreeAttr); err != nil {
		return nil, err
	} else if ok {
		a.KdTree = data
	}
	return a, nil
}

// --- attribute array binary codec: length-prefixed little-endian records,
// per spec.md §6. ---

func encodePositions(p [][3]float32) []byte {
	buf := make([]byte, 4+len(p)*12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p)))
	off := 4
	for _, v := range p {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(v[1]))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], math.Float32bits(v[2]))
		off += 12
	}
	return buf
}

func decodePositions(data []byte) [][3]float32 {
	if len(data) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	out := make([][3]float32, n)
	off := 4
	for i := range out {
		out[i][0] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		out[i][1] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		out[i][2] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+8 : off+12]))
		off += 12
	}
	return out
}

func encodeColors(c [][4]uint8) []byte {
	buf := make([]byte, 4+len(c)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(c)))
	off := 4
	for _, v := range c {
		copy(buf[off:off+4], v[:])
		off += 4
	}
	return buf
}

func decodeColors(data []byte) [][4]uint8 {
	if len(data) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	out := make([][4]uint8, n)
	off := 4
	for i := range out {
		copy(out[i][:], data[off:off+4])
		off += 4
	}
	return out
}

func encodeInt32s(v []int32) []byte {
	buf := make([]byte, 4+len(v)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	off := 4
	for _, x := range v {
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(x))
		off += 4
	}
	return buf
}

func decodeInt32s(data []byte) []int32 {
	if len(data) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	out := make([]int32, n)
	off := 4
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	return out
}
