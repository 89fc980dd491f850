package bvh

import (
	"cmp"

	"github.com/achilleasa/openmerge/types"
)

// The maximum number of children a NodeOpener may emit for a single node.
const MaxOpenedChildNodes = 8

// RefKind tags the variant stored in a PrimRef.
type RefKind uint8

const (
	// A reference to a single geometric primitive.
	LeafRef RefKind = iota

	// A reference to an already built sub-tree node.
	NodeRef
)

// PrimRef is an entry of the build array. It either references a leaf
// primitive (geometry id + primitive id) or a previously built sub-tree
// node that can be opened into its children.
type PrimRef struct {
	Bounds types.BBox
	GeomID uint32
	Kind   RefKind

	// PrimID for leaf references; node index inside the owning sub-tree
	// for node references.
	ID uint32

	// Node references only.
	NumChildren uint8
	NumPrims    uint32
}

// A NodeOpener writes the children of a node reference into out and returns
// the number of children written (1 to MaxOpenedChildNodes). It must be a
// pure function of ref.
type NodeOpener func(ref PrimRef, out *[MaxOpenedChildNodes]PrimRef) int

// Create a leaf primitive reference.
func LeafPrim(geomID, primID uint32, bounds types.BBox) PrimRef {
	return PrimRef{
		Bounds: bounds,
		GeomID: geomID,
		Kind:   LeafRef,
		ID:     primID,
	}
}

// Create a reference to a built sub-tree node with numChildren children
// covering numPrims primitives.
func NodePrim(geomID, nodeID uint32, numChildren int, numPrims uint32, bounds types.BBox) PrimRef {
	return PrimRef{
		Bounds:      bounds,
		GeomID:      geomID,
		Kind:        NodeRef,
		ID:          nodeID,
		NumChildren: uint8(numChildren),
		NumPrims:    numPrims,
	}
}

// Returns true if this is a leaf primitive reference.
func (r PrimRef) IsLeaf() bool {
	return r.Kind == LeafRef
}

// Get the centroid of the reference bounds.
func (r PrimRef) Center() types.Vec3 {
	return r.Bounds.Center()
}

// Weight is the number of primitives this reference stands for. It drives
// the proportional distribution of spare capacity between split children.
func (r PrimRef) Weight() int {
	if r.Kind == LeafRef {
		return 1
	}
	if r.NumPrims > 0 {
		return int(r.NumPrims)
	}
	return max(1, int(r.NumChildren))
}

// ComparePrimRefs defines a total order over references. It is used to
// restore a reproducible order before the fallback split.
func ComparePrimRefs(a, b PrimRef) int {
	if c := cmp.Compare(a.GeomID, b.GeomID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	for axis := 0; axis < 3; axis++ {
		if c := cmp.Compare(a.Bounds.Min[axis], b.Bounds.Min[axis]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Bounds.Max[axis], b.Bounds.Max[axis]); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.NumChildren, b.NumChildren); c != 0 {
		return c
	}
	return cmp.Compare(a.NumPrims, b.NumPrims)
}
