package bvh

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/achilleasa/openmerge/types"
	"github.com/stretchr/testify/require"
)

func box(minX, minY, minZ, maxX, maxY, maxZ float32) types.BBox {
	return types.BBox{Min: types.XYZ(minX, minY, minZ), Max: types.XYZ(maxX, maxY, maxZ)}
}

func unitBox(x, y, z float32) types.BBox {
	return box(x, y, z, x+1, y+1, z+1)
}

// rangeOf returns an extended range over prims[begin:end) with spare
// slots up to extEnd.
func rangeOf(prims []PrimRef, begin, end, extEnd int) ExtRange {
	info := EmptyPrimInfo()
	for _, ref := range prims[begin:end] {
		info.Add(ref)
	}
	return NewExtRange(begin, end, extEnd, info)
}

func scanInfo(refs []PrimRef) PrimInfo {
	info := EmptyPrimInfo()
	for _, ref := range refs {
		info.Add(ref)
	}
	return info
}

// slabOpener splits a node's bounds into NumChildren equal slabs along its
// longest axis. Slabs of nodes covering more primitives than children
// become binary nodes; the others become leafs. Child ids follow a heap
// numbering with branching factor MaxOpenedChildNodes so they are unique
// per geometry.
func slabOpener(ref PrimRef, out *[MaxOpenedChildNodes]PrimRef) int {
	n := int(ref.NumChildren)
	size := ref.Bounds.Size()
	dim := size.MaxDim()
	step := size[dim] / float32(n)
	childPrims := ref.NumPrims / uint32(n)

	for i := 0; i < n; i++ {
		b := ref.Bounds
		b.Min[dim] = ref.Bounds.Min[dim] + float32(i)*step
		b.Max[dim] = b.Min[dim] + step
		if i == n-1 {
			b.Max[dim] = ref.Bounds.Max[dim]
		}

		id := ref.ID*MaxOpenedChildNodes + uint32(i) + 1
		if childPrims > 1 {
			out[i] = NodePrim(ref.GeomID, id, 2, childPrims, b)
		} else {
			out[i] = LeafPrim(ref.GeomID, id, b)
		}
	}
	return n
}

// expandAll recursively opens every node reference in refs with opener.
func expandAll(refs []PrimRef, opener NodeOpener) []PrimRef {
	var out []PrimRef
	var tmp [MaxOpenedChildNodes]PrimRef
	var visit func(ref PrimRef)
	visit = func(ref PrimRef) {
		if ref.IsLeaf() {
			out = append(out, ref)
			return
		}
		n := opener(ref, &tmp)
		children := slices.Clone(tmp[:n])
		for _, child := range children {
			visit(child)
		}
	}
	for _, ref := range refs {
		visit(ref)
	}
	return out
}

// randomRefs generates n references with mixed leafs and slab nodes.
func randomRefs(rng *rand.Rand, n int) []PrimRef {
	refs := make([]PrimRef, n)
	for i := range refs {
		x, y, z := rng.Float32()*100, rng.Float32()*100, rng.Float32()*100
		geomID := uint32(rng.Intn(4))
		if rng.Intn(10) < 3 {
			sx, sy, sz := 1+rng.Float32()*30, 1+rng.Float32()*30, 1+rng.Float32()*30
			numChildren := []int{2, 4, 8}[rng.Intn(3)]
			numPrims := uint32(numChildren) << uint(rng.Intn(3))
			refs[i] = NodePrim(geomID, uint32(i), numChildren, numPrims, box(x, y, z, x+sx, y+sy, z+sz))
			continue
		}
		s := 0.1 + rng.Float32()*2
		refs[i] = LeafPrim(geomID, uint32(i), box(x, y, z, x+s, y+s, z+s))
	}
	return refs
}

func openingDemand(refs []PrimRef) int {
	total := 0
	for _, ref := range refs {
		if !ref.IsLeaf() {
			total += int(ref.NumChildren) - 1
		}
	}
	return total
}

func sortedRefs(refs []PrimRef) []PrimRef {
	out := slices.Clone(refs)
	slices.SortFunc(out, ComparePrimRefs)
	return out
}

func requireInvariantPanic(t *testing.T, fn func()) {
	t.Helper()

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected an invariant violation panic")
		err, ok := r.(error)
		require.True(t, ok, "expected panic value to be an error; got %v", r)
		require.True(t, errors.Is(err, ErrInvariant), "expected %v to wrap ErrInvariant", err)
	}()
	fn()
}
