package bvh

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/achilleasa/openmerge/types"
	"github.com/stretchr/testify/require"
)

func TestLeafCallback(t *testing.T) {
	type primSpec struct {
		min types.Vec3
		max types.Vec3
	}

	primSpecs := []primSpec{
		{types.Vec3{-2, 0, -2}, types.Vec3{-1, 1, -1}},
		{types.Vec3{1, 0, -2}, types.Vec3{2, 1, -1}},
		{types.Vec3{-2, 0, 1}, types.Vec3{-1, 1, 2}},
		{types.Vec3{1, 0, 1}, types.Vec3{2, 1, 2}},
	}

	newRefs := func() []PrimRef {
		refs := make([]PrimRef, len(primSpecs))
		for idx, ps := range primSpecs {
			refs[idx] = LeafPrim(0, uint32(idx), types.BBox{Min: ps.min, Max: ps.max})
		}
		return refs
	}

	var cbCount = 0
	var expItemListCount = 0
	opts := DefaultOptions()
	opts.LeafCallback = func(leaf *Node, refs []PrimRef) {
		cbCount++
		if len(refs) != expItemListCount {
			t.Fatalf("expected leaf callback to be called with %d items; got %d", expItemListCount, len(refs))
		}
	}

	// Partition each item in a single leaf
	cbCount = 0
	expItemListCount = 1
	opts.MinLeafItems = 1
	tree := Build(newRefs(), len(primSpecs), nil, opts)

	require.Equal(t, 4, cbCount)
	require.Len(t, tree.Nodes, 7)

	// Partition two items in a single leaf
	cbCount = 0
	expItemListCount = 2
	opts.MinLeafItems = 2
	tree = Build(newRefs(), len(primSpecs), nil, opts)

	require.Equal(t, 2, cbCount)
	require.Len(t, tree.Nodes, 3)
	require.Equal(t, 2, tree.Stats.Leafs)
	require.Equal(t, 1, tree.Stats.Nodes)
}

func TestBuildEmpty(t *testing.T) {
	tree := Build(nil, 0, nil, DefaultOptions())
	require.Empty(t, tree.Nodes)
}

// collectLeafRefs walks the tree from the root and returns the references
// of every leaf together with the number of visited nodes.
func collectLeafRefs(t *testing.T, tree *Tree) ([]PrimRef, int) {
	var refs []PrimRef
	visited := 0
	var visit func(idx int32, parent types.BBox)
	visit = func(idx int32, parent types.BBox) {
		visited++
		node := tree.Nodes[idx]
		require.True(t, parent.Contains(node.Bounds), "child bounds must be enclosed by the parent")
		if node.IsLeaf() {
			leafRefs := tree.LeafRefs(node)
			require.Equal(t, scanInfo(leafRefs).GeomBounds, node.Bounds)
			refs = append(refs, leafRefs...)
			return
		}
		visit(node.Left, node.Bounds)
		visit(node.Right, node.Bounds)
	}
	visit(0, tree.Nodes[0].Bounds)
	return refs, visited
}

func TestBuildWithOpening(t *testing.T) {
	for _, policy := range []OpeningPolicy{OpenSinglePass, OpenIterative} {
		t.Run(policy.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(11))
			refs := randomRefs(rng, 3000)
			numSpare := openingDemand(refs)

			prims := make([]PrimRef, len(refs)+numSpare)
			copy(prims, refs)

			opts := DefaultOptions()
			opts.Policy = policy
			opts.Validate = true
			tree := Build(prims, len(refs), slabOpener, opts)

			leafRefs, visited := collectLeafRefs(t, tree)
			require.Equal(t, len(tree.Nodes), visited, "every node must be reachable from the root")
			require.Equal(t, tree.Stats.Nodes+tree.Stats.Leafs, len(tree.Nodes))
			require.Equal(t, len(refs)+tree.Stats.ExtraElements, len(leafRefs))
			require.Equal(t, tree.Stats.PartitionedItems, len(leafRefs))
			require.Positive(t, tree.Stats.ExtraElements)

			// Every primitive is reachable exactly once.
			require.Equal(t, sortedRefs(expandAll(refs, slabOpener)), sortedRefs(expandAll(leafRefs, slabOpener)))
		})
	}
}

func TestBuildMaxDepth(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	refs := randomRefs(rng, 500)
	for i := range refs {
		refs[i].Kind = LeafRef
	}

	opts := DefaultOptions()
	opts.MinLeafItems = 1
	opts.MaxDepth = 3
	tree := Build(refs, len(refs), nil, opts)

	require.LessOrEqual(t, tree.Stats.MaxDepth, 3)
	require.LessOrEqual(t, tree.Stats.Leafs, 8)
	require.Equal(t, len(refs), tree.Stats.PartitionedItems)
}

func TestLeafCallbackConcurrentUse(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	refs := randomRefs(rng, 4*ParallelThreshold)
	for i := range refs {
		refs[i].Kind = LeafRef
	}

	var (
		mu     sync.Mutex
		leafs  int
		leafed int
	)
	opts := DefaultOptions()
	opts.LeafCallback = func(leaf *Node, leafRefs []PrimRef) {
		mu.Lock()
		defer mu.Unlock()
		leafs++
		leafed += len(leafRefs)
	}
	tree := Build(refs, len(refs), nil, opts)

	require.Equal(t, tree.Stats.Leafs, leafs)
	require.Equal(t, len(refs), leafed)
}
