package scene

import (
	"errors"
	"math"
	"math/rand"

	"github.com/achilleasa/openmerge/bvh"
	"github.com/achilleasa/openmerge/log"
	"github.com/achilleasa/openmerge/types"
)

var (
	ErrNoMeshes       = errors.New("scene: mesh count must be positive")
	ErrNoBoxes        = errors.New("scene: boxes per mesh must be positive")
	ErrInvalidExtents = errors.New("scene: spread, mesh radius and box size must be positive")
	ErrNotBuilt       = errors.New("scene: mesh BVHs have not been built")
)

// Config describes a synthetic scene made of meshes; each mesh is a
// cluster of boxes around a random center.
type Config struct {
	Meshes       int
	BoxesPerMesh int

	// Side of the cube that contains all mesh centers.
	Spread float32

	// Half side of the cube around a mesh center that contains its boxes.
	MeshRadius float32

	// Maximum box side.
	BoxSize float32

	Seed int64
}

// Get the default scene config.
func DefaultConfig() Config {
	return Config{
		Meshes:       64,
		BoxesPerMesh: 256,
		Spread:       100,
		MeshRadius:   10,
		BoxSize:      1,
		Seed:         1,
	}
}

// Check the config for errors.
func (c Config) Validate() error {
	switch {
	case c.Meshes <= 0:
		return ErrNoMeshes
	case c.BoxesPerMesh <= 0:
		return ErrNoBoxes
	case c.Spread <= 0 || c.MeshRadius <= 0 || c.BoxSize <= 0:
		return ErrInvalidExtents
	}
	return nil
}

// Mesh is a set of boxes sharing one geometry id, plus the BVH built over
// them.
type Mesh struct {
	GeomID uint32
	Boxes  []types.BBox

	Tree *bvh.Tree

	// Number of primitives below each tree node.
	primCounts []uint32
}

// Scene is the geometry collaborator of the BVH builder. Once its meshes
// are built it is immutable and its OpenNode method may be used as a
// bvh.NodeOpener from any goroutine.
type Scene struct {
	Meshes []*Mesh

	logger log.Logger
}

// Generate a scene.
func Generate(cfg Config) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	uniform := func(lo, hi float32) float32 {
		return lo + rng.Float32()*(hi-lo)
	}

	sc := &Scene{
		Meshes: make([]*Mesh, cfg.Meshes),
		logger: log.New("scene"),
	}
	for m := range sc.Meshes {
		center := types.XYZ(uniform(0, cfg.Spread), uniform(0, cfg.Spread), uniform(0, cfg.Spread))
		mesh := &Mesh{
			GeomID: uint32(m),
			Boxes:  make([]types.BBox, cfg.BoxesPerMesh),
		}
		for i := range mesh.Boxes {
			lo := center.Add(types.XYZ(
				uniform(-cfg.MeshRadius, cfg.MeshRadius),
				uniform(-cfg.MeshRadius, cfg.MeshRadius),
				uniform(-cfg.MeshRadius, cfg.MeshRadius),
			))
			size := types.XYZ(uniform(0, cfg.BoxSize), uniform(0, cfg.BoxSize), uniform(0, cfg.BoxSize))
			mesh.Boxes[i] = types.BBox{Min: lo, Max: lo.Add(size)}
		}
		sc.Meshes[m] = mesh
	}

	sc.logger.Debugf("generated %d meshes with %d boxes each", cfg.Meshes, cfg.BoxesPerMesh)
	return sc, nil
}

// Total number of primitives in the scene.
func (sc *Scene) NumPrims() int {
	total := 0
	for _, m := range sc.Meshes {
		total += len(m.Boxes)
	}
	return total
}

// Get the leaf references of a mesh.
func (m *Mesh) LeafRefs() []bvh.PrimRef {
	refs := make([]bvh.PrimRef, len(m.Boxes))
	for i, box := range m.Boxes {
		refs[i] = bvh.LeafPrim(m.GeomID, uint32(i), box)
	}
	return refs
}

// BuildMeshes builds a BVH for every mesh. Leafs hold at most
// bvh.MaxOpenedChildNodes references so they can be opened later.
func (sc *Scene) BuildMeshes(opts bvh.Options) {
	opts.MinLeafItems = min(max(opts.MinLeafItems, 1), bvh.MaxOpenedChildNodes)
	opts.MaxDepth = math.MaxInt32
	opts.LeafCallback = nil

	for _, m := range sc.Meshes {
		refs := m.LeafRefs()
		m.Tree = bvh.Build(refs, len(refs), nil, opts)
		m.primCounts = countPrims(m.Tree)
	}
}

// Children are always appended after their parent so a reverse scan sees
// them first.
func countPrims(tree *bvh.Tree) []uint32 {
	counts := make([]uint32, len(tree.Nodes))
	for i := len(tree.Nodes) - 1; i >= 0; i-- {
		node := tree.Nodes[i]
		if node.IsLeaf() {
			counts[i] = uint32(node.Count)
			continue
		}
		counts[i] = counts[node.Left] + counts[node.Right]
	}
	return counts
}

// TopLevelRefs returns a build array holding a reference to the root of
// every mesh BVH followed by spareFactor*NumPrims() spare slots, together
// with the number of populated slots.
func (sc *Scene) TopLevelRefs(spareFactor float64) ([]bvh.PrimRef, int, error) {
	numSpare := int(math.Ceil(max(spareFactor, 0) * float64(sc.NumPrims())))
	refs := make([]bvh.PrimRef, len(sc.Meshes), len(sc.Meshes)+numSpare)
	for i, m := range sc.Meshes {
		if m.Tree == nil {
			return nil, 0, ErrNotBuilt
		}
		refs[i] = sc.nodeRef(m, 0)
	}
	return refs[:cap(refs)], len(sc.Meshes), nil
}

// nodeRef creates a reference to node idx of a mesh BVH. Single primitive
// leafs are referenced directly.
func (sc *Scene) nodeRef(m *Mesh, idx int32) bvh.PrimRef {
	node := m.Tree.Nodes[idx]
	if node.IsLeaf() && node.Count == 1 {
		return m.Tree.Prims[node.First]
	}

	numChildren := 2
	if node.IsLeaf() {
		numChildren = int(node.Count)
	}
	return bvh.NodePrim(m.GeomID, uint32(idx), numChildren, m.primCounts[idx], node.Bounds)
}

// OpenNode implements bvh.NodeOpener for references created by
// TopLevelRefs and by previous calls to OpenNode.
func (sc *Scene) OpenNode(ref bvh.PrimRef, out *[bvh.MaxOpenedChildNodes]bvh.PrimRef) int {
	m := sc.Meshes[ref.GeomID]
	node := m.Tree.Nodes[ref.ID]
	if node.IsLeaf() {
		return copy(out[:], m.Tree.LeafRefs(node))
	}

	out[0] = sc.nodeRef(m, node.Left)
	out[1] = sc.nodeRef(m, node.Right)
	return 2
}
