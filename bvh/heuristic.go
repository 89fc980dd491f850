package bvh

import (
	"github.com/achilleasa/openmerge/parallel"
)

const (
	// Ranges with fewer references than this are processed sequentially.
	ParallelThreshold = 1024

	parallelFindBlockSize      = 512
	parallelPartitionBlockSize = 128
	moveStepSize               = 64
	createSplitsStepSize       = 128

	// Opening is skipped for ranges of up to this many references whose
	// bounds are pairwise disjoint.
	disjointCheckSize = 4
)

// OpeningPolicy selects how node references are opened.
type OpeningPolicy uint8

const (
	// Open every over-extended node once per Find call.
	OpenSinglePass OpeningPolicy = iota

	// Keep opening with a decreasing extent threshold until nothing
	// qualifies or the spare window cannot fit the next pass.
	OpenIterative
)

// String implements fmt.Stringer.
func (p OpeningPolicy) String() string {
	switch p {
	case OpenIterative:
		return "iterative"
	default:
		return "single-pass"
	}
}

// Heuristic implements SAH binning with node opening over a shared build
// array. It holds no per-range state; ranges are passed by value and the
// heuristic only touches the array slots they own.
type Heuristic struct {
	prims   []PrimRef
	opener  NodeOpener
	policy  OpeningPolicy
	metrics *Metrics
}

// Create a heuristic operating on prims. The opener may be nil if no range
// will ever carry spare capacity.
func NewHeuristic(prims []PrimRef, opener NodeOpener, opts Options) *Heuristic {
	return &Heuristic{
		prims:   prims,
		opener:  opener,
		policy:  opts.Policy,
		metrics: opts.Metrics,
	}
}

// Find opens qualifying node references of r (growing r.End into its spare
// window) and returns the best SAH object split for the result. An invalid
// split is returned when r holds a single reference or no bin boundary
// separates the references.
func (h *Heuristic) Find(r *ExtRange, logBlockSize uint) Split {
	if r.Size() <= 1 {
		return InvalidSplit()
	}

	if r.HasExt() && r.Size() <= disjointCheckSize && h.disjoint(r.Range) {
		h.metrics.skipOpening(skipDisjoint)
		r.DisableExt()
	}

	estimate := 0
	if r.HasExt() {
		var commonGeomID bool
		estimate, commonGeomID = h.openingEstimate(r.Range)
		if commonGeomID {
			h.metrics.skipOpening(skipCommonGeom)
			r.DisableExt()
		}
	}

	if r.HasExt() {
		begin := r.End
		switch h.policy {
		case OpenIterative:
			h.openNodesIterative(r, estimate)
		default:
			if estimate > r.ExtSize() {
				h.metrics.skipOpening(skipBudget)
			} else if estimate > 0 {
				r.End += h.openNodes(r)
			}
		}
		h.metrics.addExtraElements(r.End - begin)

		// A single spare slot is not worth propagating.
		if r.ExtSize() <= 1 {
			r.DisableExt()
		}
	}

	return h.objectFind(r.Range, logBlockSize)
}

func (h *Heuristic) objectFind(r Range, logBlockSize uint) Split {
	mapping := NewBinMapping(r.CentBounds)

	var binner Binner
	if r.Size() < ParallelThreshold {
		binner = NewBinner()
		binner.Bin(h.prims[r.Begin:r.End], mapping)
	} else {
		binner = parallel.Reduce(r.Begin, r.End, parallelFindBlockSize, ParallelThreshold, NewBinner(),
			func(b, e int) Binner {
				partial := NewBinner()
				partial.Bin(h.prims[b:e], mapping)
				return partial
			},
			func(a, b Binner) Binner {
				a.Merge(&b, mapping.Size())
				return a
			},
		)
	}

	return binner.Best(mapping, logBlockSize)
}

// Returns true if the bounds of all references in r are pairwise disjoint.
func (h *Heuristic) disjoint(r Range) bool {
	for i := r.Begin; i < r.End; i++ {
		for j := i + 1; j < r.End; j++ {
			if h.prims[i].Bounds.Overlaps(h.prims[j].Bounds) {
				return false
			}
		}
	}
	return true
}
