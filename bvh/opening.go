package bvh

import (
	"sync/atomic"

	"github.com/achilleasa/openmerge/parallel"
)

const (
	// A node reference is opened when its extent along the dominant axis
	// of the range exceeds this fraction of the range extent.
	MaxExtentThreshold float32 = 0.1

	// Threshold multiplier applied after each pass of iterative opening.
	iterativeThresholdDecay float32 = 0.5

	// Upper bound on the number of iterative opening passes.
	maxOpeningPasses = 16
)

// extentTest holds the dominant axis of a range and the inverse of its
// extent along that axis.
type extentTest struct {
	dim       int
	invExtent float32
}

func newExtentTest(r Range) (extentTest, bool) {
	diag := r.GeomBounds.Size()
	dim := diag.MaxDim()
	if diag[dim] <= 0 {
		return extentTest{}, false
	}
	return extentTest{dim: dim, invExtent: 1.0 / diag[dim]}, true
}

func (t extentTest) qualifies(ref PrimRef, threshold float32) bool {
	return !ref.IsLeaf() && ref.Bounds.Size()[t.dim]*t.invExtent > threshold
}

type openingEstimate struct {
	newElements  int
	commonGeomID bool
}

// openingEstimate returns the number of spare slots a single opening pass
// would need and whether all references share one geometry id.
func (h *Heuristic) openingEstimate(r Range) (int, bool) {
	test, ok := newExtentTest(r)
	est := h.estimate(r, test, ok, MaxExtentThreshold)
	return est.newElements, est.commonGeomID
}

func (h *Heuristic) estimate(r Range, test extentTest, ok bool, threshold float32) openingEstimate {
	geomID := h.prims[r.Begin].GeomID
	return parallel.Reduce(r.Begin, r.End, parallelFindBlockSize, ParallelThreshold,
		openingEstimate{commonGeomID: true},
		func(b, e int) openingEstimate {
			out := openingEstimate{commonGeomID: true}
			for i := b; i < e; i++ {
				ref := h.prims[i]
				out.commonGeomID = out.commonGeomID && ref.GeomID == geomID
				if ok && test.qualifies(ref, threshold) {
					out.newElements += int(ref.NumChildren) - 1
				}
			}
			return out
		},
		func(a, b openingEstimate) openingEstimate {
			return openingEstimate{
				newElements:  a.newElements + b.newElements,
				commonGeomID: a.commonGeomID && b.commonGeomID,
			}
		},
	)
}

// expand invokes the node opener and validates its result.
func (h *Heuristic) expand(ref PrimRef, out *[MaxOpenedChildNodes]PrimRef) int {
	invariant(h.opener != nil, "node reference %d of geometry %d needs opening but no opener was supplied", ref.ID, ref.GeomID)
	n := h.opener(ref, out)
	invariant(n >= 1 && n <= MaxOpenedChildNodes, "node opener returned %d children for node %d of geometry %d", n, ref.ID, ref.GeomID)
	return n
}

// openNodes opens every qualifying node reference in r once. The first
// child replaces the node in place; the others are written to the spare
// window starting at r.End. The bounds of r are extended to cover all
// children. It returns the number of spare slots used; r.End is left
// untouched.
func (h *Heuristic) openNodes(r *ExtRange) int {
	test, ok := newExtentTest(r.Range)
	if !ok {
		return 0
	}

	if r.Size() < ParallelThreshold {
		return h.openNodesSerial(r, test)
	}
	return h.openNodesParallel(r, test)
}

func (h *Heuristic) openNodesSerial(r *ExtRange, test extentTest) int {
	extStart, width := r.End, r.ExtSize()

	var tmp [MaxOpenedChildNodes]PrimRef
	extra := 0
	for i := r.Begin; i < r.End; i++ {
		if !test.qualifies(h.prims[i], MaxExtentThreshold) {
			continue
		}

		n := h.expand(h.prims[i], &tmp)
		invariant(extra+n-1 <= width, "opening needs %d spare slots; window holds %d", extra+n-1, width)
		for j := 0; j < n; j++ {
			r.Extend(tmp[j].Bounds)
		}
		h.prims[i] = tmp[0]
		copy(h.prims[extStart+extra:], tmp[1:n])
		extra += n - 1
		h.metrics.openedNode()
	}
	return extra
}

// openNodesParallel is the concurrent version of openNodesSerial. Children
// are appended to the spare window in no particular order.
func (h *Heuristic) openNodesParallel(r *ExtRange, test extentTest) int {
	extStart, width := r.End, r.ExtSize()

	// Spare slots are handed out by a single counter so that concurrent
	// workers write to disjoint positions.
	var reserved atomic.Int64
	info := parallel.Reduce(r.Begin, r.End, createSplitsStepSize, 0, EmptyPrimInfo(),
		func(b, e int) PrimInfo {
			var tmp [MaxOpenedChildNodes]PrimRef
			info := EmptyPrimInfo()
			for i := b; i < e; i++ {
				if !test.qualifies(h.prims[i], MaxExtentThreshold) {
					continue
				}

				n := h.expand(h.prims[i], &tmp)
				id := int(reserved.Add(int64(n-1))) - (n - 1)
				invariant(id+n-1 <= width, "opening needs %d spare slots; window holds %d", id+n-1, width)
				for j := 0; j < n; j++ {
					info.Add(tmp[j])
				}
				h.prims[i] = tmp[0]
				copy(h.prims[extStart+id:], tmp[1:n])
				h.metrics.openedNode()
			}
			return info
		},
		func(a, b PrimInfo) PrimInfo {
			a.Merge(b)
			return a
		},
	)

	r.GeomBounds = r.GeomBounds.Extend(info.GeomBounds)
	r.CentBounds = r.CentBounds.Extend(info.CentBounds)
	used := int(reserved.Load())
	invariant(used <= width, "opening used %d spare slots; window holds %d", used, width)
	return used
}

// openNodesIterative repeats opening passes over r, halving the extent
// threshold after each one. Children appended by a pass are visited by the
// next. A pass only starts if its estimated demand fits the remaining spare
// window; a node whose children do not fit ends the process. r.End is
// advanced after every pass.
func (h *Heuristic) openNodesIterative(r *ExtRange, estimate int) {
	test, ok := newExtentTest(r.Range)
	if !ok {
		return
	}

	var tmp [MaxOpenedChildNodes]PrimRef
	threshold := MaxExtentThreshold
	next := estimate
	for pass := 0; pass < maxOpeningPasses && next > 0; pass++ {
		if next > r.ExtSize() {
			if pass == 0 {
				h.metrics.skipOpening(skipBudget)
			}
			return
		}

		extStart, width := r.End, r.ExtSize()
		extra := 0
		for i := r.Begin; i < r.End; i++ {
			if !test.qualifies(h.prims[i], threshold) {
				continue
			}

			n := h.expand(h.prims[i], &tmp)
			if extra+n-1 > width {
				r.End += extra
				return
			}
			for j := 0; j < n; j++ {
				r.Extend(tmp[j].Bounds)
			}
			h.prims[i] = tmp[0]
			copy(h.prims[extStart+extra:], tmp[1:n])
			extra += n - 1
			h.metrics.openedNode()
		}
		r.End += extra

		threshold *= iterativeThresholdDecay
		next = h.estimate(r.Range, test, true, threshold).newElements
	}
}
