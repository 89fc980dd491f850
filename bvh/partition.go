package bvh

import (
	"fmt"
	"slices"

	"github.com/achilleasa/openmerge/parallel"
)

// Split partitions r according to s and returns the two child ranges. If s
// is invalid the references are sorted into a canonical order and bisected
// by index. Spare capacity owned by r is shared between the children in
// proportion to their weights and the array is rearranged so that each
// child's spare window directly follows its references.
func (h *Heuristic) Split(s Split, r ExtRange) (left, right ExtRange) {
	if !s.Valid() {
		h.metrics.fallbackSplit()
		h.deterministicOrder(r.Range)
		return h.splitFallback(r)
	}

	var (
		center       int
		lInfo, rInfo PrimInfo
	)
	if r.Size() < ParallelThreshold {
		lInfo, rInfo = EmptyPrimInfo(), EmptyPrimInfo()
		center = parallel.SerialPartition(h.prims, r.Begin, r.End, &lInfo, &rInfo, s.IsLeft, (*PrimInfo).Add)
	} else {
		center, lInfo, rInfo = parallel.Partition(h.prims, r.Begin, r.End, parallelPartitionBlockSize,
			EmptyPrimInfo, s.IsLeft, (*PrimInfo).Add, (*PrimInfo).Merge)
	}

	left = NewExtRange(r.Begin, center, center, lInfo)
	right = NewExtRange(center, r.End, r.End, rInfo)
	if r.HasExt() {
		setExtRanges(r, &left, &right, lInfo.Weight, rInfo.Weight)
		h.moveExtRange(r, left, &right)
	}
	return left, right
}

// splitFallback bisects r by index.
func (h *Heuristic) splitFallback(r ExtRange) (left, right ExtRange) {
	center := (r.Begin + r.End) / 2

	lInfo := h.scan(r.Begin, center)
	rInfo := h.scan(center, r.End)
	left = NewExtRange(r.Begin, center, center, lInfo)
	right = NewExtRange(center, r.End, r.End, rInfo)
	if r.HasExt() {
		setExtRanges(r, &left, &right, lInfo.Weight, rInfo.Weight)
		h.moveExtRange(r, left, &right)
	}
	return left, right
}

// deterministicOrder sorts the references of r. Parallel partitioning does
// not preserve order so this is required for reproducible fallback splits.
func (h *Heuristic) deterministicOrder(r Range) {
	slices.SortFunc(h.prims[r.Begin:r.End], ComparePrimRefs)
}

func (h *Heuristic) scan(begin, end int) PrimInfo {
	info := EmptyPrimInfo()
	for i := begin; i < end; i++ {
		info.Add(h.prims[i])
	}
	return info
}

// setExtRanges distributes the spare window of r between the children in
// proportion to their weights. The left child gets the floor of its share.
func setExtRanges(r ExtRange, left, right *ExtRange, lWeight, rWeight int) {
	spare := r.ExtSize()
	lSpare := 0
	if total := lWeight + rWeight; total > 0 {
		lSpare = min(spare*lWeight/total, spare)
	}
	left.SetExt(left.End + lSpare)
	right.SetExt(right.End + spare - lSpare)
}

// moveExtRange shifts the right child so that the left child's spare window
// sits between the two children. Right after partitioning the whole spare
// window of r still follows the right child.
func (h *Heuristic) moveExtRange(r, left ExtRange, right *ExtRange) {
	shift := left.ExtSize()
	if shift == 0 {
		return
	}

	rightSize := right.Size()
	if shift < rightSize {
		// Only move the first items of the right child past its end.
		parallel.For(right.Begin, right.Begin+shift, moveStepSize, func(b, e int) {
			for i := b; i < e; i++ {
				h.prims[i+rightSize] = h.prims[i]
			}
		})
	} else {
		// Source and destination do not overlap.
		parallel.For(right.Begin, right.End, moveStepSize, func(b, e int) {
			for i := b; i < e; i++ {
				h.prims[i+shift] = h.prims[i]
			}
		})
	}

	invariant(right.ExtEnd+shift == r.ExtEnd, "right child window end %d does not meet parent window end %d", right.ExtEnd+shift, r.ExtEnd)
	right.MoveRight(shift)
}

// CheckSplit verifies that the windows of two children returned by Split
// are disjoint, well formed and jointly cover the window of their parent.
// The parent must be the range as it was passed to Split.
func CheckSplit(parent, left, right ExtRange) error {
	switch {
	case left.Begin != parent.Begin:
		return fmt.Errorf("%w: left child starts at %d; parent starts at %d", ErrInvariant, left.Begin, parent.Begin)
	case left.ExtEnd != right.Begin:
		return fmt.Errorf("%w: left child window ends at %d; right child starts at %d", ErrInvariant, left.ExtEnd, right.Begin)
	case right.ExtEnd != parent.ExtEnd:
		return fmt.Errorf("%w: right child window ends at %d; parent window ends at %d", ErrInvariant, right.ExtEnd, parent.ExtEnd)
	case left.Begin > left.End || left.End > left.ExtEnd:
		return fmt.Errorf("%w: malformed left window [%d, %d, %d)", ErrInvariant, left.Begin, left.End, left.ExtEnd)
	case right.Begin > right.End || right.End > right.ExtEnd:
		return fmt.Errorf("%w: malformed right window [%d, %d, %d)", ErrInvariant, right.Begin, right.End, right.ExtEnd)
	}
	return nil
}
