package bvh

import "github.com/achilleasa/openmerge/types"

// PrimInfo accumulates the bounds of a set of references.
type PrimInfo struct {
	GeomBounds types.BBox
	CentBounds types.BBox

	// Number of array slots added.
	Count int

	// Sum of PrimRef.Weight over added references.
	Weight int
}

// Create an info with empty bounds.
func EmptyPrimInfo() PrimInfo {
	return PrimInfo{
		GeomBounds: types.EmptyBBox(),
		CentBounds: types.EmptyBBox(),
	}
}

// Add a reference.
func (pi *PrimInfo) Add(ref PrimRef) {
	pi.GeomBounds = pi.GeomBounds.Extend(ref.Bounds)
	pi.CentBounds = pi.CentBounds.ExtendPoint(ref.Center())
	pi.Count++
	pi.Weight += ref.Weight()
}

// Merge another info into this one.
func (pi *PrimInfo) Merge(o PrimInfo) {
	pi.GeomBounds = pi.GeomBounds.Extend(o.GeomBounds)
	pi.CentBounds = pi.CentBounds.Extend(o.CentBounds)
	pi.Count += o.Count
	pi.Weight += o.Weight
}

// Range describes the slice [Begin, End) of the shared build array and the
// bounds of exactly the references it contains.
type Range struct {
	Begin, End int

	GeomBounds types.BBox
	CentBounds types.BBox
}

// Number of references in the range.
func (r Range) Size() int {
	return r.End - r.Begin
}

// Grow the range bounds to cover a reference with the given bounds.
func (r *Range) Extend(b types.BBox) {
	r.GeomBounds = r.GeomBounds.Extend(b)
	r.CentBounds = r.CentBounds.ExtendPoint(b.Center())
}

// ExtRange is a Range followed by the spare slots [End, ExtEnd) that it
// owns but has not populated yet.
type ExtRange struct {
	Range

	ExtEnd int
}

// Create an extended range from a partition result.
func NewExtRange(begin, end, extEnd int, info PrimInfo) ExtRange {
	return ExtRange{
		Range: Range{
			Begin:      begin,
			End:        end,
			GeomBounds: info.GeomBounds,
			CentBounds: info.CentBounds,
		},
		ExtEnd: extEnd,
	}
}

// Number of spare slots.
func (r ExtRange) ExtSize() int {
	return r.ExtEnd - r.End
}

// Returns true if the range owns at least one spare slot.
func (r ExtRange) HasExt() bool {
	return r.ExtEnd > r.End
}

// Set the end of the spare window.
func (r *ExtRange) SetExt(extEnd int) {
	invariant(extEnd >= r.End, "spare window end %d precedes range end %d", extEnd, r.End)
	r.ExtEnd = extEnd
}

// Collapse the spare window; no opening happens for this range afterwards.
func (r *ExtRange) DisableExt() {
	r.ExtEnd = r.End
}

// Shift the whole window, spare slots included, n slots to the right.
func (r *ExtRange) MoveRight(n int) {
	r.Begin += n
	r.End += n
	r.ExtEnd += n
}
