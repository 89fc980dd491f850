package bvh

import (
	"math"

	"github.com/achilleasa/openmerge/types"
)

const (
	// The number of bins per axis used by object binning.
	ObjectBins = 32

	// Centroid extents at or below this value are treated as degenerate and
	// produce no split candidates.
	minBinExtent float32 = 1e-34
)

// BinMapping maps reference centroids to bin indices along each axis.
type BinMapping struct {
	num   int
	ofs   types.Vec3
	scale types.Vec3
}

// Create a mapping dividing the given centroid bounds into ObjectBins bins
// per axis.
func NewBinMapping(centBounds types.BBox) BinMapping {
	m := BinMapping{
		num: ObjectBins,
		ofs: centBounds.Min,
	}

	diag := centBounds.Size()
	for axis := 0; axis < 3; axis++ {
		if diag[axis] > minBinExtent {
			m.scale[axis] = 0.99 * float32(m.num) / diag[axis]
		}
	}
	return m
}

// Number of bins per axis.
func (m BinMapping) Size() int {
	return m.num
}

// Returns true if no split candidates exist along axis.
func (m BinMapping) Degenerate(axis int) bool {
	return m.scale[axis] == 0
}

// Get the bin index of point p along each axis.
func (m BinMapping) Bin(p types.Vec3) [3]int {
	var out [3]int
	for axis := 0; axis < 3; axis++ {
		i := int((p[axis] - m.ofs[axis]) * m.scale[axis])
		out[axis] = min(max(i, 0), m.num-1)
	}
	return out
}

// Split describes a partition of a range along Dim at bin boundary Pos:
// references whose centroid bin is < Pos go left.
type Split struct {
	Dim     int
	Pos     int
	Cost    float32
	Mapping BinMapping
}

// Create a split that does not describe any partition.
func InvalidSplit() Split {
	return Split{
		Dim:  -1,
		Cost: float32(math.Inf(1)),
	}
}

// Returns true if the split can be used for partitioning.
func (s Split) Valid() bool {
	return s.Dim >= 0
}

// Returns true if ref belongs to the left side of the split.
func (s Split) IsLeft(ref PrimRef) bool {
	return s.Mapping.Bin(ref.Center())[s.Dim] < s.Pos
}

// Binner is a per-axis histogram of reference counts and bounds.
type Binner struct {
	bounds [ObjectBins][3]types.BBox
	counts [ObjectBins][3]int
}

// Create a binner with empty bins.
func NewBinner() Binner {
	var b Binner
	for i := range b.bounds {
		for axis := 0; axis < 3; axis++ {
			b.bounds[i][axis] = types.EmptyBBox()
		}
	}
	return b
}

// Add refs to the histogram.
func (b *Binner) Bin(refs []PrimRef, m BinMapping) {
	for _, ref := range refs {
		bin := m.Bin(ref.Center())
		for axis := 0; axis < 3; axis++ {
			b.counts[bin[axis]][axis]++
			b.bounds[bin[axis]][axis] = b.bounds[bin[axis]][axis].Extend(ref.Bounds)
		}
	}
}

// Merge the first numBins bins of another histogram into this one. Merging
// is exact so the merge order never changes the result.
func (b *Binner) Merge(o *Binner, numBins int) {
	for i := 0; i < numBins; i++ {
		for axis := 0; axis < 3; axis++ {
			b.counts[i][axis] += o.counts[i][axis]
			b.bounds[i][axis] = b.bounds[i][axis].Extend(o.bounds[i][axis])
		}
	}
}

// Count returns the number of references in a bin.
func (b *Binner) Count(bin, axis int) int {
	return b.counts[bin][axis]
}

// Best evaluates the SAH cost of every bin boundary on every axis and
// returns the cheapest one. References are costed in blocks of
// 1<<logBlockSize. Boundaries leaving one side empty are not candidates; if
// no candidate exists the invalid split is returned.
func (b *Binner) Best(m BinMapping, logBlockSize uint) Split {
	best := InvalidSplit()

	var (
		rightArea  [ObjectBins]float32
		rightCount [ObjectBins]int
	)
	for axis := 0; axis < 3; axis++ {
		if m.Degenerate(axis) {
			continue
		}

		bounds := types.EmptyBBox()
		count := 0
		for i := m.num - 1; i > 0; i-- {
			count += b.counts[i][axis]
			bounds = bounds.Extend(b.bounds[i][axis])
			rightCount[i] = count
			rightArea[i] = bounds.HalfArea()
		}

		bounds = types.EmptyBBox()
		count = 0
		for i := 1; i < m.num; i++ {
			count += b.counts[i-1][axis]
			bounds = bounds.Extend(b.bounds[i-1][axis])
			if count == 0 || rightCount[i] == 0 {
				continue
			}

			cost := bounds.HalfArea()*float32(blocks(count, logBlockSize)) +
				rightArea[i]*float32(blocks(rightCount[i], logBlockSize))
			if cost < best.Cost {
				best = Split{Dim: axis, Pos: i, Cost: cost, Mapping: m}
			}
		}
	}

	return best
}

func blocks(n int, logBlockSize uint) int {
	return (n + (1 << logBlockSize) - 1) >> logBlockSize
}
