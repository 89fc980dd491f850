package types

import "math"

// BBox is an axis aligned bounding box. The zero value is a degenerate box
// at the origin; use EmptyBBox to get a box that can be grown with Extend.
type BBox struct {
	Min Vec3
	Max Vec3
}

// Create an empty (inverted) bounding box.
func EmptyBBox() BBox {
	return BBox{
		Min: Splat(math.MaxFloat32),
		Max: Splat(-math.MaxFloat32),
	}
}

// Create a bounding box containing a single point.
func PointBBox(p Vec3) BBox {
	return BBox{Min: p, Max: p}
}

// Returns true if the box does not contain any point.
func (b BBox) Empty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Grow box to include another box.
func (b BBox) Extend(o BBox) BBox {
	return BBox{Min: MinVec3(b.Min, o.Min), Max: MaxVec3(b.Max, o.Max)}
}

// Grow box to include a point.
func (b BBox) ExtendPoint(p Vec3) BBox {
	return BBox{Min: MinVec3(b.Min, p), Max: MaxVec3(b.Max, p)}
}

// Get box side lengths. Empty boxes report a zero size.
func (b BBox) Size() Vec3 {
	if b.Empty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Get box center.
func (b BBox) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Half of the surface area; the SAH only needs relative areas.
func (b BBox) HalfArea() float32 {
	s := b.Size()
	return s[0]*s[1] + s[1]*s[2] + s[0]*s[2]
}

// Returns true if the two boxes share at least one point.
func (b BBox) Overlaps(o BBox) bool {
	return b.Min[0] <= o.Max[0] && o.Min[0] <= b.Max[0] &&
		b.Min[1] <= o.Max[1] && o.Min[1] <= b.Max[1] &&
		b.Min[2] <= o.Max[2] && o.Min[2] <= b.Max[2]
}

// Returns true if o lies entirely inside b.
func (b BBox) Contains(o BBox) bool {
	if o.Empty() {
		return true
	}
	return b.Min[0] <= o.Min[0] && b.Min[1] <= o.Min[1] && b.Min[2] <= o.Min[2] &&
		b.Max[0] >= o.Max[0] && b.Max[1] >= o.Max[1] && b.Max[2] >= o.Max[2]
}
