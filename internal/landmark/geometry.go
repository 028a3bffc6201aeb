package landmark

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec2 returns the point's normalized image coordinates.
func (p Point) Vec2() mgl64.Vec2 {
	return mgl64.Vec2{p.X, p.Y}
}

// Vec3 returns the point with its relative depth.
func (p Point) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{p.X, p.Y, p.Z}
}

// Dist is the 2D distance between two points in normalized coordinates.
func Dist(a, b Point) float64 {
	return a.Vec2().Sub(b.Vec2()).Len()
}

// Dist3 is the 3D distance including relative depth.
func Dist3(a, b Point) float64 {
	return a.Vec3().Sub(b.Vec3()).Len()
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Z: (a.Z + b.Z) / 2}
}

// SegmentAngleDeg is the angle of the segment a->b against the horizontal
// axis, in degrees. Image Y grows downward, so a positive angle means b sits
// lower than a.
func SegmentAngleDeg(a, b Point) float64 {
	d := b.Vec2().Sub(a.Vec2())
	return mgl64.RadToDeg(math.Atan2(d.Y(), d.X()))
}

// TiltFromVerticalRad is the absolute angle between the segment top->bottom
// and the vertical axis, in radians.
func TiltFromVerticalRad(top, bottom Point) float64 {
	d := bottom.Vec2().Sub(top.Vec2())
	if d.Len() == 0 {
		return 0
	}
	return math.Abs(math.Atan2(d.X(), d.Y()))
}

// EyeAspect computes the eye aspect ratio over a six-point eye ring:
// the mean of the two vertical lid gaps over the horizontal corner span.
// Returns 0 when any ring index is outside the mesh.
func EyeAspect(face []Point, ring [6]int) float64 {
	for _, i := range ring {
		if i >= len(face) {
			return 0
		}
	}
	horizontal := Dist(face[ring[0]], face[ring[3]])
	if horizontal == 0 {
		return 0
	}
	v1 := Dist(face[ring[1]], face[ring[5]])
	v2 := Dist(face[ring[2]], face[ring[4]])
	return (v1 + v2) / (2 * horizontal)
}

// PolygonArea is the shoelace area of the polygon formed by the given mesh
// indices, in normalized units. Returns 0 when an index is outside the mesh.
func PolygonArea(face []Point, outline []int) float64 {
	if len(outline) < 3 {
		return 0
	}
	for _, i := range outline {
		if i >= len(face) {
			return 0
		}
	}
	var sum float64
	for i := range outline {
		a := face[outline[i]]
		b := face[outline[(i+1)%len(outline)]]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

// Bounds returns the axis-aligned bounding box of the points. ok is false
// for an empty slice.
func Bounds(pts []Point) (min, max Point, ok bool) {
	if len(pts) == 0 {
		return Point{}, Point{}, false
	}
	min, max = pts[0], pts[0]
	for _, p := range pts[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return min, max, true
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Clamp bounds v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
