package core

import (
	"math"

	"github.com/urbansight/shadow-engine/model"
)

// The local tangent-plane frame uses one axis convention, fixed here and
// applied identically by every consumer (frame conversions, sun vectors,
// meshes, queries):
//
//	+X = east, +Y = up, +Z = south (z = -northMeters)
//
// Nothing outside this package may re-derive the transform; all conversions
// go through CoordinateFrame.

// Vec3 is a vector in the local frame, metres.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns the cross product v × other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector in v's direction. The zero vector is
// returned unchanged.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// VecFromLocal converts a model.LocalPoint into a Vec3.
func VecFromLocal(p model.LocalPoint) Vec3 {
	return Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// ToLocalPoint converts a Vec3 back into a model.LocalPoint.
func (v Vec3) ToLocalPoint() model.LocalPoint {
	return model.LocalPoint{X: v.X, Y: v.Y, Z: v.Z}
}
