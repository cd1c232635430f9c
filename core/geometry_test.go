package core

import (
	"math"
	"testing"
)

func TestVec3CrossHandedness(t *testing.T) {
	x := Vec3{X: 1}
	y := Vec3{Y: 1}

	z := x.Cross(y)
	if z.X != 0 || z.Y != 0 || z.Z != 1 {
		t.Errorf("x cross y = %+v, want (0, 0, 1)", z)
	}

	back := y.Cross(x)
	if back.Z != -1 {
		t.Errorf("y cross x Z = %f, want -1", back.Z)
	}
}

func TestVec3NormalizeUnitLength(t *testing.T) {
	v := Vec3{X: 3, Y: 4, Z: 12}
	n := v.Normalize()
	if diff := math.Abs(n.Norm() - 1.0); diff > 1e-12 {
		t.Errorf("normalized norm = %f, want 1", n.Norm())
	}
}

func TestVec3NormalizeZeroVector(t *testing.T) {
	zero := Vec3{}
	n := zero.Normalize()
	if n != zero {
		t.Errorf("normalize of zero vector = %+v, want zero", n)
	}
}

func TestVec3DistanceTo(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 6, Z: 3}
	if d := a.DistanceTo(b); math.Abs(d-5) > 1e-12 {
		t.Errorf("distance = %f, want 5", d)
	}
}

func TestVec3DotOrthogonal(t *testing.T) {
	if d := (Vec3{X: 1}).Dot(Vec3{Y: 1}); d != 0 {
		t.Errorf("dot of orthogonal axes = %f, want 0", d)
	}
}
