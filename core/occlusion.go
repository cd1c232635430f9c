package core

import (
	"math"

	"github.com/urbansight/shadow-engine/model"
)

const (
	// DefaultMaxDistanceMeters bounds the ray: no real-world occluder is
	// expected beyond 10 km of the query point.
	DefaultMaxDistanceMeters = 10000.0

	// DefaultTerrainGuardMeters discards terrain hits closer than this to
	// the ray origin, so a point resting on the terrain surface does not
	// report the ground beneath it as its own blocker.
	DefaultTerrainGuardMeters = 0.5

	// defaultEpsilon rejects near-parallel rays and keeps t strictly ahead
	// of the origin.
	defaultEpsilon = 1e-9
)

// Hit describes the nearest intersection found for a ray.
type Hit struct {
	Owner    model.OwnerID
	Kind     model.MeshKind
	Distance float64
}

// OcclusionEngine tests rays against the registry's triangles using
// Möller–Trumbore intersection. It holds no scene state of its own.
type OcclusionEngine struct {
	registry *MeshRegistry

	// MaxDistance is the far bound for accepted hits, metres.
	MaxDistance float64
	// TerrainGuard is the self-intersection threshold for terrain hits.
	TerrainGuard float64
	// Epsilon is the parallel-ray and near-origin tolerance.
	Epsilon float64
}

// NewOcclusionEngine builds an engine over the given registry with the
// default distance bound and tolerances.
func NewOcclusionEngine(registry *MeshRegistry) *OcclusionEngine {
	return &OcclusionEngine{
		registry:     registry,
		MaxDistance:  DefaultMaxDistanceMeters,
		TerrainGuard: DefaultTerrainGuardMeters,
		Epsilon:      defaultEpsilon,
	}
}

// Test casts a ray from origin along direction (assumed unit length) and
// returns the nearest accepted intersection within MaxDistance, if any.
// Degenerate triangles and near-parallel rays are skipped silently; among
// accepted hits the minimum distance wins regardless of mesh kind.
func (e *OcclusionEngine) Test(origin, direction Vec3) (Hit, bool) {
	maxDist := e.MaxDistance
	if maxDist <= 0 {
		maxDist = DefaultMaxDistanceMeters
	}
	eps := e.Epsilon
	if eps <= 0 {
		eps = defaultEpsilon
	}

	var (
		best  Hit
		found bool
	)

	e.registry.ForEachTriangle(func(tri model.Triangle, owner model.OwnerID, kind model.MeshKind) bool {
		t, ok := rayTriangle(origin, direction, tri, eps)
		if !ok || t > maxDist {
			return true
		}
		// A terrain face immediately beneath the origin is the ground
		// the query point rests on, not an occluder.
		if kind == model.MeshTerrain && t < e.TerrainGuard {
			return true
		}
		if !found || t < best.Distance {
			best = Hit{Owner: owner, Kind: kind, Distance: t}
			found = true
		}
		return true
	})

	return best, found
}

// rayTriangle runs Möller–Trumbore and returns the ray parameter t for an
// intersection strictly ahead of the origin. Zero-area triangles fall out of
// the |a| < eps check like any other parallel case.
func rayTriangle(origin, direction Vec3, tri model.Triangle, eps float64) (float64, bool) {
	v0 := VecFromLocal(tri.V0)
	e1 := VecFromLocal(tri.V1).Sub(v0)
	e2 := VecFromLocal(tri.V2).Sub(v0)

	h := direction.Cross(e2)
	a := e1.Dot(h)
	if math.Abs(a) < eps {
		return 0, false
	}

	f := 1.0 / a
	s := origin.Sub(v0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}

	q := s.Cross(e1)
	v := f * direction.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := f * e2.Dot(q)
	if t <= eps {
		return 0, false
	}
	return t, true
}
