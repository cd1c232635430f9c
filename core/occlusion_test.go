package core

import (
	"math"
	"testing"

	"github.com/urbansight/shadow-engine/model"
)

// wallMesh builds a vertical quad at constant z, spanning [x0, x1] in x and
// [y0, y1] in y, as two triangles.
func wallMesh(owner string, x0, x1, y0, y1, z float64) model.Mesh {
	return model.Mesh{
		Owner: model.OwnerID(owner),
		Triangles: []model.Triangle{
			{
				V0: model.LocalPoint{X: x0, Y: y0, Z: z},
				V1: model.LocalPoint{X: x1, Y: y0, Z: z},
				V2: model.LocalPoint{X: x1, Y: y1, Z: z},
			},
			{
				V0: model.LocalPoint{X: x0, Y: y0, Z: z},
				V1: model.LocalPoint{X: x1, Y: y1, Z: z},
				V2: model.LocalPoint{X: x0, Y: y1, Z: z},
			},
		},
	}
}

func newEngineWithBuildings(t *testing.T, meshes ...model.Mesh) *OcclusionEngine {
	t.Helper()
	reg := NewMeshRegistry()
	if err := reg.ReplaceBuildingMeshes(meshes); err != nil {
		t.Fatalf("ReplaceBuildingMeshes returned error: %v", err)
	}
	return NewOcclusionEngine(reg)
}

func TestOcclusionBuildingDueSouth(t *testing.T) {
	// A 10x10x30 m building centred 50 m due south of the origin; its
	// near face sits at z = 45. The sun bears 180 degrees at 20 degrees
	// elevation, so a ray from eye height hits the face around 47.9 m.
	engine := newEngineWithBuildings(t, wallMesh("bldg-south", -5, 5, 0, 30, 45))

	origin := Vec3{X: 0, Y: 1.5, Z: 0}
	dir := sunDirection(180, 20)

	hit, ok := engine.Test(origin, dir)
	if !ok {
		t.Fatalf("expected a hit on the south building")
	}
	if hit.Owner != "bldg-south" {
		t.Errorf("hit owner = %q, want bldg-south", hit.Owner)
	}
	if hit.Kind != model.MeshBuilding {
		t.Errorf("hit kind = %v, want MeshBuilding", hit.Kind)
	}
	wantDist := 45.0 / math.Cos(radians(20))
	if math.Abs(hit.Distance-wantDist) > 1e-6 {
		t.Errorf("hit distance = %f, want %f", hit.Distance, wantDist)
	}
}

func TestOcclusionMissesWhenSunIsHigh(t *testing.T) {
	// Same building, sun at 70 degrees elevation: the ray clears the
	// 30 m roofline long before reaching z = 45.
	engine := newEngineWithBuildings(t, wallMesh("bldg-south", -5, 5, 0, 30, 45))

	origin := Vec3{X: 0, Y: 1.5, Z: 0}
	dir := sunDirection(180, 70)

	if hit, ok := engine.Test(origin, dir); ok {
		t.Errorf("expected no hit, got %+v", hit)
	}
}

func TestOcclusionNearestHitWins(t *testing.T) {
	engine := newEngineWithBuildings(t,
		wallMesh("far", -10, 10, 0, 50, 40),
		wallMesh("near", -10, 10, 0, 50, 20),
	)

	origin := Vec3{X: 0, Y: 5, Z: 0}
	dir := Vec3{Z: 1}

	hit, ok := engine.Test(origin, dir)
	if !ok {
		t.Fatalf("expected a hit")
	}
	if hit.Owner != "near" {
		t.Errorf("hit owner = %q, want near", hit.Owner)
	}
	if math.Abs(hit.Distance-20) > 1e-9 {
		t.Errorf("hit distance = %f, want 20", hit.Distance)
	}
}

func TestOcclusionNearestWinsAcrossKinds(t *testing.T) {
	reg := NewMeshRegistry()
	if err := reg.ReplaceBuildingMeshes([]model.Mesh{
		wallMesh("bldg", -10, 10, 0, 50, 30),
	}); err != nil {
		t.Fatalf("ReplaceBuildingMeshes returned error: %v", err)
	}
	terrain := wallMesh("ground", -10, 10, 0, 50, 10)
	if err := reg.ReplaceTerrainMesh(terrain); err != nil {
		t.Fatalf("ReplaceTerrainMesh returned error: %v", err)
	}
	engine := NewOcclusionEngine(reg)

	hit, ok := engine.Test(Vec3{X: 0, Y: 5, Z: 0}, Vec3{Z: 1})
	if !ok {
		t.Fatalf("expected a hit")
	}
	if hit.Kind != model.MeshTerrain || hit.Owner != "ground" {
		t.Errorf("hit = %+v, want terrain mesh ground at 10 m", hit)
	}
}

func TestOcclusionTerrainGuardSkipsNearHits(t *testing.T) {
	// A terrain face 0.3 m ahead of the origin is the surface the query
	// point stands on and must not count as a blocker. The same face as
	// a building still does.
	reg := NewMeshRegistry()
	terrain := wallMesh("ground", -10, 10, -10, 10, 0.3)
	if err := reg.ReplaceTerrainMesh(terrain); err != nil {
		t.Fatalf("ReplaceTerrainMesh returned error: %v", err)
	}
	engine := NewOcclusionEngine(reg)

	if hit, ok := engine.Test(Vec3{}, Vec3{Z: 1}); ok {
		t.Errorf("terrain hit inside the guard reported: %+v", hit)
	}

	reg2 := NewMeshRegistry()
	if err := reg2.ReplaceBuildingMeshes([]model.Mesh{
		wallMesh("bldg", -10, 10, -10, 10, 0.3),
	}); err != nil {
		t.Fatalf("ReplaceBuildingMeshes returned error: %v", err)
	}
	engine2 := NewOcclusionEngine(reg2)

	if _, ok := engine2.Test(Vec3{}, Vec3{Z: 1}); !ok {
		t.Errorf("building hit at 0.3 m not reported")
	}
}

func TestOcclusionRespectsMaxDistance(t *testing.T) {
	engine := newEngineWithBuildings(t, wallMesh("distant", -100, 100, 0, 500, 20000))

	if hit, ok := engine.Test(Vec3{Y: 5}, Vec3{Z: 1}); ok {
		t.Errorf("hit beyond the distance bound reported: %+v", hit)
	}
}

func TestOcclusionSkipsDegenerateTriangles(t *testing.T) {
	// All three vertices collinear: zero area, never hit.
	degenerate := model.Mesh{
		Owner: "bad",
		Triangles: []model.Triangle{{
			V0: model.LocalPoint{X: 0, Y: 0, Z: 10},
			V1: model.LocalPoint{X: 1, Y: 0, Z: 10},
			V2: model.LocalPoint{X: 2, Y: 0, Z: 10},
		}},
	}
	engine := newEngineWithBuildings(t, degenerate)

	if hit, ok := engine.Test(Vec3{}, Vec3{Z: 1}); ok {
		t.Errorf("degenerate triangle produced a hit: %+v", hit)
	}
}

func TestOcclusionIgnoresGeometryBehindOrigin(t *testing.T) {
	engine := newEngineWithBuildings(t, wallMesh("behind", -10, 10, 0, 50, -20))

	if hit, ok := engine.Test(Vec3{Y: 5}, Vec3{Z: 1}); ok {
		t.Errorf("triangle behind the origin produced a hit: %+v", hit)
	}
}

func TestOcclusionEmptyRegistry(t *testing.T) {
	engine := NewOcclusionEngine(NewMeshRegistry())

	if hit, ok := engine.Test(Vec3{Y: 1.5}, Vec3{Z: 1}); ok {
		t.Errorf("empty registry produced a hit: %+v", hit)
	}
}
