package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/urbansight/shadow-engine/core"
	"github.com/urbansight/shadow-engine/internal/logging"
	"github.com/urbansight/shadow-engine/model"
)

var nyc = model.GeoPoint{Latitude: 40.7128, Longitude: -74.0060}

type fakeMetrics struct {
	buildings, buildingTris, terrainTris int
	calls                                int
}

func (f *fakeMetrics) SetSceneCounts(buildingMeshes, buildingTriangles, terrainTriangles int) {
	f.buildings = buildingMeshes
	f.buildingTris = buildingTriangles
	f.terrainTris = terrainTriangles
	f.calls++
}

func testMesh(owner string) model.Mesh {
	return model.Mesh{
		Owner: model.OwnerID(owner),
		Triangles: []model.Triangle{{
			V0: model.LocalPoint{X: -5, Y: 0, Z: 45},
			V1: model.LocalPoint{X: 5, Y: 0, Z: 45},
			V2: model.LocalPoint{X: 0, Y: 30, Z: 45},
		}},
	}
}

func testSnapshot() *core.SceneSnapshot {
	terrain := testMesh("ground")
	return &core.SceneSnapshot{
		Reference: nyc,
		Buildings: []model.Mesh{testMesh("bldg-1"), testMesh("bldg-2")},
		Terrain:   &terrain,
	}
}

func TestLoadSnapshotFixesReferenceAndMeshes(t *testing.T) {
	metrics := &fakeMetrics{}
	state := NewSceneState(logging.Noop(), WithMetricsRecorder(metrics))

	if err := state.LoadSnapshot(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}

	ref := state.Frame().Reference()
	if ref.Source != model.ReferenceFromMesh {
		t.Errorf("reference source = %v, want ReferenceFromMesh", ref.Source)
	}
	if ref.Point != nyc {
		t.Errorf("reference point = %+v, want %+v", ref.Point, nyc)
	}

	sum := state.Summarize()
	if sum.BuildingMeshes != 2 || sum.BuildingTriangles != 2 || sum.TerrainTriangles != 1 {
		t.Errorf("summary = %+v, want 2 building meshes, 2+1 triangles", sum)
	}
	if metrics.buildings != 2 || metrics.buildingTris != 2 || metrics.terrainTris != 1 {
		t.Errorf("metrics = %+v, want counts 2/2/1", metrics)
	}
}

func TestLoadSnapshotOverridesManualReference(t *testing.T) {
	state := NewSceneState(logging.Noop())
	ctx := context.Background()

	manual := model.GeoPoint{Latitude: 51.5, Longitude: -0.12}
	if err := state.SetManualReference(ctx, manual); err != nil {
		t.Fatalf("SetManualReference returned error: %v", err)
	}

	if err := state.LoadSnapshot(ctx, testSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}

	ref := state.Frame().Reference()
	if ref.Source != model.ReferenceFromMesh || ref.Point != nyc {
		t.Errorf("reference after load = %+v, want mesh-derived %+v", ref, nyc)
	}
}

func TestLoadSnapshotRejectsInvalid(t *testing.T) {
	state := NewSceneState(logging.Noop())

	snap := testSnapshot()
	snap.Reference.Latitude = 95
	if err := state.LoadSnapshot(context.Background(), snap); err == nil {
		t.Errorf("snapshot with invalid reference accepted, want error")
	}
	if err := state.LoadSnapshot(context.Background(), nil); err == nil {
		t.Errorf("nil snapshot accepted, want error")
	}
}

func TestReplaceMeshesRequireReference(t *testing.T) {
	state := NewSceneState(logging.Noop())
	ctx := context.Background()

	err := state.ReplaceBuildingMeshes(ctx, []model.Mesh{testMesh("bldg")})
	if !errors.Is(err, core.ErrNoReference) {
		t.Errorf("ReplaceBuildingMeshes without reference error = %v, want ErrNoReference", err)
	}
	err = state.ReplaceTerrainMesh(ctx, testMesh("ground"))
	if !errors.Is(err, core.ErrNoReference) {
		t.Errorf("ReplaceTerrainMesh without reference error = %v, want ErrNoReference", err)
	}
}

func TestSetManualReferenceRejectedOnceLoaded(t *testing.T) {
	state := NewSceneState(logging.Noop())
	ctx := context.Background()

	if err := state.LoadSnapshot(ctx, testSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}
	err := state.SetManualReference(ctx, model.GeoPoint{Latitude: 51.5, Longitude: -0.12})
	if !errors.Is(err, ErrSceneLoaded) {
		t.Errorf("SetManualReference with loaded scene error = %v, want ErrSceneLoaded", err)
	}
}

func TestClearScene(t *testing.T) {
	metrics := &fakeMetrics{}
	state := NewSceneState(logging.Noop(), WithMetricsRecorder(metrics))
	ctx := context.Background()

	if err := state.LoadSnapshot(ctx, testSnapshot()); err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}
	state.ClearScene(ctx)

	if state.Frame().Reference().IsSet() {
		t.Errorf("reference still set after ClearScene")
	}
	if !state.Registry().IsEmpty() {
		t.Errorf("registry not empty after ClearScene")
	}
	if metrics.buildings != 0 || metrics.buildingTris != 0 || metrics.terrainTris != 0 {
		t.Errorf("metrics after clear = %+v, want zeros", metrics)
	}

	// Manual reference becomes legal again once the scene is empty.
	if err := state.SetManualReference(ctx, nyc); err != nil {
		t.Errorf("SetManualReference after clear returned error: %v", err)
	}
}
