package scene

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urbansight/shadow-engine/core"
	"github.com/urbansight/shadow-engine/internal/logging"
	"github.com/urbansight/shadow-engine/model"
)

var (
	// ErrSceneLoaded indicates an operation that would invalidate loaded
	// mesh coordinates, such as moving the reference point under them.
	ErrSceneLoaded = errors.New("scene data already loaded")
)

// SceneState owns the scene's coordinate frame and mesh registry and keeps
// them consistent: every mesh in the registry was converted against the
// frame's current reference point. Mutations are expected to arrive from the
// single scene-owning worker; see query.Coordinator.
type SceneState struct {
	frame    *core.CoordinateFrame
	registry *core.MeshRegistry

	log     logging.Logger
	metrics MetricsRecorder
}

// MetricsRecorder receives count updates for loaded scene geometry.
type MetricsRecorder interface {
	SetSceneCounts(buildingMeshes, buildingTriangles, terrainTriangles int)
}

// Option customises SceneState construction.
type Option func(*SceneState)

// WithMetricsRecorder attaches an optional recorder for mesh count gauges.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *SceneState) {
		s.metrics = m
	}
}

// NewSceneState wires an empty frame and registry.
func NewSceneState(log logging.Logger, opts ...Option) *SceneState {
	if log == nil {
		log = logging.Noop()
	}
	state := &SceneState{
		frame:    core.NewCoordinateFrame(),
		registry: core.NewMeshRegistry(),
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(state)
		}
	}
	state.updateMetrics()
	return state
}

// Frame exposes the scene's coordinate frame. All geographic conversions in
// a session go through this one instance.
func (s *SceneState) Frame() *core.CoordinateFrame { return s.frame }

// Registry exposes the mesh registry for the occlusion engine.
func (s *SceneState) Registry() *core.MeshRegistry { return s.registry }

// LoadSnapshot replaces the entire scene: the reference point is fixed from
// the snapshot (overriding any manual reference) and both mesh sets are
// swapped wholesale.
func (s *SceneState) LoadSnapshot(ctx context.Context, snap *core.SceneSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil scene snapshot")
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	if err := s.frame.SetReference(snap.Reference, model.ReferenceFromMesh); err != nil {
		return fmt.Errorf("set scene reference: %w", err)
	}
	if err := s.registry.ReplaceBuildingMeshes(snap.Buildings); err != nil {
		return err
	}
	if snap.Terrain != nil {
		if err := s.registry.ReplaceTerrainMesh(*snap.Terrain); err != nil {
			return err
		}
	}
	s.updateMetrics()

	buildings, buildingTris, terrainTris := s.registry.Counts()
	s.log.Info(ctx, "scene loaded",
		logging.Float64("reference_lat", snap.Reference.Latitude),
		logging.Float64("reference_lon", snap.Reference.Longitude),
		logging.Int("building_meshes", buildings),
		logging.Int("building_triangles", buildingTris),
		logging.Int("terrain_triangles", terrainTris),
	)
	return nil
}

// ReplaceBuildingMeshes swaps the building mesh set. A reference point must
// already exist so the meshes' local coordinates have meaning.
func (s *SceneState) ReplaceBuildingMeshes(ctx context.Context, meshes []model.Mesh) error {
	if !s.frame.Reference().IsSet() {
		return core.ErrNoReference
	}
	if err := s.registry.ReplaceBuildingMeshes(meshes); err != nil {
		return err
	}
	s.updateMetrics()
	s.log.Info(ctx, "building meshes replaced", logging.Int("meshes", len(meshes)))
	return nil
}

// ReplaceTerrainMesh swaps the terrain surface.
func (s *SceneState) ReplaceTerrainMesh(ctx context.Context, mesh model.Mesh) error {
	if !s.frame.Reference().IsSet() {
		return core.ErrNoReference
	}
	if err := s.registry.ReplaceTerrainMesh(mesh); err != nil {
		return err
	}
	s.updateMetrics()
	s.log.Info(ctx, "terrain mesh replaced",
		logging.Int("triangles", len(mesh.Triangles)))
	return nil
}

// SetManualReference fixes the reference point by operator input. It is only
// valid while no meshes are loaded; moving the origin under loaded geometry
// would silently shift every triangle.
func (s *SceneState) SetManualReference(ctx context.Context, point model.GeoPoint) error {
	if !s.registry.IsEmpty() {
		return ErrSceneLoaded
	}
	if err := s.frame.SetReference(point, model.ReferenceManual); err != nil {
		return err
	}
	s.log.Info(ctx, "manual reference set",
		logging.Float64("reference_lat", point.Latitude),
		logging.Float64("reference_lon", point.Longitude),
	)
	return nil
}

// ClearScene drops all meshes and the reference point.
func (s *SceneState) ClearScene(ctx context.Context) {
	s.registry.Clear()
	s.frame.ClearReference()
	s.updateMetrics()
	s.log.Info(ctx, "scene cleared")
}

// Summary describes the loaded scene for health and debug surfaces.
type Summary struct {
	Reference         model.Reference
	BuildingMeshes    int
	BuildingTriangles int
	TerrainTriangles  int
	GeneratedAt       time.Time
}

// Summarize returns a point-in-time description of the scene.
func (s *SceneState) Summarize() Summary {
	buildings, buildingTris, terrainTris := s.registry.Counts()
	return Summary{
		Reference:         s.frame.Reference(),
		BuildingMeshes:    buildings,
		BuildingTriangles: buildingTris,
		TerrainTriangles:  terrainTris,
		GeneratedAt:       time.Now().UTC(),
	}
}

func (s *SceneState) updateMetrics() {
	if s.metrics == nil {
		return
	}
	buildings, buildingTris, terrainTris := s.registry.Counts()
	s.metrics.SetSceneCounts(buildings, buildingTris, terrainTris)
}
