package core

import (
	"fmt"
	"sync"

	"github.com/urbansight/shadow-engine/model"
)

// MeshRegistry holds the triangulated building and terrain surfaces the
// occlusion engine tests against. Mesh sets are replaced wholesale and
// atomically; there are no incremental edits. Reads under the lock observe
// either the complete prior generation or the complete new one, never a mix.
//
// NOTE: writes are expected to come only from the scene-owning worker; the
// internal RWMutex exists so read-only inspection (metrics, debug handlers)
// stays safe from other goroutines.
type MeshRegistry struct {
	mu        sync.RWMutex
	buildings []model.Mesh
	terrain   *model.Mesh
}

// NewMeshRegistry creates an empty registry.
func NewMeshRegistry() *MeshRegistry {
	return &MeshRegistry{}
}

// ReplaceBuildingMeshes swaps in a complete new building mesh set. Meshes
// must carry a non-empty owner id; triangles are not copied, so callers must
// not mutate them afterwards.
func (r *MeshRegistry) ReplaceBuildingMeshes(meshes []model.Mesh) error {
	for _, m := range meshes {
		if m.Owner == "" {
			return fmt.Errorf("building mesh with empty owner id")
		}
	}

	replacement := make([]model.Mesh, len(meshes))
	for i, m := range meshes {
		m.Kind = model.MeshBuilding
		replacement[i] = m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buildings = replacement
	return nil
}

// ReplaceTerrainMesh swaps in the complete terrain surface.
func (r *MeshRegistry) ReplaceTerrainMesh(mesh model.Mesh) error {
	if mesh.Owner == "" {
		return fmt.Errorf("terrain mesh with empty owner id")
	}
	mesh.Kind = model.MeshTerrain

	r.mu.Lock()
	defer r.mu.Unlock()
	r.terrain = &mesh
	return nil
}

// Clear drops all meshes.
func (r *MeshRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buildings = nil
	r.terrain = nil
}

// ForEachTriangle invokes fn for every triangle in the registry, buildings
// first, then terrain. Returning false from fn stops the iteration. The
// whole walk happens under one read lock, so it sees a single generation.
func (r *MeshRegistry) ForEachTriangle(fn func(tri model.Triangle, owner model.OwnerID, kind model.MeshKind) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, mesh := range r.buildings {
		for _, tri := range mesh.Triangles {
			if !fn(tri, mesh.Owner, mesh.Kind) {
				return
			}
		}
	}
	if r.terrain != nil {
		for _, tri := range r.terrain.Triangles {
			if !fn(tri, r.terrain.Owner, r.terrain.Kind) {
				return
			}
		}
	}
}

// IsEmpty reports whether no meshes are loaded at all.
func (r *MeshRegistry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buildings) == 0 && r.terrain == nil
}

// Counts returns the number of building meshes and the triangle totals per
// kind, for metrics and logging.
func (r *MeshRegistry) Counts() (buildingMeshes, buildingTriangles, terrainTriangles int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	buildingMeshes = len(r.buildings)
	for _, mesh := range r.buildings {
		buildingTriangles += len(mesh.Triangles)
	}
	if r.terrain != nil {
		terrainTriangles = len(r.terrain.Triangles)
	}
	return buildingMeshes, buildingTriangles, terrainTriangles
}
