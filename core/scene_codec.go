package core

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/urbansight/shadow-engine/model"
)

// SceneSnapshot is the complete transferable scene: the reference point plus
// every pre-triangulated mesh. It is the boundary format shared by file
// loads, the HTTP scene-load endpoint, and the snapshot cache store.
// Triangulation itself happens upstream in the data providers.
type SceneSnapshot struct {
	Reference model.GeoPoint
	Buildings []model.Mesh
	Terrain   *model.Mesh
	SavedAt   time.Time
}

// internal JSON shapes – kept unexported so we're free to evolve them.
type sceneSnapshotJSON struct {
	Reference geoPointJSON `json:"reference"`
	Buildings []meshJSON   `json:"buildings"`
	Terrain   *meshJSON    `json:"terrain,omitempty"`
	SavedAt   *time.Time   `json:"saved_at,omitempty"`
}

type geoPointJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type meshJSON struct {
	ID        string         `json:"id"`
	Triangles []triangleJSON `json:"triangles"`
}

// triangleJSON is three [x, y, z] vertices in local metres.
type triangleJSON [3][3]float64

// DecodeSceneSnapshot reads and validates a JSON scene snapshot.
func DecodeSceneSnapshot(r io.Reader) (*SceneSnapshot, error) {
	var payload sceneSnapshotJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode scene snapshot: %w", err)
	}

	snap := &SceneSnapshot{
		Reference: model.GeoPoint{
			Latitude:  payload.Reference.Latitude,
			Longitude: payload.Reference.Longitude,
		},
		Buildings: make([]model.Mesh, 0, len(payload.Buildings)),
	}
	if payload.SavedAt != nil {
		snap.SavedAt = payload.SavedAt.UTC()
	}

	for _, b := range payload.Buildings {
		mesh, err := meshFromJSON(b, model.MeshBuilding)
		if err != nil {
			return nil, err
		}
		snap.Buildings = append(snap.Buildings, mesh)
	}
	if payload.Terrain != nil {
		mesh, err := meshFromJSON(*payload.Terrain, model.MeshTerrain)
		if err != nil {
			return nil, err
		}
		snap.Terrain = &mesh
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Encode writes the snapshot as JSON.
func (s *SceneSnapshot) Encode(w io.Writer) error {
	payload := sceneSnapshotJSON{
		Reference: geoPointJSON{
			Latitude:  s.Reference.Latitude,
			Longitude: s.Reference.Longitude,
		},
		Buildings: make([]meshJSON, 0, len(s.Buildings)),
	}
	if !s.SavedAt.IsZero() {
		savedAt := s.SavedAt.UTC()
		payload.SavedAt = &savedAt
	}
	for _, mesh := range s.Buildings {
		payload.Buildings = append(payload.Buildings, meshToJSON(mesh))
	}
	if s.Terrain != nil {
		terrain := meshToJSON(*s.Terrain)
		payload.Terrain = &terrain
	}

	enc := json.NewEncoder(w)
	return enc.Encode(payload)
}

// Validate checks structural invariants: an in-range reference point,
// non-empty owner ids, and at least one triangle per mesh.
func (s *SceneSnapshot) Validate() error {
	if err := ValidateGeoPoint(s.Reference); err != nil {
		return fmt.Errorf("scene reference: %w", err)
	}
	for _, mesh := range s.Buildings {
		if mesh.Owner == "" {
			return fmt.Errorf("building mesh with empty owner id")
		}
		if len(mesh.Triangles) == 0 {
			return fmt.Errorf("building mesh %q has no triangles", mesh.Owner)
		}
	}
	if s.Terrain != nil {
		if s.Terrain.Owner == "" {
			return fmt.Errorf("terrain mesh with empty owner id")
		}
		if len(s.Terrain.Triangles) == 0 {
			return fmt.Errorf("terrain mesh %q has no triangles", s.Terrain.Owner)
		}
	}
	return nil
}

// TriangleCount returns the total number of triangles across all meshes.
func (s *SceneSnapshot) TriangleCount() int {
	n := 0
	for _, mesh := range s.Buildings {
		n += len(mesh.Triangles)
	}
	if s.Terrain != nil {
		n += len(s.Terrain.Triangles)
	}
	return n
}

func meshFromJSON(m meshJSON, kind model.MeshKind) (model.Mesh, error) {
	if m.ID == "" {
		return model.Mesh{}, fmt.Errorf("mesh with empty id")
	}
	mesh := model.Mesh{
		Owner:     model.OwnerID(m.ID),
		Kind:      kind,
		Triangles: make([]model.Triangle, 0, len(m.Triangles)),
	}
	for _, tri := range m.Triangles {
		mesh.Triangles = append(mesh.Triangles, model.Triangle{
			V0: model.LocalPoint{X: tri[0][0], Y: tri[0][1], Z: tri[0][2]},
			V1: model.LocalPoint{X: tri[1][0], Y: tri[1][1], Z: tri[1][2]},
			V2: model.LocalPoint{X: tri[2][0], Y: tri[2][1], Z: tri[2][2]},
		})
	}
	return mesh, nil
}

func meshToJSON(mesh model.Mesh) meshJSON {
	out := meshJSON{
		ID:        string(mesh.Owner),
		Triangles: make([]triangleJSON, 0, len(mesh.Triangles)),
	}
	for _, tri := range mesh.Triangles {
		out.Triangles = append(out.Triangles, triangleJSON{
			{tri.V0.X, tri.V0.Y, tri.V0.Z},
			{tri.V1.X, tri.V1.Y, tri.V1.Z},
			{tri.V2.X, tri.V2.Y, tri.V2.Z},
		})
	}
	return out
}
