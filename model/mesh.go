package model

// OwnerID is an opaque identifier for the source object of a mesh (one
// building, or the terrain patch). It is resolved to a human-readable label
// only at the presentation boundary.
type OwnerID string

func (id OwnerID) String() string { return string(id) }

// MeshKind distinguishes the two occluder classes the engine knows about.
type MeshKind int

const (
	MeshBuilding MeshKind = iota
	MeshTerrain
)

func (k MeshKind) String() string {
	if k == MeshTerrain {
		return "terrain"
	}
	return "building"
}

// Triangle is a single mesh face in local coordinates. Immutable once built.
type Triangle struct {
	V0, V1, V2 LocalPoint
}

// Mesh is a triangulated surface owned by one scene object. Meshes are
// replaced wholesale by the registry, never patched in place.
type Mesh struct {
	Owner     OwnerID
	Kind      MeshKind
	Triangles []Triangle
}
