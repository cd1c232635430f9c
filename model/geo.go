package model

// GeoPoint is a geographic position in degrees. Positive latitude is north,
// positive longitude is east.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocalPoint is a position in the scene's metric tangent-plane frame.
// Axes: +X east, +Y up, +Z south. See core.CoordinateFrame for the
// authoritative convention.
type LocalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ReferenceSource tells where the scene's reference point came from.
type ReferenceSource int

const (
	// ReferenceUnset means no reference point has been established yet.
	// Conversions are impossible and callers must handle this explicitly.
	ReferenceUnset ReferenceSource = iota
	// ReferenceFromMesh means the reference was fixed by a scene load.
	ReferenceFromMesh
	// ReferenceManual means the reference was supplied by an operator
	// before any scene data was loaded.
	ReferenceManual
)

func (s ReferenceSource) String() string {
	switch s {
	case ReferenceFromMesh:
		return "from_mesh"
	case ReferenceManual:
		return "manual"
	default:
		return "unset"
	}
}

// Reference is the scene reference point together with its provenance.
// Point is meaningful only when Source != ReferenceUnset.
type Reference struct {
	Source ReferenceSource
	Point  GeoPoint
}

// IsSet reports whether a usable reference point exists.
func (r Reference) IsSet() bool { return r.Source != ReferenceUnset }
