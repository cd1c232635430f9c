package core

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/urbansight/shadow-engine/model"
)

var (
	// ErrNoReference indicates a conversion was attempted before any
	// reference point was established.
	ErrNoReference = errors.New("no reference point set")
)

const (
	// metersPerDegreeLat is the equirectangular scale for one degree of
	// latitude. Longitude scales by cos(reference latitude).
	metersPerDegreeLat = 111000.0

	// DefaultAccurateRangeMeters is the radius around the reference point
	// within which the tangent-plane approximation holds to ~1 mm.
	DefaultAccurateRangeMeters = 2000.0
)

// CoordinateFrame owns the scene's single reference point and performs every
// geographic <-> local conversion in a session. Buildings, terrain, and
// queries all go through one frame instance; holding divergent copies of this
// transform is the bug class this type exists to eliminate.
type CoordinateFrame struct {
	mu  sync.RWMutex
	ref model.Reference

	// metersPerDegreeLon is derived from the reference latitude when the
	// reference is set, so ToLocal and ToGeo invert each other exactly.
	metersPerDegreeLon float64

	// AccurateRangeMeters bounds the radius within which conversions are
	// trusted; beyond it results are still produced but must be flagged
	// by callers (see WithinAccurateRange).
	AccurateRangeMeters float64
}

// NewCoordinateFrame constructs a frame with no reference point.
func NewCoordinateFrame() *CoordinateFrame {
	return &CoordinateFrame{AccurateRangeMeters: DefaultAccurateRangeMeters}
}

// SetReference fixes the scene origin. Source records whether the point came
// from a scene load or manual operator input; ReferenceUnset is not a valid
// source to set.
func (f *CoordinateFrame) SetReference(point model.GeoPoint, source model.ReferenceSource) error {
	if source == model.ReferenceUnset {
		return fmt.Errorf("cannot set reference with source %q", source)
	}
	if err := ValidateGeoPoint(point); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ref = model.Reference{Source: source, Point: point}
	f.metersPerDegreeLon = metersPerDegreeLat * math.Cos(radians(point.Latitude))
	return nil
}

// ClearReference returns the frame to the unset state.
func (f *CoordinateFrame) ClearReference() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ref = model.Reference{}
	f.metersPerDegreeLon = 0
}

// Reference returns the current reference point and its provenance. Callers
// must handle Source == ReferenceUnset rather than assuming a default.
func (f *CoordinateFrame) Reference() model.Reference {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ref
}

// ToLocal converts a geographic point to local metric coordinates on the
// tangent plane (y = 0).
func (f *CoordinateFrame) ToLocal(p model.GeoPoint) (model.LocalPoint, error) {
	if err := ValidateGeoPoint(p); err != nil {
		return model.LocalPoint{}, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.ref.IsSet() {
		return model.LocalPoint{}, ErrNoReference
	}

	latDiff := p.Latitude - f.ref.Point.Latitude
	lonDiff := p.Longitude - f.ref.Point.Longitude
	return model.LocalPoint{
		X: lonDiff * f.metersPerDegreeLon,
		Y: 0,
		Z: -(latDiff * metersPerDegreeLat),
	}, nil
}

// ToGeo converts a local point back to geographic coordinates, ignoring the
// vertical component. It is the exact inverse of ToLocal.
func (f *CoordinateFrame) ToGeo(p model.LocalPoint) (model.GeoPoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.ref.IsSet() {
		return model.GeoPoint{}, ErrNoReference
	}
	if f.metersPerDegreeLon == 0 {
		// Reference at a pole; longitude is undefined there.
		return model.GeoPoint{}, fmt.Errorf("reference latitude %v has no longitude scale", f.ref.Point.Latitude)
	}

	return model.GeoPoint{
		Latitude:  f.ref.Point.Latitude - p.Z/metersPerDegreeLat,
		Longitude: f.ref.Point.Longitude + p.X/f.metersPerDegreeLon,
	}, nil
}

// WithinAccurateRange reports whether a geographic point lies inside the
// radius where the equirectangular approximation is trusted. Out-of-range
// points still convert, but callers are expected to flag them.
func (f *CoordinateFrame) WithinAccurateRange(p model.GeoPoint) bool {
	local, err := f.ToLocal(p)
	if err != nil {
		return false
	}
	f.mu.RLock()
	limit := f.AccurateRangeMeters
	f.mu.RUnlock()
	if limit <= 0 {
		limit = DefaultAccurateRangeMeters
	}
	return math.Hypot(local.X, local.Z) <= limit
}
