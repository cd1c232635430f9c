package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/urbansight/shadow-engine/model"
)

var (
	ErrInvalidLatitude  = errors.New("latitude out of range [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude out of range [-180, 180]")
)

// ValidateGeoPoint checks that a geographic point is within the valid
// latitude/longitude ranges.
func ValidateGeoPoint(p model.GeoPoint) error {
	if p.Latitude < -90 || p.Latitude > 90 || math.IsNaN(p.Latitude) {
		return fmt.Errorf("%w: %v", ErrInvalidLatitude, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 || math.IsNaN(p.Longitude) {
		return fmt.Errorf("%w: %v", ErrInvalidLongitude, p.Longitude)
	}
	return nil
}

// SunPosition computes the sun's horizontal coordinates for an observer at
// the given geographic point and UTC instant, using the simplified
// low-precision solar model (mean elements, no refraction or nutation).
//
// Azimuth is a compass bearing in degrees [0, 360): 0 = north, 90 = east.
// Elevation is degrees above the horizon; values <= 0 mean the sun is down
// and callers must short-circuit to night without occlusion testing.
// DirectionLocal is the unit vector from the observer toward the sun in the
// local frame declared in geometry.go.
//
// Deterministic and pure: no scene state is read.
func SunPosition(point model.GeoPoint, at time.Time) (model.SunVector, error) {
	if err := ValidateGeoPoint(point); err != nil {
		return model.SunVector{}, err
	}

	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	// Julian date and centuries since J2000.0. go-satellite's JDay matches
	// the standard civil-calendar formula.
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	t := (jd - 2451545.0) / 36525.0

	// Mean longitude and mean anomaly of the sun.
	l := normalizeDeg(280.460 + 36000.771*t)
	g := radians(normalizeDeg(357.528 + 35999.050*t))

	// Ecliptic longitude with the two largest perturbation terms. The
	// sun's ecliptic latitude is taken as zero.
	lambda := radians(normalizeDeg(l + 1.915*math.Sin(g) + 0.020*math.Sin(2*g)))

	// Obliquity of the ecliptic.
	epsilon := radians(23.439 - 0.013*t)

	// Equatorial coordinates.
	ra := math.Atan2(math.Cos(epsilon)*math.Sin(lambda), math.Cos(lambda))
	dec := math.Asin(math.Sin(epsilon) * math.Sin(lambda))

	// Local sidereal time: Greenwich sidereal time plus east longitude.
	lst := satellite.ThetaG_JD(jd) + radians(point.Longitude)
	ha := lst - ra

	latRad := radians(point.Latitude)

	sinEl := math.Sin(latRad)*math.Sin(dec) + math.Cos(latRad)*math.Cos(dec)*math.Cos(ha)
	sinEl = clamp(sinEl, -1, 1)
	elevation := degrees(math.Asin(sinEl))

	azimuth := 0.0
	denom := math.Cos(latRad) * math.Cos(math.Asin(sinEl))
	if math.Abs(denom) > 1e-12 {
		cosAz := (math.Sin(dec) - math.Sin(latRad)*sinEl) / denom
		azimuth = degrees(math.Acos(clamp(cosAz, -1, 1)))
		if math.Sin(ha) > 0 {
			azimuth = 360.0 - azimuth
		}
	}

	return model.SunVector{
		AzimuthDeg:     azimuth,
		ElevationDeg:   elevation,
		DirectionLocal: sunDirection(azimuth, elevation).ToLocalPoint(),
	}, nil
}

// sunDirection converts horizontal coordinates to the unit vector pointing
// from the observer toward the sun, in the +X=east, +Y=up, +Z=south frame.
func sunDirection(azimuthDeg, elevationDeg float64) Vec3 {
	az := radians(azimuthDeg)
	el := radians(elevationDeg)
	return Vec3{
		X: math.Sin(az) * math.Cos(el),
		Y: math.Sin(el),
		Z: -math.Cos(az) * math.Cos(el),
	}
}

func normalizeDeg(deg float64) float64 {
	m := math.Mod(deg, 360.0)
	if m < 0 {
		m += 360.0
	}
	return m
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }
func degrees(rad float64) float64 { return rad * 180.0 / math.Pi }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
