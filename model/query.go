package model

import "time"

// RequestID is the opaque correlation id handed back on submission.
type RequestID string

func (id RequestID) String() string { return string(id) }

// OcclusionStatus is the outcome of a single shadow query.
type OcclusionStatus int

const (
	// StatusSunlight means an unobstructed line to the sun exists (or the
	// engine failed open because no scene data was loaded).
	StatusSunlight OcclusionStatus = iota
	// StatusShadow means geometry blocks the line to the sun.
	StatusShadow
	// StatusNight means the sun is at or below the horizon; occlusion
	// testing is skipped entirely.
	StatusNight
)

func (s OcclusionStatus) String() string {
	switch s {
	case StatusShadow:
		return "shadow"
	case StatusNight:
		return "night"
	default:
		return "sunlight"
	}
}

// SunVector is the sun's position for one query. DirectionLocal is the unit
// vector from the query point toward the sun in the local frame; it is
// computed per query and never persisted.
type SunVector struct {
	AzimuthDeg     float64
	ElevationDeg   float64
	DirectionLocal LocalPoint
}

// OcclusionResult is the engine-side answer to one query. BlockerID and
// DistanceMeters are set only for StatusShadow.
type OcclusionResult struct {
	Status         OcclusionStatus
	BlockerID      OwnerID
	DistanceMeters float64
}

// QueryRequest is one submitted shadow query. Timestamp is always UTC and
// already defaulted by the time the request reaches the worker.
type QueryRequest struct {
	ID        RequestID
	Point     GeoPoint
	Timestamp time.Time
}

// QueryResult pairs a completed request with its outcome.
type QueryResult struct {
	ID        RequestID
	Request   QueryRequest
	Sun       SunVector
	Occlusion OcclusionResult
}
