package api

import (
	"fmt"
	"time"

	"github.com/urbansight/shadow-engine/model"
)

// Request and response bodies for the JSON API. Field names are the wire
// contract; handlers translate between these and the model types.

type pointRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp,omitempty"` // RFC 3339; empty means "now"
}

func (r pointRequest) point() model.GeoPoint {
	return model.GeoPoint{Latitude: r.Latitude, Longitude: r.Longitude}
}

func (r pointRequest) parseTimestamp() (time.Time, error) {
	if r.Timestamp == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be RFC 3339: %w", err)
	}
	return at, nil
}

type gridRequest struct {
	pointRequest
	SpanMeters float64 `json:"span_m"`
	Resolution int     `json:"resolution"`
}

type referenceRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type sunResponse struct {
	AzimuthDeg   float64          `json:"azimuth_deg"`
	ElevationDeg float64          `json:"elevation_deg"`
	Direction    model.LocalPoint `json:"direction_local"`
	Timestamp    string           `json:"timestamp"`
}

type queryResponse struct {
	RequestID       string  `json:"request_id"`
	Status          string  `json:"status"`
	SunAzimuth      float64 `json:"sun_azimuth"`
	SunElevation    float64 `json:"sun_elevation"`
	BlockerID       string  `json:"blocker_id,omitempty"`
	DistanceMeters  float64 `json:"distance_m,omitempty"`
	Timestamp       string  `json:"timestamp"`
	InAccurateRange bool    `json:"in_accurate_range"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	State     string `json:"state"`
}

type gridResponse struct {
	Status         string  `json:"status"`
	Points         int     `json:"points"`
	Shadowed       int     `json:"shadowed"`
	Sunlit         int     `json:"sunlit"`
	ShadowFraction float64 `json:"shadow_fraction"`
	Timestamp      string  `json:"timestamp"`
}

type sceneResponse struct {
	ReferenceSet      bool    `json:"reference_set"`
	ReferenceSource   string  `json:"reference_source"`
	Reference         *latLon `json:"reference,omitempty"`
	BuildingMeshes    int     `json:"building_meshes"`
	BuildingTriangles int     `json:"building_triangles"`
	TerrainTriangles  int     `json:"terrain_triangles"`
}

type latLon struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Scene  sceneResponse `json:"scene"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
