package model

import "time"

// Wire constants for the fence payload. The receiver rejects payloads that
// disagree on either value.
const (
	SpecVersion = "1.0"
	CRS         = "EPSG:4326"
	ShapeType   = "Polygon"
)

// ClosedRing is a closed polygon boundary in [lon, lat] order: the first
// point is duplicated as the last, and every coordinate is rounded to six
// decimal degrees.
type ClosedRing [][2]float64

// Shape is the GeoJSON-flavoured geometry block of a FencePayload. The
// coordinates slice holds exactly one closed ring; multi-polygon fences are
// out of scope.
type Shape struct {
	Type        string       `json:"type"`
	Coordinates []ClosedRing `json:"coordinates"`
}

// Properties carries the operator-supplied metadata for a fence.
type Properties struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// FencePayload is the wire form of a single geofence. It is immutable once
// built: geometry changes produce a replacement payload rather than mutating
// an existing one.
type FencePayload struct {
	SpecVersion string     `json:"spec_version"`
	FenceID     string     `json:"fence_id"`
	CreatedAt   time.Time  `json:"created_at"`
	CRS         string     `json:"crs"`
	Shape       Shape      `json:"shape"`
	Properties  Properties `json:"properties"`
}

// Ring returns the payload's single closed ring, or nil if the payload has
// no coordinates.
func (p FencePayload) Ring() ClosedRing {
	if len(p.Shape.Coordinates) == 0 {
		return nil
	}
	return p.Shape.Coordinates[0]
}
