package model

// Vertex is a geographic point in WGS84 degrees. Vertices carry no identity
// of their own; a ring references them by position.
type Vertex struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Position is a geolocation fix delivered by the positioning collaborator.
type Position struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	AccuracyMeters float64 `json:"accuracyMeters"`
}

// CloneRing returns an independent copy of a vertex ring so callers can hand
// out snapshots without exposing the editor's backing slice.
func CloneRing(ring []Vertex) []Vertex {
	if ring == nil {
		return nil
	}
	out := make([]Vertex, len(ring))
	copy(out, ring)
	return out
}
