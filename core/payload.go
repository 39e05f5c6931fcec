package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/perimetra/fenceline/model"
)

// fenceIDPrefix marks fence IDs minted by this tool, as opposed to IDs
// assigned by an upstream system.
const fenceIDPrefix = "ui-"

// NewFenceID mints a fresh fence identifier.
func NewFenceID() string {
	return fenceIDPrefix + uuid.NewString()
}

// Stats is the live geometry readout recomputed on every ring mutation.
type Stats struct {
	Vertices         int
	PerimeterMeters  float64
	AreaSquareMeters float64
}

// ComputeStats derives the live statistics for an open ring. For rings that
// fail validation only the vertex count is populated.
func ComputeStats(ring []model.Vertex) Stats {
	stats := Stats{Vertices: len(ring)}
	if ValidateRing(ring) != nil {
		return stats
	}
	closed := ToClosedRing(ring)
	stats.PerimeterMeters = PerimeterMeters(closed)
	stats.AreaSquareMeters = AreaSquareMeters(closed)
	return stats
}

// BuildPayload validates the ring and assembles a FencePayload around its
// closed form. reuseFenceID keeps the fence identity stable across edits of
// the same logical fence; pass "" to mint a fresh ID. created_at is the
// current instant.
func BuildPayload(ring []model.Vertex, name, notes, reuseFenceID string) (model.FencePayload, error) {
	return buildPayloadAt(ring, name, notes, reuseFenceID, time.Now().UTC())
}

func buildPayloadAt(ring []model.Vertex, name, notes, reuseFenceID string, at time.Time) (model.FencePayload, error) {
	if err := ValidateRing(ring); err != nil {
		return model.FencePayload{}, err
	}

	fenceID := reuseFenceID
	if fenceID == "" {
		fenceID = NewFenceID()
	}

	return model.FencePayload{
		SpecVersion: model.SpecVersion,
		FenceID:     fenceID,
		CreatedAt:   at,
		CRS:         model.CRS,
		Shape: model.Shape{
			Type:        model.ShapeType,
			Coordinates: []model.ClosedRing{ToClosedRing(ring)},
		},
		Properties: model.Properties{Name: name, Notes: notes},
	}, nil
}
