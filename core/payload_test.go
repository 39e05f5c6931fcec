package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/perimetra/fenceline/model"
)

func TestBuildPayload(t *testing.T) {
	ring := triangle()
	p, err := BuildPayload(ring, "site A", "north lot", "")
	if err != nil {
		t.Fatalf("BuildPayload() error: %v", err)
	}

	if p.SpecVersion != model.SpecVersion {
		t.Errorf("spec version = %q, want %q", p.SpecVersion, model.SpecVersion)
	}
	if p.CRS != model.CRS {
		t.Errorf("crs = %q, want %q", p.CRS, model.CRS)
	}
	if p.Shape.Type != model.ShapeType {
		t.Errorf("shape type = %q, want %q", p.Shape.Type, model.ShapeType)
	}
	if !strings.HasPrefix(p.FenceID, "ui-") {
		t.Errorf("fence id = %q, want ui- prefix", p.FenceID)
	}
	if p.CreatedAt.IsZero() {
		t.Error("created_at is zero")
	}
	if got, want := len(p.Shape.Coordinates), 1; got != want {
		t.Fatalf("coordinate rings = %d, want %d", got, want)
	}
	if got, want := len(p.Ring()), len(ring)+1; got != want {
		t.Errorf("closed ring length = %d, want %d", got, want)
	}
	if p.Properties.Name != "site A" || p.Properties.Notes != "north lot" {
		t.Errorf("properties = %+v", p.Properties)
	}
}

func TestBuildPayloadReusesFenceID(t *testing.T) {
	p, err := BuildPayload(triangle(), "", "", "ui-existing")
	if err != nil {
		t.Fatalf("BuildPayload() error: %v", err)
	}
	if p.FenceID != "ui-existing" {
		t.Fatalf("fence id = %q, want reused ui-existing", p.FenceID)
	}
}

func TestBuildPayloadInvalidRing(t *testing.T) {
	if _, err := BuildPayload(triangle()[:2], "", "", ""); !errors.Is(err, ErrTooFewVertices) {
		t.Fatalf("BuildPayload() error = %v, want %v", err, ErrTooFewVertices)
	}
}

func TestPayloadWireFormat(t *testing.T) {
	p, err := buildPayloadAt(triangle(), "site A", "", "ui-x", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("buildPayloadAt() error: %v", err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, key := range []string{
		`"spec_version":"1.0"`,
		`"fence_id":"ui-x"`,
		`"crs":"EPSG:4326"`,
		`"type":"Polygon"`,
		`"created_at":"2026-03-01T12:00:00Z"`,
		`"name":"site A"`,
	} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("wire payload missing %s:\n%s", key, raw)
		}
	}

	var back model.FencePayload
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.FenceID != p.FenceID || len(back.Ring()) != len(p.Ring()) {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, p)
	}
}

func TestPayloadRingSurvivesWireRoundTrip(t *testing.T) {
	ring := []model.Vertex{
		{Lat: 48.2082091, Lon: 16.3738189},
		{Lat: 48.2090457, Lon: 16.3750133},
		{Lat: 48.2075313, Lon: 16.3755921},
		{Lat: 48.2071008, Lon: 16.3741576},
	}
	p, err := BuildPayload(ring, "round trip", "", "")
	if err != nil {
		t.Fatalf("BuildPayload: %v", err)
	}
	original := p.Ring()

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back model.FencePayload
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Re-extracting the open ring and closing it again reproduces the
	// original closed ring exactly; the coordinates were already rounded
	// to six decimals before the wire leg.
	reclosed := ToClosedRing(RingFromClosed(back.Ring()))
	if len(reclosed) != len(original) {
		t.Fatalf("re-closed ring length = %d, want %d", len(reclosed), len(original))
	}
	for i := range original {
		if reclosed[i] != original[i] {
			t.Fatalf("point %d = %v after round trip, want %v", i, reclosed[i], original[i])
		}
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(triangle())
	if stats.Vertices != 3 {
		t.Errorf("vertices = %d, want 3", stats.Vertices)
	}
	if stats.PerimeterMeters <= 0 || stats.AreaSquareMeters <= 0 {
		t.Errorf("expected positive perimeter and area, got %+v", stats)
	}

	invalid := ComputeStats(triangle()[:2])
	if invalid.Vertices != 2 || invalid.PerimeterMeters != 0 || invalid.AreaSquareMeters != 0 {
		t.Errorf("invalid ring stats = %+v, want vertex count only", invalid)
	}
}

func TestNewFenceIDUnique(t *testing.T) {
	a, b := NewFenceID(), NewFenceID()
	if a == b {
		t.Fatalf("two minted fence ids collide: %s", a)
	}
	if !strings.HasPrefix(a, "ui-") {
		t.Fatalf("fence id = %q, want ui- prefix", a)
	}
}
