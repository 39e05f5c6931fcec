package core

import (
	"errors"
	"math"
	"testing"

	"github.com/perimetra/fenceline/model"
)

func triangle() []model.Vertex {
	return []model.Vertex{
		{Lat: 48.2082, Lon: 16.3738},
		{Lat: 48.2090, Lon: 16.3750},
		{Lat: 48.2075, Lon: 16.3755},
	}
}

// square returns an open ring of side degrees around the equator, where the
// metre-per-degree scale is easy to reason about.
func square(side float64) []model.Vertex {
	return []model.Vertex{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: side},
		{Lat: side, Lon: side},
		{Lat: side, Lon: 0},
	}
}

func TestValidateRing(t *testing.T) {
	tooMany := make([]model.Vertex, MaxVertices+1)
	for i := range tooMany {
		tooMany[i] = model.Vertex{Lat: float64(i) * 0.001, Lon: float64(i) * 0.002}
	}

	tests := []struct {
		name string
		ring []model.Vertex
		want error
	}{
		{"empty", nil, ErrTooFewVertices},
		{"two vertices", triangle()[:2], ErrTooFewVertices},
		{"valid triangle", triangle(), nil},
		{"valid square", square(0.01), nil},
		{"over limit", tooMany, ErrTooManyVertices},
		{
			"all identical",
			[]model.Vertex{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 1, Lon: 1}},
			ErrDuplicateVertices,
		},
		{
			"distinct only below rounding precision",
			[]model.Vertex{
				{Lat: 1, Lon: 1},
				{Lat: 1 + 1e-8, Lon: 1},
				{Lat: 1, Lon: 1 + 1e-8},
			},
			ErrDuplicateVertices,
		},
		{
			"distinct above rounding precision",
			[]model.Vertex{
				{Lat: 1, Lon: 1},
				{Lat: 1.00001, Lon: 1},
				{Lat: 1, Lon: 1.00001},
			},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateRing(tt.ring); !errors.Is(err, tt.want) {
				t.Fatalf("ValidateRing() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestToClosedRing(t *testing.T) {
	ring := triangle()
	closed := ToClosedRing(ring)

	if got, want := len(closed), len(ring)+1; got != want {
		t.Fatalf("closed ring length = %d, want %d", got, want)
	}
	if closed[0] != closed[len(closed)-1] {
		t.Fatalf("ring not closed: first %v, last %v", closed[0], closed[len(closed)-1])
	}
	for i, v := range ring {
		want := [2]float64{round6(v.Lon), round6(v.Lat)}
		if closed[i] != want {
			t.Fatalf("point %d = %v, want lon-lat order %v", i, closed[i], want)
		}
	}
}

func TestToClosedRingAlreadyClosed(t *testing.T) {
	ring := append(triangle(), triangle()[0])
	closed := ToClosedRing(ring)
	if got, want := len(closed), len(ring); got != want {
		t.Fatalf("closing an already-closed ring: length = %d, want %d", got, want)
	}
}

func TestToClosedRingRounds(t *testing.T) {
	ring := []model.Vertex{
		{Lat: 10.12345678, Lon: 20.98765432},
		{Lat: 11, Lon: 21},
		{Lat: 12, Lon: 22},
	}
	closed := ToClosedRing(ring)
	if got, want := closed[0], ([2]float64{20.987654, 10.123457}); got != want {
		t.Fatalf("rounded point = %v, want %v", got, want)
	}
}

func TestRingFromClosedRoundTrip(t *testing.T) {
	ring := triangle()
	got := RingFromClosed(ToClosedRing(ring))
	if len(got) != len(ring) {
		t.Fatalf("round trip length = %d, want %d", len(got), len(ring))
	}
	for i := range ring {
		if math.Abs(got[i].Lat-ring[i].Lat) > 1e-6 || math.Abs(got[i].Lon-ring[i].Lon) > 1e-6 {
			t.Fatalf("vertex %d = %+v, want %+v", i, got[i], ring[i])
		}
	}
}

func TestPerimeterMetersSquare(t *testing.T) {
	// A 0.01 degree square on the equator: each side is close to
	// 0.01 * R * pi/180 = 1111.9 m.
	closed := ToClosedRing(square(0.01))
	got := PerimeterMeters(closed)
	want := 4 * 0.01 * EarthRadiusMeters * math.Pi / 180
	if relErr(got, want) > 0.01 {
		t.Fatalf("perimeter = %.1f m, want %.1f m within 1%%", got, want)
	}
}

func TestAreaSquareMetersSquare(t *testing.T) {
	// At the equator one Mercator degree is R_merc * pi/180 metres in both
	// axes, so the projected square is almost exactly that side length.
	closed := ToClosedRing(square(0.01))
	got := AreaSquareMeters(closed)
	side := 0.01 * MercatorRadiusMeters * math.Pi / 180
	want := side * side
	if relErr(got, want) > 0.01 {
		t.Fatalf("area = %.1f m2, want %.1f m2 within 1%%", got, want)
	}
}

func TestOneDegreeSquareStats(t *testing.T) {
	// A one-degree square at the equator. Each side is roughly 111.3 km;
	// the Mercator area overshoots slightly with latitude, hence the looser
	// bound there.
	stats := ComputeStats(square(1))
	if stats.Vertices != 4 {
		t.Fatalf("vertices = %d, want 4", stats.Vertices)
	}
	if relErr(stats.PerimeterMeters, 4*111320) > 0.01 {
		t.Errorf("perimeter = %.0f m, want within 1%% of %d m", stats.PerimeterMeters, 4*111320)
	}
	if relErr(stats.AreaSquareMeters, 111320*111320) > 0.05 {
		t.Errorf("area = %.0f m2, want within 5%% of %.0f m2", stats.AreaSquareMeters, 111320.0*111320.0)
	}
}

func TestStatsInvariantUnderRotationAndReversal(t *testing.T) {
	ring := square(0.01)
	baseArea := AreaSquareMeters(ToClosedRing(ring))
	basePerimeter := PerimeterMeters(ToClosedRing(ring))

	rotations := make([][]model.Vertex, 0, len(ring))
	for shift := 1; shift < len(ring); shift++ {
		rotated := append(append([]model.Vertex{}, ring[shift:]...), ring[:shift]...)
		rotations = append(rotations, rotated)
	}
	reversed := make([]model.Vertex, len(ring))
	for i, v := range ring {
		reversed[len(ring)-1-i] = v
	}
	variants := append(rotations, reversed)

	for i, variant := range variants {
		closed := ToClosedRing(variant)
		if got := AreaSquareMeters(closed); relErr(got, baseArea) > 1e-9 {
			t.Errorf("variant %d area = %v, want %v", i, got, baseArea)
		}
		if got := PerimeterMeters(closed); relErr(got, basePerimeter) > 1e-9 {
			t.Errorf("variant %d perimeter = %v, want %v", i, got, basePerimeter)
		}
	}
}

func TestAreaDegenerate(t *testing.T) {
	if got := AreaSquareMeters(nil); got != 0 {
		t.Fatalf("area of empty ring = %v, want 0", got)
	}
	if got := AreaSquareMeters(model.ClosedRing{{0, 0}, {1, 1}, {0, 0}}); got != 0 {
		t.Fatalf("area of two-point ring = %v, want 0", got)
	}
}

func TestMidpoint(t *testing.T) {
	got := Midpoint(model.Vertex{Lat: 10, Lon: 20}, model.Vertex{Lat: 12, Lon: 26})
	want := model.Vertex{Lat: 11, Lon: 23}
	if got != want {
		t.Fatalf("Midpoint() = %+v, want %+v", got, want)
	}
}

func relErr(got, want float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-want) / math.Abs(want)
}
