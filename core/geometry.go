package core

import (
	"errors"
	"math"

	"github.com/perimetra/fenceline/model"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distance
// (metres).
const EarthRadiusMeters = 6371008.8

// MercatorRadiusMeters is the ellipsoid radius of the spherical Web Mercator
// projection (EPSG:3857), used only for the planar area approximation.
const MercatorRadiusMeters = 6378137.0

// MaxVertices bounds the ring length in the "ready" and later states.
const MaxVertices = 200

// coordPrecision is the rounding applied before closing a ring: six decimal
// degrees, roughly 0.11 m at the equator. Two vertices that collapse to the
// same rounded point count as duplicates.
const coordPrecision = 1e6

// Validation failures for a vertex ring. Callers branch with errors.Is; the
// error text is the user-facing reason string.
var (
	ErrTooFewVertices    = errors.New("polygon needs at least 3 vertices")
	ErrTooManyVertices   = errors.New("polygon exceeds the vertex limit")
	ErrDuplicateVertices = errors.New("polygon has fewer than 3 distinct vertices")
)

// ValidateRing checks an open ring against the editing invariants: length in
// [3, MaxVertices] and at least 3 distinct vertices after rounding to six
// decimal degrees. A nil error means the ring has a derivable payload.
func ValidateRing(ring []model.Vertex) error {
	if len(ring) < 3 {
		return ErrTooFewVertices
	}
	if len(ring) > MaxVertices {
		return ErrTooManyVertices
	}

	distinct := make(map[[2]float64]struct{}, len(ring))
	for _, v := range ring {
		distinct[[2]float64{round6(v.Lon), round6(v.Lat)}] = struct{}{}
	}
	if len(distinct) < 3 {
		return ErrDuplicateVertices
	}
	return nil
}

// ToClosedRing converts an open ring of vertices to the closed wire form:
// coordinates rounded to six decimal degrees, emitted as [lon, lat] pairs,
// with the first point appended as the last unless the ring already closes
// exactly post-rounding. Closing an already-closed ring is a no-op.
func ToClosedRing(ring []model.Vertex) model.ClosedRing {
	if len(ring) == 0 {
		return nil
	}

	closed := make(model.ClosedRing, 0, len(ring)+1)
	for _, v := range ring {
		closed = append(closed, [2]float64{round6(v.Lon), round6(v.Lat)})
	}
	if closed[len(closed)-1] != closed[0] {
		closed = append(closed, closed[0])
	}
	return closed
}

// RingFromClosed recovers the open editing form from a closed wire ring,
// dropping the duplicated closing point.
func RingFromClosed(closed model.ClosedRing) []model.Vertex {
	if len(closed) == 0 {
		return nil
	}
	n := len(closed)
	if n > 1 && closed[n-1] == closed[0] {
		n--
	}
	ring := make([]model.Vertex, 0, n)
	for _, pt := range closed[:n] {
		ring = append(ring, model.Vertex{Lon: pt[0], Lat: pt[1]})
	}
	return ring
}

// PerimeterMeters sums the great-circle (haversine) distances between
// consecutive points of a closed ring.
func PerimeterMeters(closed model.ClosedRing) float64 {
	var total float64
	for i := 1; i < len(closed); i++ {
		total += haversineMeters(closed[i-1], closed[i])
	}
	return total
}

// AreaSquareMeters computes the planar shoelace area of a closed ring after
// projecting each point to Web Mercator. This is an approximation valid only
// for extents small relative to the Earth's radius; geodesic exactness is a
// stated non-goal.
func AreaSquareMeters(closed model.ClosedRing) float64 {
	if len(closed) < 4 {
		return 0
	}

	var sum float64
	for i := 1; i < len(closed); i++ {
		x0, y0 := mercatorMeters(closed[i-1])
		x1, y1 := mercatorMeters(closed[i])
		sum += x0*y1 - x1*y0
	}
	return math.Abs(sum) / 2
}

// Midpoint returns the arithmetic midpoint of two vertices, used for
// insertion-handle placement.
func Midpoint(a, b model.Vertex) model.Vertex {
	return model.Vertex{
		Lat: (a.Lat + b.Lat) / 2,
		Lon: (a.Lon + b.Lon) / 2,
	}
}

func haversineMeters(a, b [2]float64) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLat := (b[1] - a[1]) * math.Pi / 180
	dLon := (b[0] - a[0]) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func mercatorMeters(pt [2]float64) (x, y float64) {
	x = MercatorRadiusMeters * pt[0] * math.Pi / 180
	y = MercatorRadiusMeters * math.Log(math.Tan(math.Pi/4+pt[1]*math.Pi/360))
	return x, y
}

func round6(f float64) float64 {
	return math.Round(f*coordPrecision) / coordPrecision
}
