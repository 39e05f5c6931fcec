package core

import "github.com/perimetra/fenceline/model"

// MapSurface is the capability slice of the map/draw collaborator the editor
// drives. The editor never reaches into the rendering library directly; it
// pushes geometry out through this interface and receives input back as
// explicit events (AddVertex, PointerDown, and friends).
//
// Implementations are expected to be cheap and synchronous; the editor calls
// them while holding its own lock.
type MapSurface interface {
	// RenderPolygon draws (or redraws) the single active polygon.
	RenderPolygon(ring []model.Vertex)

	// ClearPolygon removes the active polygon and any handles.
	ClearPolygon()

	// PlaceHandles replaces the full handle set: one draggable square
	// handle per vertex, one activatable round handle per edge midpoint.
	PlaceHandles(vertices, midpoints []Handle)

	// MoveHandle repositions a single handle without rebuilding the set.
	// Used only for plain vertex drags to avoid flicker.
	MoveHandle(h Handle)

	// SetView recentres the map.
	SetView(center model.Vertex, zoom int)
}

// NopSurface is a MapSurface that ignores every call. It keeps the editor
// usable headless and in tests.
type NopSurface struct{}

func (NopSurface) RenderPolygon([]model.Vertex)     {}
func (NopSurface) ClearPolygon()                    {}
func (NopSurface) PlaceHandles([]Handle, []Handle)  {}
func (NopSurface) MoveHandle(Handle)                {}
func (NopSurface) SetView(model.Vertex, int)        {}
