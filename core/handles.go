package core

import "github.com/perimetra/fenceline/model"

// HandleKind distinguishes the two interactive proxies on the map.
type HandleKind int

const (
	// VertexHandle is the draggable square proxy for one ring vertex.
	// Dragging moves the vertex; a click (release without drag) deletes it.
	VertexHandle HandleKind = iota
	// MidpointHandle is the static round proxy at an edge midpoint.
	// Activating it inserts a new vertex at that position.
	MidpointHandle
)

// Handle binds a map proxy to a ring position. For a VertexHandle, Index is
// the vertex index. For a MidpointHandle, Index i denotes the edge between
// vertices i and i+1 (wrapping), and Position is that edge's midpoint.
//
// Handles are position-indexed: any structural ring change (insert, delete)
// invalidates every Handle and forces a full rebuild. Only a plain vertex
// drag may patch in place, and it must also refresh the two adjacent
// midpoints.
type Handle struct {
	Kind     HandleKind
	Index    int
	Position model.Vertex
}

// handleSet tracks the current vertex and midpoint handles for a ring.
type handleSet struct {
	vertices  []Handle
	midpoints []Handle
}

// rebuild recreates every handle from the ring. While drawing, the closing
// edge (last vertex back to the first) only exists once the ring has three
// vertices, so shorter rings get midpoints for interior edges only.
func (hs *handleSet) rebuild(ring []model.Vertex) {
	hs.vertices = hs.vertices[:0]
	hs.midpoints = hs.midpoints[:0]

	for i, v := range ring {
		hs.vertices = append(hs.vertices, Handle{Kind: VertexHandle, Index: i, Position: v})
	}

	n := len(ring)
	if n < 2 {
		return
	}
	edges := n
	if n < 3 {
		edges = n - 1
	}
	for i := 0; i < edges; i++ {
		hs.midpoints = append(hs.midpoints, Handle{
			Kind:     MidpointHandle,
			Index:    i,
			Position: Midpoint(ring[i], ring[(i+1)%n]),
		})
	}
}

// patchVertex updates handle positions for a plain drag of vertex i: the
// vertex handle itself plus the midpoints of the two edges it touches.
// Returns the handles that changed so the surface can move just those.
func (hs *handleSet) patchVertex(ring []model.Vertex, i int) []Handle {
	if i < 0 || i >= len(hs.vertices) {
		return nil
	}
	hs.vertices[i].Position = ring[i]
	changed := []Handle{hs.vertices[i]}

	n := len(ring)
	for _, edge := range []int{(i - 1 + n) % n, i} {
		if edge < len(hs.midpoints) {
			hs.midpoints[edge].Position = Midpoint(ring[edge], ring[(edge+1)%n])
			changed = append(changed, hs.midpoints[edge])
		}
	}
	return changed
}

// snapshot returns copies of the current handle slices.
func (hs *handleSet) snapshot() (vertices, midpoints []Handle) {
	vertices = make([]Handle, len(hs.vertices))
	copy(vertices, hs.vertices)
	midpoints = make([]Handle, len(hs.midpoints))
	copy(midpoints, hs.midpoints)
	return vertices, midpoints
}
