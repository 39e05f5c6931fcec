package core

import (
	"testing"

	"github.com/perimetra/fenceline/model"
)

func TestHandleSetRebuild(t *testing.T) {
	tests := []struct {
		name          string
		ring          []model.Vertex
		wantVertices  int
		wantMidpoints int
	}{
		{"empty", nil, 0, 0},
		{"single vertex", triangle()[:1], 1, 0},
		{"two vertices open edge only", triangle()[:2], 2, 1},
		{"triangle closes", triangle(), 3, 3},
		{"square", square(0.01), 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hs handleSet
			hs.rebuild(tt.ring)
			v, m := hs.snapshot()
			if len(v) != tt.wantVertices || len(m) != tt.wantMidpoints {
				t.Fatalf("rebuild gave %d vertex / %d midpoint handles, want %d / %d",
					len(v), len(m), tt.wantVertices, tt.wantMidpoints)
			}
		})
	}
}

func TestHandleSetMidpointPositions(t *testing.T) {
	ring := square(0.01)
	var hs handleSet
	hs.rebuild(ring)

	_, mids := hs.snapshot()
	for i, h := range mids {
		want := Midpoint(ring[i], ring[(i+1)%len(ring)])
		if h.Position != want {
			t.Errorf("midpoint %d at %+v, want %+v", i, h.Position, want)
		}
		if h.Kind != MidpointHandle || h.Index != i {
			t.Errorf("midpoint %d = %+v", i, h)
		}
	}
}

func TestHandleSetPatchVertex(t *testing.T) {
	ring := square(0.01)
	var hs handleSet
	hs.rebuild(ring)

	ring[1] = model.Vertex{Lat: 0.005, Lon: 0.02}
	changed := hs.patchVertex(ring, 1)

	// The vertex itself plus the two midpoints on its edges.
	if len(changed) != 3 {
		t.Fatalf("patch changed %d handles, want 3", len(changed))
	}
	if changed[0].Kind != VertexHandle || changed[0].Position != ring[1] {
		t.Fatalf("patched vertex handle = %+v", changed[0])
	}

	_, mids := hs.snapshot()
	if got, want := mids[0].Position, Midpoint(ring[0], ring[1]); got != want {
		t.Errorf("midpoint 0 = %+v, want %+v", got, want)
	}
	if got, want := mids[1].Position, Midpoint(ring[1], ring[2]); got != want {
		t.Errorf("midpoint 1 = %+v, want %+v", got, want)
	}
	// The far edge is untouched.
	if got, want := mids[2].Position, Midpoint(ring[2], ring[3]); got != want {
		t.Errorf("midpoint 2 = %+v, want %+v", got, want)
	}
}

func TestHandleSetPatchOutOfRange(t *testing.T) {
	var hs handleSet
	hs.rebuild(triangle())
	if changed := hs.patchVertex(triangle(), 7); changed != nil {
		t.Fatalf("out-of-range patch returned %v", changed)
	}
}
