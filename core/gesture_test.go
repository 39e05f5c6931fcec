package core

import (
	"testing"

	"github.com/perimetra/fenceline/model"
)

func TestGestureClick(t *testing.T) {
	g := newGesture(0)
	g.press(model.Vertex{Lat: 1, Lon: 1})
	if g.release() != GestureClick {
		t.Fatal("press then release should classify as click")
	}
}

func TestGestureSubThresholdMoveStaysClick(t *testing.T) {
	g := newGesture(1e-5)
	g.press(model.Vertex{Lat: 1, Lon: 1})
	if g.move(model.Vertex{Lat: 1 + 1e-7, Lon: 1}) {
		t.Fatal("sub-threshold move should not start a drag")
	}
	if g.release() != GestureClick {
		t.Fatal("release after sub-threshold move should classify as click")
	}
}

func TestGestureDrag(t *testing.T) {
	g := newGesture(1e-5)
	g.press(model.Vertex{Lat: 1, Lon: 1})
	if !g.move(model.Vertex{Lat: 1.001, Lon: 1}) {
		t.Fatal("move past threshold should report dragging")
	}
	// Once a drag, returning near the origin does not demote it.
	if !g.move(model.Vertex{Lat: 1, Lon: 1}) {
		t.Fatal("drag should stay a drag after returning to origin")
	}
	if g.release() != GestureDrag {
		t.Fatal("release after drag should classify as drag")
	}
}

func TestGestureClickAfterDrag(t *testing.T) {
	g := newGesture(1e-5)
	g.press(model.Vertex{Lat: 1, Lon: 1})
	g.move(model.Vertex{Lat: 2, Lon: 2})
	if g.release() != GestureDrag {
		t.Fatal("first gesture should be a drag")
	}

	g.press(model.Vertex{Lat: 2, Lon: 2})
	if g.release() != GestureClick {
		t.Fatal("fresh press after a drag should classify independently as click")
	}
}
