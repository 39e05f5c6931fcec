package core

import (
	"math"

	"github.com/perimetra/fenceline/model"
)

// GestureKind is the classification of a completed pointer gesture.
type GestureKind int

const (
	// GestureClick is a press released without crossing the move threshold.
	GestureClick GestureKind = iota
	// GestureDrag is a press that crossed the move threshold before release.
	GestureDrag
)

// DefaultDragThresholdDeg is the pointer travel, in coordinate degrees, that
// turns a press into a drag. Roughly half a metre at street zoom levels.
const DefaultDragThresholdDeg = 5e-6

type gesturePhase int

const (
	gestureIdle gesturePhase = iota
	gesturePressed
	gestureDragging
)

// gesture is a small press/move/release recognizer. Classifying by travel
// distance rather than by a handle-type flag is what guarantees that a click
// immediately following a drag on the same handle is never misread as a
// delete tap.
type gesture struct {
	phase     gesturePhase
	origin    model.Vertex
	threshold float64
}

func newGesture(threshold float64) *gesture {
	if threshold <= 0 {
		threshold = DefaultDragThresholdDeg
	}
	return &gesture{threshold: threshold}
}

// press starts a gesture at the given point.
func (g *gesture) press(at model.Vertex) {
	g.phase = gesturePressed
	g.origin = at
}

// move feeds pointer motion into the recognizer and reports whether the
// gesture is (now) a drag.
func (g *gesture) move(to model.Vertex) bool {
	switch g.phase {
	case gesturePressed:
		if planarDistance(g.origin, to) > g.threshold {
			g.phase = gestureDragging
		}
	case gestureIdle:
		return false
	}
	return g.phase == gestureDragging
}

// release ends the gesture and classifies it.
func (g *gesture) release() GestureKind {
	kind := GestureClick
	if g.phase == gestureDragging {
		kind = GestureDrag
	}
	g.phase = gestureIdle
	return kind
}

func planarDistance(a, b model.Vertex) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
