package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/perimetra/fenceline/internal/logging"
	"github.com/perimetra/fenceline/model"
)

// State is the editor's position in its lifecycle:
//
//	idle → drawing → ready ⇄ editing → sending → {success | error}
//
// drawing and editing are the interactive sub-modes with visible handles;
// ready, success, and error are quiescent; sending is transient while a
// delivery is in flight.
type State int

const (
	StateIdle State = iota
	StateDrawing
	StateReady
	StateEditing
	StateSending
	StateSuccess
	StateError
)

// String returns the lower-case state name used in logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrawing:
		return "drawing"
	case StateReady:
		return "ready"
	case StateEditing:
		return "editing"
	case StateSending:
		return "sending"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EditorStates lists every state name, in lifecycle order. Metrics backends
// use it to pre-declare the state gauge's label values.
var EditorStates = []string{"idle", "drawing", "ready", "editing", "sending", "success", "error"}

var (
	// ErrInvalidTransition indicates an operation not allowed in the
	// editor's current state.
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	// ErrMinVertices indicates a vertex removal that would drop the ring
	// below the 3-vertex minimum.
	ErrMinVertices = errors.New("polygon must keep at least 3 vertices")
	// ErrVertexIndex indicates a vertex or edge index out of range.
	ErrVertexIndex = errors.New("vertex index out of range")
	// ErrNoPayload indicates a send with no validated payload.
	ErrNoPayload = errors.New("no validated fence to send")
	// ErrNoActiveHandle indicates pointer motion with no gesture in
	// progress.
	ErrNoActiveHandle = errors.New("no active handle gesture")
)

// Sender delivers a fence payload to the remote endpoint. It returns nil on
// confirmed delivery and an error carrying a human-readable reason otherwise.
type Sender interface {
	Send(ctx context.Context, payload model.FencePayload) error
}

// OfflineQueue is the slice of the submission queue the editor drives during
// send transitions. A nil queue disables offline queueing: failed sends then
// land in the terminal error state instead of being persisted.
type OfflineQueue interface {
	// Enqueue persists a payload that failed to send and returns the new
	// item.
	Enqueue(payload model.FencePayload, cause string) model.QueueItem
	// Update overwrites an existing item's payload and failure cause in
	// place, preserving its ID.
	Update(id string, payload model.FencePayload, cause string) error
	// Remove deletes an item after its payload was delivered.
	Remove(id string) error
	// ClearLoadedReference drops the queue's loaded-for-edit marker
	// without touching queue contents.
	ClearLoadedReference()
}

// MetricsRecorder receives editor gauge updates. Implemented by the
// observability collector; a nil recorder is ignored.
type MetricsRecorder interface {
	SetEditorState(state string)
	SetRingVertices(n int)
}

// EditorOption customises Editor construction.
type EditorOption func(*Editor)

// WithSurface attaches the map rendering collaborator.
func WithSurface(s MapSurface) EditorOption {
	return func(e *Editor) {
		if s != nil {
			e.surface = s
		}
	}
}

// WithQueue enables offline queueing of failed sends.
func WithQueue(q OfflineQueue) EditorOption {
	return func(e *Editor) { e.queue = q }
}

// WithMetrics attaches an editor gauge recorder.
func WithMetrics(m MetricsRecorder) EditorOption {
	return func(e *Editor) { e.metrics = m }
}

// WithDragThreshold overrides the pointer travel that distinguishes a drag
// from a click, in coordinate degrees.
func WithDragThreshold(deg float64) EditorOption {
	return func(e *Editor) { e.drag = newGesture(deg) }
}

// WithClock overrides the timestamp source for committed payloads.
func WithClock(now func() time.Time) EditorOption {
	return func(e *Editor) {
		if now != nil {
			e.now = now
		}
	}
}

// Editor owns the in-progress vertex ring and the single active polygon. All
// mutation of the ring flows through its methods; the map surface is a pure
// output. Methods are safe for concurrent use, though in practice every call
// arrives from one UI event loop.
type Editor struct {
	mu      sync.Mutex
	log     logging.Logger
	surface MapSurface
	queue   OfflineQueue
	metrics MetricsRecorder
	sender  Sender
	now     func() time.Time

	state State

	// ring is the open-form vertex sequence being drawn or edited.
	ring []model.Vertex
	// committed is the last committed polygon, kept so a discarded edit
	// can restore it.
	committed []model.Vertex

	// payload is the committed wire payload; nil whenever the ring is
	// invalid or deleted.
	payload *model.FencePayload
	// fenceID is stable across edits of the same logical fence.
	fenceID string
	// previewID scopes the live preview payloads of one drawing session;
	// it never becomes the committed fence_id.
	previewID string
	preview   *model.FencePayload

	stats         Stats
	name          string
	notes         string
	sessionItemID string
	lastSendError string

	handles handleSet
	drag    *gesture
	active  *Handle
}

// NewEditor constructs an idle editor. The sender is required for Send; the
// remaining collaborators are optional.
func NewEditor(sender Sender, log logging.Logger, opts ...EditorOption) *Editor {
	if log == nil {
		log = logging.Noop()
	}
	e := &Editor{
		log:     log,
		surface: NopSurface{},
		sender:  sender,
		now:     func() time.Time { return time.Now().UTC() },
		state:   StateIdle,
		drag:    newGesture(0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.publishLocked()
	return e
}

// State returns the current lifecycle state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ring returns a copy of the open-form ring.
func (e *Editor) Ring() []model.Vertex {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.CloneRing(e.ring)
}

// Stats returns the live geometry readout for the current ring.
func (e *Editor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Payload returns a copy of the committed payload, or nil when the ring is
// invalid or deleted.
func (e *Editor) Payload() *model.FencePayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.payload == nil {
		return nil
	}
	p := *e.payload
	return &p
}

// PreviewPayload returns the live preview payload recomputed on the latest
// mutation, or nil while the ring is invalid. Its fence_id is scratch and
// never committed.
func (e *Editor) PreviewPayload() *model.FencePayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preview == nil {
		return nil
	}
	p := *e.preview
	return &p
}

// LastSendError returns the reason of the most recent failed delivery, or ""
// after a success.
func (e *Editor) LastSendError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSendError
}

// Handles returns copies of the current vertex and midpoint handle sets.
func (e *Editor) Handles() (vertices, midpoints []Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles.snapshot()
}

// SetProperties updates the fence name and notes. A committed payload is
// replaced, not mutated, to pick up the new metadata.
func (e *Editor) SetProperties(name, notes string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name, e.notes = name, notes
	if e.payload != nil {
		if p, err := buildPayloadAt(e.committed, e.name, e.notes, e.fenceID, e.now()); err == nil {
			e.payload = &p
		}
	}
}

// StartDraw begins a fresh drawing session, discarding any prior ring,
// payload, and loaded-queue-item reference. Refused while a send is in
// flight.
func (e *Editor) StartDraw() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSending {
		return fmt.Errorf("start draw: %w", ErrInvalidTransition)
	}

	e.resetSessionLocked()
	e.state = StateDrawing
	e.surface.ClearPolygon()
	e.recomputeLocked(true)
	e.log.Debug(context.Background(), "draw started")
	return nil
}

// AddVertex appends a vertex to the open ring. Drawing mode only; edits
// insert through midpoint handles instead.
func (e *Editor) AddVertex(v model.Vertex) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrawing {
		return fmt.Errorf("add vertex: %w", ErrInvalidTransition)
	}
	if len(e.ring) >= MaxVertices {
		return ErrTooManyVertices
	}
	e.ring = append(e.ring, v)
	e.recomputeLocked(true)
	return nil
}

// InsertVertexAt splices a new vertex at the midpoint of edge i (between
// vertices i and i+1, wrapping). Allowed while drawing or editing.
func (e *Editor) InsertVertexAt(edge int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrawing && e.state != StateEditing {
		return fmt.Errorf("insert vertex: %w", ErrInvalidTransition)
	}
	n := len(e.ring)
	if edge < 0 || edge >= n {
		return ErrVertexIndex
	}
	if n >= MaxVertices {
		return ErrTooManyVertices
	}

	mid := Midpoint(e.ring[edge], e.ring[(edge+1)%n])
	e.ring = append(e.ring, model.Vertex{})
	copy(e.ring[edge+2:], e.ring[edge+1:])
	e.ring[edge+1] = mid
	e.recomputeLocked(true)
	return nil
}

// RemoveVertex deletes the vertex at index i, refused if the ring would drop
// below 3 vertices.
func (e *Editor) RemoveVertex(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrawing && e.state != StateEditing {
		return fmt.Errorf("remove vertex: %w", ErrInvalidTransition)
	}
	if i < 0 || i >= len(e.ring) {
		return ErrVertexIndex
	}
	if len(e.ring) <= 3 {
		return ErrMinVertices
	}
	e.ring = append(e.ring[:i], e.ring[i+1:]...)
	e.recomputeLocked(true)
	return nil
}

// MoveVertex repositions vertex i during a drag. Ring length never changes;
// handles are patched in place with the two adjacent midpoints refreshed.
func (e *Editor) MoveVertex(i int, to model.Vertex) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrawing && e.state != StateEditing {
		return fmt.Errorf("move vertex: %w", ErrInvalidTransition)
	}
	if i < 0 || i >= len(e.ring) {
		return ErrVertexIndex
	}
	e.ring[i] = to
	e.recomputeLocked(false)
	for _, h := range e.handles.patchVertex(e.ring, i) {
		e.surface.MoveHandle(h)
	}
	return nil
}

// FinishDraw commits the drawn ring, builds the final payload, and enters
// editing so the handles stay live until the user exits.
func (e *Editor) FinishDraw() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrawing {
		return fmt.Errorf("finish draw: %w", ErrInvalidTransition)
	}
	if err := e.commitLocked(); err != nil {
		return err
	}
	e.state = StateEditing
	e.publishLocked()
	e.log.Info(context.Background(), "polygon committed",
		logging.String("fence_id", e.fenceID),
		logging.Int("vertices", len(e.ring)))
	return nil
}

// CancelDraw discards the in-progress ring and returns to idle.
func (e *Editor) CancelDraw() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrawing {
		return fmt.Errorf("cancel draw: %w", ErrInvalidTransition)
	}
	e.resetSessionLocked()
	e.state = StateIdle
	e.surface.ClearPolygon()
	e.recomputeLocked(true)
	return nil
}

// StartEdit re-enters editing on the committed polygon.
func (e *Editor) StartEdit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return fmt.Errorf("start edit: %w", ErrInvalidTransition)
	}
	e.state = StateEditing
	e.recomputeLocked(true)
	return nil
}

// ExitEdit leaves editing. With save, the current ring is revalidated and
// committed; without, the ring reverts to the last committed polygon, which
// stays intact along with its payload.
func (e *Editor) ExitEdit(save bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateEditing {
		return fmt.Errorf("exit edit: %w", ErrInvalidTransition)
	}

	if save {
		if err := e.commitLocked(); err != nil {
			return err
		}
	} else {
		e.ring = model.CloneRing(e.committed)
	}
	e.state = StateReady
	e.recomputeLocked(true)
	return nil
}

// Clear discards the polygon and payload from a quiescent state.
func (e *Editor) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateReady, StateSuccess, StateError:
	default:
		return fmt.Errorf("clear: %w", ErrInvalidTransition)
	}
	e.resetSessionLocked()
	e.state = StateIdle
	e.surface.ClearPolygon()
	e.recomputeLocked(true)
	return nil
}

// LoadQueueItem seeds the editor from a persisted queue item: its ring,
// name, and fence_id, with the item tracked as this session's back-reference
// so a later successful send deletes it and a failed one updates it in
// place.
func (e *Editor) LoadQueueItem(item model.QueueItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateIdle, StateReady, StateSuccess, StateError:
	default:
		return fmt.Errorf("load queue item: %w", ErrInvalidTransition)
	}

	ring := RingFromClosed(item.Payload.Ring())
	if err := ValidateRing(ring); err != nil {
		return fmt.Errorf("queued fence %s: %w", item.ID, err)
	}

	payload := item.Payload
	e.ring = ring
	e.committed = model.CloneRing(ring)
	e.payload = &payload
	e.fenceID = payload.FenceID
	e.name = payload.Properties.Name
	e.notes = payload.Properties.Notes
	e.sessionItemID = item.ID
	e.lastSendError = item.LastError
	e.state = StateReady
	e.recomputeLocked(true)
	e.log.Info(context.Background(), "queue item loaded for edit",
		logging.String("item_id", item.ID),
		logging.String("fence_id", payload.FenceID))
	return nil
}

// Send delivers the committed payload. On confirmed delivery the state
// becomes success and a loaded queue item, if any, is removed. On failure
// with offline queueing enabled, the payload is persisted (as a new item, or
// updating the loaded one in place) and the state returns to ready; with
// queueing disabled the state becomes error.
//
// The returned error is the delivery failure, nil on success. Transition
// misuse (wrong state, no payload) is reported without leaving ready.
func (e *Editor) Send(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateReady {
		e.mu.Unlock()
		return fmt.Errorf("send: %w", ErrInvalidTransition)
	}
	if e.payload == nil {
		e.mu.Unlock()
		return ErrNoPayload
	}
	if e.sender == nil {
		e.mu.Unlock()
		return errors.New("no sender configured")
	}
	payload := *e.payload
	e.state = StateSending
	e.publishLocked()
	e.mu.Unlock()

	err := e.sender.Send(ctx, payload)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil {
		e.lastSendError = ""
		e.state = StateSuccess
		if e.sessionItemID != "" && e.queue != nil {
			if rmErr := e.queue.Remove(e.sessionItemID); rmErr != nil {
				e.log.Warn(ctx, "queued item removal failed",
					logging.String("item_id", e.sessionItemID),
					logging.String("error", rmErr.Error()))
			}
			e.queue.ClearLoadedReference()
			e.sessionItemID = ""
		}
		e.publishLocked()
		e.log.Info(ctx, "fence delivered", logging.String("fence_id", payload.FenceID))
		return nil
	}

	e.lastSendError = err.Error()
	if e.queue == nil {
		e.state = StateError
		e.publishLocked()
		return err
	}

	if e.sessionItemID != "" {
		if upErr := e.queue.Update(e.sessionItemID, payload, err.Error()); upErr != nil {
			e.log.Warn(ctx, "queued item update failed",
				logging.String("item_id", e.sessionItemID),
				logging.String("error", upErr.Error()))
		}
	} else {
		item := e.queue.Enqueue(payload, err.Error())
		e.sessionItemID = item.ID
	}
	e.state = StateReady
	e.publishLocked()
	e.log.Warn(ctx, "delivery failed; fence queued for retry",
		logging.String("fence_id", payload.FenceID),
		logging.String("error", err.Error()))
	return err
}

// AcknowledgeResult returns the editor to ready from the success or error
// state, keeping the committed polygon.
func (e *Editor) AcknowledgeResult() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateSuccess && e.state != StateError {
		return fmt.Errorf("acknowledge: %w", ErrInvalidTransition)
	}
	e.state = StateReady
	e.publishLocked()
	return nil
}

// ---- Pointer gesture events ----

// PointerDown begins a gesture on a handle. The handle must match the
// current handle set; stale handles from before a structural rebuild are
// rejected.
func (e *Editor) PointerDown(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateDrawing && e.state != StateEditing {
		return fmt.Errorf("pointer down: %w", ErrInvalidTransition)
	}
	switch h.Kind {
	case VertexHandle:
		if h.Index < 0 || h.Index >= len(e.ring) {
			return ErrVertexIndex
		}
	case MidpointHandle:
		if h.Index < 0 || h.Index >= len(e.handles.midpoints) {
			return ErrVertexIndex
		}
	}
	e.drag.press(h.Position)
	active := h
	e.active = &active
	return nil
}

// PointerMove feeds pointer motion into the active gesture. Vertex handles
// track the pointer once the drag threshold is crossed; midpoint handles are
// not draggable, so motion only declassifies a subsequent release as a
// click.
func (e *Editor) PointerMove(to model.Vertex) error {
	e.mu.Lock()
	if e.active == nil {
		e.mu.Unlock()
		return ErrNoActiveHandle
	}
	dragging := e.drag.move(to)
	h := *e.active
	e.mu.Unlock()

	if dragging && h.Kind == VertexHandle {
		return e.MoveVertex(h.Index, to)
	}
	return nil
}

// PointerUp ends the active gesture. A click on a vertex handle deletes that
// vertex (with the 3-vertex guard); a click on a midpoint handle inserts a
// vertex on that edge. A release that ends a drag is never also a click, no
// matter which handle it was on.
func (e *Editor) PointerUp() error {
	e.mu.Lock()
	if e.active == nil {
		e.mu.Unlock()
		return ErrNoActiveHandle
	}
	h := *e.active
	e.active = nil
	kind := e.drag.release()
	e.mu.Unlock()

	if kind == GestureDrag {
		return nil
	}
	switch h.Kind {
	case VertexHandle:
		return e.RemoveVertex(h.Index)
	case MidpointHandle:
		return e.InsertVertexAt(h.Index)
	}
	return nil
}

// ---- internals ----

// commitLocked validates the current ring and replaces the committed polygon
// and payload. The fence_id is minted on the first commit of a session and
// reused afterwards.
func (e *Editor) commitLocked() error {
	if err := ValidateRing(e.ring); err != nil {
		return err
	}
	if e.fenceID == "" {
		e.fenceID = NewFenceID()
	}
	p, err := buildPayloadAt(e.ring, e.name, e.notes, e.fenceID, e.now())
	if err != nil {
		return err
	}
	e.committed = model.CloneRing(e.ring)
	e.payload = &p
	return nil
}

// recomputeLocked refreshes stats, the preview payload, the rendered
// polygon, and (for structural changes) the full handle set. Partial handle
// patching is only ever done by MoveVertex.
func (e *Editor) recomputeLocked(rebuildHandles bool) {
	e.stats = ComputeStats(e.ring)

	if ValidateRing(e.ring) == nil {
		if e.previewID == "" {
			e.previewID = NewFenceID()
		}
		if p, err := buildPayloadAt(e.ring, e.name, e.notes, e.previewID, e.now()); err == nil {
			e.preview = &p
		}
	} else {
		e.preview = nil
		if e.state == StateIdle || e.state == StateDrawing {
			e.payload = nil
		}
	}

	e.surface.RenderPolygon(model.CloneRing(e.ring))
	if rebuildHandles {
		e.handles.rebuild(e.ring)
		if e.state == StateDrawing || e.state == StateEditing {
			v, m := e.handles.snapshot()
			e.surface.PlaceHandles(v, m)
		} else {
			e.surface.PlaceHandles(nil, nil)
		}
	}
	e.publishLocked()
}

// resetSessionLocked drops all per-fence state and the loaded-queue-item
// reference.
func (e *Editor) resetSessionLocked() {
	e.ring = nil
	e.committed = nil
	e.payload = nil
	e.preview = nil
	e.fenceID = ""
	e.previewID = ""
	e.name = ""
	e.notes = ""
	e.lastSendError = ""
	e.active = nil
	if e.sessionItemID != "" && e.queue != nil {
		e.queue.ClearLoadedReference()
	}
	e.sessionItemID = ""
}

func (e *Editor) publishLocked() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetEditorState(e.state.String())
	e.metrics.SetRingVertices(len(e.ring))
}
