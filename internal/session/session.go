package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/perimetra/fenceline/core"
	"github.com/perimetra/fenceline/internal/logging"
	"github.com/perimetra/fenceline/internal/queue"
	"github.com/perimetra/fenceline/model"
)

// ErrNoFix indicates that no position fix is available yet.
var ErrNoFix = errors.New("no position fix available")

// Geolocator abstracts the positioning source. Implementations wrap whatever
// the host platform offers (browser geolocation, a GPS daemon, a fixed
// test position).
type Geolocator interface {
	// CurrentPosition returns one fix, blocking up to the context deadline.
	CurrentPosition(ctx context.Context) (model.Position, error)
	// WatchPosition streams fixes to fn until the returned stop function is
	// called or the context ends. fn may be called from another goroutine.
	WatchPosition(ctx context.Context, fn func(model.Position)) (stop func(), err error)
}

// StaticGeolocator always reports one fixed position. Useful for tests and
// for running without positioning hardware.
type StaticGeolocator struct {
	Position model.Position
}

func (g StaticGeolocator) CurrentPosition(context.Context) (model.Position, error) {
	return g.Position, nil
}

func (g StaticGeolocator) WatchPosition(ctx context.Context, fn func(model.Position)) (func(), error) {
	fn(g.Position)
	return func() {}, nil
}

// Option customises Controller construction.
type Option func(*Controller)

// WithGeolocator attaches a positioning source. Without one the controller
// falls back to the default center immediately.
func WithGeolocator(g Geolocator) Option {
	return func(c *Controller) { c.geo = g }
}

// WithSurface attaches the map surface the controller recentres.
func WithSurface(s core.MapSurface) Option {
	return func(c *Controller) {
		if s != nil {
			c.surface = s
		}
	}
}

// WithDefaultView overrides the fallback center and zoom used when no fix is
// available.
func WithDefaultView(center model.Vertex, zoom int) Option {
	return func(c *Controller) {
		c.defaultCenter = center
		c.defaultZoom = zoom
	}
}

// WithLocateZoom overrides the zoom applied when recentring on a fix.
func WithLocateZoom(zoom int) Option {
	return func(c *Controller) { c.locateZoom = zoom }
}

// Controller owns one operator session: it mediates between the editor, the
// submission queue, and the positioning source, and decides when the map view
// may move. The view never auto-recentres while the operator is drawing or
// editing; an explicit recenter request always wins.
type Controller struct {
	mu      sync.Mutex
	log     logging.Logger
	editor  *core.Editor
	queue   *queue.Queue
	geo     Geolocator
	surface core.MapSurface

	defaultCenter model.Vertex
	defaultZoom   int
	locateZoom    int

	lastFix   *model.Position
	hasView   bool
	online    bool
	stopWatch func()
}

// NewController wires a session controller around an editor and a queue.
func NewController(editor *core.Editor, q *queue.Queue, log logging.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logging.Noop()
	}
	c := &Controller{
		log:         log,
		editor:      editor,
		queue:       q,
		surface:     core.NopSurface{},
		defaultZoom: 13,
		locateZoom:  17,
		online:      true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Start establishes the initial map view and begins following position fixes.
// A failed or absent geolocation source degrades to the default center; the
// session continues without positioning.
func (c *Controller) Start(ctx context.Context) {
	if c.geo == nil {
		c.setDefaultView(ctx)
		return
	}

	pos, err := c.geo.CurrentPosition(ctx)
	if err != nil {
		c.log.Warn(ctx, "geolocation unavailable; using default center",
			logging.String("error", err.Error()))
		c.setDefaultView(ctx)
	} else {
		c.applyFix(pos, true)
	}

	stop, err := c.geo.WatchPosition(ctx, func(pos model.Position) {
		c.applyFix(pos, false)
	})
	if err != nil {
		c.log.Warn(ctx, "position watch failed", logging.String("error", err.Error()))
		return
	}
	c.mu.Lock()
	c.stopWatch = stop
	c.mu.Unlock()
}

// Stop ends position following.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop := c.stopWatch
	c.stopWatch = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// LastFix returns the most recent position fix, or ErrNoFix.
func (c *Controller) LastFix() (model.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastFix == nil {
		return model.Position{}, ErrNoFix
	}
	return *c.lastFix, nil
}

// Recenter is the explicit user request to jump the view to the current
// position. It is honoured in every editor state. Without a cached fix it
// asks the geolocator for a fresh one.
func (c *Controller) Recenter(ctx context.Context) error {
	c.mu.Lock()
	fix := c.lastFix
	c.mu.Unlock()

	if fix == nil {
		if c.geo == nil {
			return ErrNoFix
		}
		pos, err := c.geo.CurrentPosition(ctx)
		if err != nil {
			return fmt.Errorf("recenter: %w", err)
		}
		fix = &pos
		c.mu.Lock()
		c.lastFix = fix
		c.mu.Unlock()
	}

	c.surface.SetView(model.Vertex{Lat: fix.Lat, Lon: fix.Lon}, c.locateZoom)
	c.mu.Lock()
	c.hasView = true
	c.mu.Unlock()
	return nil
}

// applyFix caches a fix and recentres the view if allowed. The first fix of
// a session always sets the view; later fixes move it only while the editor
// is quiescent, so drawing and editing never lose the operator's framing.
func (c *Controller) applyFix(pos model.Position, initial bool) {
	c.mu.Lock()
	c.lastFix = &pos
	firstView := !c.hasView
	c.mu.Unlock()

	if !initial && !firstView && !c.viewMayFollow() {
		return
	}

	c.surface.SetView(model.Vertex{Lat: pos.Lat, Lon: pos.Lon}, c.locateZoom)
	c.mu.Lock()
	c.hasView = true
	c.mu.Unlock()
}

// viewMayFollow reports whether automatic recentring is permitted for the
// editor's current state.
func (c *Controller) viewMayFollow() bool {
	if c.editor == nil {
		return true
	}
	switch c.editor.State() {
	case core.StateDrawing, core.StateEditing, core.StateSending:
		return false
	default:
		return true
	}
}

func (c *Controller) setDefaultView(ctx context.Context) {
	c.surface.SetView(c.defaultCenter, c.defaultZoom)
	c.mu.Lock()
	c.hasView = true
	c.mu.Unlock()
	c.log.Debug(ctx, "default view set",
		logging.Any("center", c.defaultCenter),
		logging.Int("zoom", c.defaultZoom))
}

// Online reports the last connectivity status fed to SetOnline.
func (c *Controller) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// SetOnline records a connectivity change from the host platform. Regaining
// connectivity triggers one delivery sweep of the submission queue; going
// offline only flips the flag.
func (c *Controller) SetOnline(ctx context.Context, online bool) {
	c.mu.Lock()
	wasOnline := c.online
	c.online = online
	c.mu.Unlock()

	if !online || wasOnline || c.queue == nil || c.queue.Len() == 0 {
		return
	}
	delivered, failed := c.queue.SubmitAll(ctx)
	c.log.Info(ctx, "connectivity regained; queue swept",
		logging.Int("delivered", delivered),
		logging.Int("failed", failed))
}

// ---- Queue-edit session plumbing ----

// LoadQueueItemForEdit pulls a queued item into the editor for rework. The
// queue keeps the item and marks it loaded; the editor tracks it so a later
// send resolves it.
func (c *Controller) LoadQueueItemForEdit(id string) error {
	if c.queue == nil {
		return errors.New("no submission queue configured")
	}
	item, err := c.queue.LoadForEdit(id)
	if err != nil {
		return err
	}
	if err := c.editor.LoadQueueItem(item); err != nil {
		c.queue.ClearLoadedReference()
		return err
	}
	return nil
}

// SaveEditsToLoadedItem writes the editor's committed payload back onto the
// loaded queue item without attempting delivery.
func (c *Controller) SaveEditsToLoadedItem() error {
	if c.queue == nil {
		return errors.New("no submission queue configured")
	}
	payload := c.editor.Payload()
	if payload == nil {
		return core.ErrNoPayload
	}
	return c.queue.SaveEditsToLoadedItem(*payload)
}

// DiscardLoadedEdits abandons the edit session. The queued item is untouched;
// only the loaded marker is dropped and the editor cleared.
func (c *Controller) DiscardLoadedEdits() error {
	if c.queue != nil {
		c.queue.ClearLoadedReference()
	}
	return c.editor.Clear()
}
