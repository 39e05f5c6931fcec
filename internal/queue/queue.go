package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/perimetra/fenceline/internal/logging"
	"github.com/perimetra/fenceline/model"
)

var (
	// ErrItemNotFound indicates a queue item ID that is not (or no
	// longer) present.
	ErrItemNotFound = errors.New("queue item not found")
	// ErrNoLoadedItem indicates an operation that requires an active
	// loaded-for-edit session when none exists.
	ErrNoLoadedItem = errors.New("no queue item loaded for edit")
)

// MetricsRecorder receives queue gauge and delivery updates. Implemented by
// the observability collector; nil recorders are ignored.
type MetricsRecorder interface {
	SetQueueDepth(n int)
	ObserveDelivery(outcome string, seconds float64)
}

// Option customises Queue construction.
type Option func(*Queue)

// WithMetrics attaches a queue metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithRetryWindow bounds how long RetryPending keeps sweeping before giving
// up.
func WithRetryWindow(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retryWindow = d
		}
	}
}

// Queue is the submission queue: it exclusively owns persisted QueueItems,
// attempts their delivery, and tracks per-item attempt counts and last
// errors. Every mutating operation ends with a full durable rewrite of the
// queue record. Persistence failures are swallowed: the queue keeps working
// in memory for the session and logs the loss of durability.
type Queue struct {
	mu      sync.Mutex
	log     logging.Logger
	store   Store
	sender  Sender
	metrics MetricsRecorder

	items    []model.QueueItem
	loadedID string

	retryWindow time.Duration
	now         func() time.Time
	newID       func() string
}

// New loads the persisted queue from store. Absence or corruption of the
// record is treated as an empty queue, never as a fatal error.
func New(store Store, sender Sender, log logging.Logger, opts ...Option) *Queue {
	if log == nil {
		log = logging.Noop()
	}
	q := &Queue{
		log:         log,
		store:       store,
		sender:      sender,
		retryWindow: 5 * time.Minute,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}

	items, err := store.Load()
	if err != nil {
		log.Warn(context.Background(), "queue record unreadable; starting empty",
			logging.String("error", err.Error()))
		items = nil
	}
	q.items = items
	q.publishDepthLocked()
	return q
}

// Items returns a snapshot copy of the queued items.
func (q *Queue) Items() []model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// LoadedID returns the ID of the item currently loaded for edit, or "".
func (q *Queue) LoadedID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadedID
}

// Enqueue appends a new item for a payload whose delivery failed, with zero
// attempts and the failure cause recorded, and persists the queue.
func (q *Queue) Enqueue(payload model.FencePayload, cause string) model.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := model.QueueItem{
		ID:         q.newID(),
		Payload:    payload,
		EnqueuedAt: q.now(),
		Attempts:   0,
		LastError:  cause,
	}
	q.items = append(q.items, item)
	q.persistLocked()
	q.log.Info(context.Background(), "fence queued for retry",
		logging.String("item_id", item.ID),
		logging.String("fence_id", payload.FenceID))
	return item
}

// Update overwrites an existing item's payload and failure cause in place,
// preserving its ID and enqueue time, and persists the queue.
func (q *Queue) Update(id string, payload model.FencePayload, cause string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("update %s: %w", id, ErrItemNotFound)
	}
	q.items[i].Payload = payload
	q.items[i].LastError = cause
	q.persistLocked()
	return nil
}

// Remove deletes an item and persists the queue. Removing the loaded item
// also drops the loaded reference.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrItemNotFound)
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	if q.loadedID == id {
		q.loadedID = ""
	}
	q.persistLocked()
	return nil
}

// SubmitOne attempts delivery of a single item's current payload. On success
// the item is removed; on failure its attempt count and last error are
// updated. Either way the queue is persisted before returning.
func (q *Queue) SubmitOne(ctx context.Context, id string) error {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return fmt.Errorf("submit %s: %w", id, ErrItemNotFound)
	}
	payload := q.items[i].Payload
	q.mu.Unlock()

	start := time.Now()
	err := q.sender.Send(ctx, payload)
	elapsed := time.Since(start).Seconds()

	q.mu.Lock()
	defer q.mu.Unlock()

	// Re-locate: the queue may have changed while the send was in flight.
	i = q.indexLocked(id)
	if i < 0 {
		return nil
	}

	if err == nil {
		if q.metrics != nil {
			q.metrics.ObserveDelivery("ok", elapsed)
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		if q.loadedID == id {
			q.loadedID = ""
		}
		q.persistLocked()
		q.log.Info(ctx, "queued fence delivered", logging.String("item_id", id))
		return nil
	}

	if q.metrics != nil {
		q.metrics.ObserveDelivery("error", elapsed)
	}
	q.items[i].Attempts++
	q.items[i].LastError = err.Error()
	q.persistLocked()
	q.log.Warn(ctx, "queued fence delivery failed",
		logging.String("item_id", id),
		logging.Int("attempts", q.items[i].Attempts),
		logging.String("error", err.Error()))
	return err
}

// SubmitAll sequentially attempts every item queued at call time; items
// enqueued during the run are left for the next sweep. Each item follows
// SubmitOne semantics independently; there is no cross-item
// transactionality. It returns how many items were delivered and how many
// failed.
func (q *Queue) SubmitAll(ctx context.Context) (delivered, failed int) {
	q.mu.Lock()
	ids := make([]string, 0, len(q.items))
	for _, item := range q.items {
		ids = append(ids, item.ID)
	}
	q.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			failed += len(ids) - delivered - failed
			break
		}
		if err := q.SubmitOne(ctx, id); err != nil {
			if !errors.Is(err, ErrItemNotFound) {
				failed++
			}
			continue
		}
		delivered++
	}
	return delivered, failed
}

// RetryPending sweeps the queue with SubmitAll under an exponential backoff
// until it drains, the retry window elapses, or the context is cancelled.
func (q *Queue) RetryPending(ctx context.Context) error {
	op := func() error {
		if q.Len() == 0 {
			return nil
		}
		_, failed := q.SubmitAll(ctx)
		if failed > 0 {
			return fmt.Errorf("%d items still queued", failed)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = q.retryWindow
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// LoadForEdit marks one item as the active editing target and returns a copy
// for seeding the editor. The item stays queued throughout the edit so an
// abandoned or crashed session never loses the persisted fallback.
func (q *Queue) LoadForEdit(id string) (model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return model.QueueItem{}, fmt.Errorf("load %s: %w", id, ErrItemNotFound)
	}
	q.loadedID = id
	return q.items[i], nil
}

// SaveEditsToLoadedItem overwrites the loaded item's payload in place,
// preserving its ID, and persists the queue. The payload is expected to
// reuse the item's original fence_id; that is the editor's commit policy.
func (q *Queue) SaveEditsToLoadedItem(payload model.FencePayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loadedID == "" {
		return ErrNoLoadedItem
	}
	i := q.indexLocked(q.loadedID)
	if i < 0 {
		q.loadedID = ""
		return ErrNoLoadedItem
	}
	q.items[i].Payload = payload
	q.persistLocked()
	return nil
}

// ClearLoadedReference drops the loaded-for-edit marker without touching
// queue contents.
func (q *Queue) ClearLoadedReference() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadedID = ""
}

// Close releases the underlying store.
func (q *Queue) Close() error {
	return q.store.Close()
}

func (q *Queue) indexLocked(id string) int {
	for i, item := range q.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked rewrites the full queue record. Write errors are swallowed:
// the in-memory queue stays authoritative for the session.
func (q *Queue) persistLocked() {
	if err := q.store.Save(q.items); err != nil {
		q.log.Warn(context.Background(), "queue persistence failed; continuing in memory",
			logging.String("error", err.Error()))
	}
	q.publishDepthLocked()
}

func (q *Queue) publishDepthLocked() {
	if q.metrics != nil {
		q.metrics.SetQueueDepth(len(q.items))
	}
}
