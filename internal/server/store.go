package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/perimetra/fenceline/model"
)

// StoredFence is a received fence payload together with server-side receipt
// metadata.
type StoredFence struct {
	Payload    model.FencePayload `json:"payload"`
	ReceivedAt time.Time          `json:"receivedAt"`
}

// FenceStore persists received fences. Saving an already-known fence_id
// replaces the stored payload; resubmission after a failed delivery must be
// idempotent from the client's point of view.
type FenceStore interface {
	SaveFence(ctx context.Context, payload model.FencePayload) error
	ListFences(ctx context.Context) ([]StoredFence, error)
	Close()
}

// MemFenceStore is an in-memory FenceStore for tests and for running the
// receiver without a database.
type MemFenceStore struct {
	mu   sync.Mutex
	byID map[string]StoredFence
	now  func() time.Time
}

// NewMemFenceStore returns an empty in-memory store.
func NewMemFenceStore() *MemFenceStore {
	return &MemFenceStore{
		byID: make(map[string]StoredFence),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SaveFence implements FenceStore.
func (s *MemFenceStore) SaveFence(_ context.Context, payload model.FencePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[payload.FenceID] = StoredFence{Payload: payload, ReceivedAt: s.now()}
	return nil
}

// ListFences implements FenceStore. Results are ordered by receipt time,
// newest first.
func (s *MemFenceStore) ListFences(context.Context) ([]StoredFence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredFence, 0, len(s.byID))
	for _, f := range s.byID {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}

// Close implements FenceStore.
func (s *MemFenceStore) Close() {}
