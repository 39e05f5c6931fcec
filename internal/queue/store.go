package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/perimetra/fenceline/model"
)

// Store persists the queue's full contents. Every mutating queue operation
// ends with one Save of the complete item list, so a crash immediately after
// a successful operation cannot lose that mutation and a crash during the
// write at worst reverts to the pre-mutation state.
type Store interface {
	// Load returns all persisted items. A missing record yields an empty
	// slice; a corrupt one yields an error, which the queue treats as an
	// empty queue.
	Load() ([]model.QueueItem, error)
	// Save atomically replaces the persisted record with items.
	Save(items []model.QueueItem) error
	// Close releases the underlying storage.
	Close() error
}

var (
	queueBucket = []byte("submission_queue")
	itemsKey    = []byte("items")
)

// BoltStore keeps the queue in a single bbolt bucket as one JSON array.
// bbolt transactions are atomic, which is what makes the Save contract hold.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if needed) the queue database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue store %q: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// Load implements Store.
func (s *BoltStore) Load() ([]model.QueueItem, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(queueBucket)
		if b == nil {
			return nil
		}
		if v := b.Get(itemsKey); v != nil {
			raw = append(raw, v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read queue record: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var items []model.QueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode queue record: %w", err)
	}
	return items, nil
}

// Save implements Store.
func (s *BoltStore) Save(items []model.QueueItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue record: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(queueBucket)
		if err != nil {
			return err
		}
		return b.Put(itemsKey, raw)
	})
	if err != nil {
		return fmt.Errorf("write queue record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemStore is an in-memory Store for tests and for running with persistence
// disabled.
type MemStore struct {
	mu    sync.Mutex
	items []model.QueueItem
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore { return &MemStore{} }

// Load implements Store.
func (s *MemStore) Load() ([]model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QueueItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Save implements Store.
func (s *MemStore) Save(items []model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]model.QueueItem, len(items))
	copy(s.items, items)
	return nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }
