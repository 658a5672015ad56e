package dtcollector

import (
	"errors"
	"sync"

	"github.com/deeptrace/deeptrace-go"
	"github.com/deeptrace/deeptrace-go/internal/dtringbuf"
)

// DefaultCapacity of a store.
const DefaultCapacity = 10000

var (
	// ErrDuplicate is returned when a record with the same ID already exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("record not found")
)

// Store keeps the most recent records in memory, keyed by ID. Once the store
// is full, the oldest record is evicted for each new one.
type Store struct {
	mtx     sync.Mutex
	records map[string]*deeptrace.Record
	order   *dtringbuf.RingBuffer[string]
}

// NewStore returns an empty store holding up to capacity records.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		records: make(map[string]*deeptrace.Record, capacity),
		order:   dtringbuf.NewRingBuffer[string](capacity),
	}
}

// Create adds rec to the store.
func (s *Store) Create(rec *deeptrace.Record) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return ErrDuplicate
	}

	s.records[rec.ID] = rec
	if evicted, ok := s.order.Add(rec.ID); ok {
		delete(s.records, evicted)
	}

	return nil
}

// Find returns the record with the given ID.
func (s *Store) Find(id string) (*deeptrace.Record, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	return rec, nil
}

// StoreStats summarizes a store.
type StoreStats struct {
	Count    int    `json:"count"`
	Capacity int    `json:"capacity"`
	Newest   string `json:"newest,omitempty"`
	Oldest   string `json:"oldest,omitempty"`
}

// Stats returns current stats for the store.
func (s *Store) Stats() StoreStats {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	newest, oldest, count := s.order.Stats()
	return StoreStats{
		Count:    count,
		Capacity: s.order.Cap(),
		Newest:   newest,
		Oldest:   oldest,
	}
}
