package deadletter

import (
	"sync"
)

// MemoryStore is an in-memory dead-letter store.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string // ids, oldest first
	records map[string]Record
	maxSize int
	closed  bool
}

// NewMemoryStore creates an in-memory store holding at most maxSize
// records; the oldest record is evicted when full. maxSize <= 0 means
// unbounded.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		maxSize: maxSize,
	}
}

// Save implements Store.
func (m *MemoryStore) Save(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	rec.Payload = append([]byte(nil), rec.Payload...)

	if _, exists := m.records[rec.ID]; exists {
		m.records[rec.ID] = rec
		return nil
	}

	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)

	if m.maxSize > 0 && len(m.order) > m.maxSize {
		evict := m.order[0]
		m.order = m.order[1:]
		delete(m.records, evict)
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec, nil
}

// List implements Store.
func (m *MemoryStore) List(limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	n := len(m.order)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Record, 0, n)
	for _, id := range m.order[:n] {
		rec := m.records[id]
		rec.Payload = append([]byte(nil), rec.Payload...)
		out = append(out, rec)
	}
	return out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if _, ok := m.records[id]; !ok {
		return nil
	}
	delete(m.records, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count implements Store.
func (m *MemoryStore) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.order), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	m.order = nil
	return nil
}
