// Package collector is an in-memory stand-in for the /track endpoint.
// It records every accepted event and can inject status-code faults, so
// the SDK can be exercised end to end without a real backend.
package collector

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Received is one stored request.
type Received struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Payload    json.RawMessage   `json:"payload"`
	Headers    map[string]string `json:"headers"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Store holds received events in arrival order. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	events []Received
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Add appends r, assigning an ID and timestamp when missing.
func (s *Store) Add(r Received) Received {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, r)
	return r
}

// All returns a copy of every stored event, oldest first.
func (s *Store) All() []Received {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Received, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns stored events of the given type, oldest first.
func (s *Store) ByType(eventType string) []Received {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Received
	for _, r := range s.events {
		if r.Type == eventType {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Reset removes every stored event.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
