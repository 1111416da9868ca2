// Package state holds the client's shared mutable state: the active
// profile identity, global properties, and the queue of events waiting
// for an identity.
//
// All types are safe for concurrent use. Readers never see a partially
// applied write: every operation runs under a single lock acquisition.
package state

import (
	"sync"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/value"
)

// Store guards the profile identity and global properties.
type Store struct {
	mu        sync.RWMutex
	profileID string
	hasID     bool
	global    value.Properties // nil means absent
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Snapshot is one consistent read of the Store.
type Snapshot struct {
	ProfileID  string
	HasProfile bool
	Global     value.Properties
}

// ProfileID returns the active profile identity.
func (s *Store) ProfileID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileID, s.hasID
}

// SetProfileID replaces the active profile identity.
func (s *Store) SetProfileID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileID = id
	s.hasID = id != ""
}

// GlobalProperties returns a copy of the global properties, or nil if
// none have been set.
func (s *Store) GlobalProperties() value.Properties {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global.Clone()
}

// MergeGlobal merges props into the global properties; props win on key
// collision. Concurrent merges are serialized, so none is lost.
func (s *Store) MergeGlobal(props value.Properties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.global == nil {
		s.global = make(value.Properties, len(props))
	}
	for k, v := range props {
		s.global[k] = v
	}
}

// Reset clears the identity and the global properties together.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileID = ""
	s.hasID = false
	s.global = nil
}

// Snapshot reads identity and global properties under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ProfileID:  s.profileID,
		HasProfile: s.hasID,
		Global:     s.global.Clone(),
	}
}

// EnrichTrack returns the global properties overlaid with props.
// Call-site properties win on key collision.
func (s *Store) EnrichTrack(props value.Properties) value.Properties {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return value.Merge(s.global, props)
}

// EnrichIdentify merges the global properties under props when globals are
// present. Without globals props is returned as a copy.
func (s *Store) EnrichIdentify(props value.Properties) value.Properties {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return props.Clone()
	}
	return value.Merge(s.global, props)
}
