// Package deadletter keeps deliveries that failed after all retries so
// they can be inspected. Records are never re-sent automatically.
package deadletter

import "errors"

// Store persists dead-letter records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record. A record with the same ID is replaced in place.
	Save(rec Record) error

	// Load retrieves a record by ID.
	// Returns ErrNotFound if it doesn't exist.
	Load(id string) (Record, error)

	// List returns up to limit records, oldest first. limit <= 0 means all.
	List(limit int) ([]Record, error)

	// Delete removes a record.
	// Returns nil if it doesn't exist.
	Delete(id string) error

	// Count returns the number of stored records.
	Count() (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for dead-letter operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("dead letter not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("dead letter store closed")
)
