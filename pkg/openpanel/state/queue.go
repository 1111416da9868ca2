package state

import (
	"sync"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
)

// Queue holds events accepted before a profile identity is known.
type Queue struct {
	mu      sync.Mutex
	events  []event.Event
	maxSize int
	onDrop  func(event.Event)
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	// MaxSize bounds the queue. When full, the oldest event is dropped.
	// Default: 0 (unbounded)
	MaxSize int

	// OnDrop is called, outside the lock, for each event dropped on overflow.
	OnDrop func(event.Event)
}

// NewQueue creates an empty Queue.
func NewQueue(cfg QueueConfig) *Queue {
	return &Queue{
		maxSize: cfg.MaxSize,
		onDrop:  cfg.OnDrop,
	}
}

// Enqueue appends e to the tail.
func (q *Queue) Enqueue(e event.Event) {
	var dropped []event.Event

	q.mu.Lock()
	q.events = append(q.events, e)
	if q.maxSize > 0 && len(q.events) > q.maxSize {
		over := len(q.events) - q.maxSize
		dropped = append(dropped, q.events[:over]...)
		q.events = append([]event.Event(nil), q.events[over:]...)
	}
	q.mu.Unlock()

	if q.onDrop != nil {
		for _, d := range dropped {
			q.onDrop(d)
		}
	}
}

// DrainAll removes and returns every queued event in acceptance order.
func (q *Queue) DrainAll() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.events
	q.events = nil
	return drained
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
