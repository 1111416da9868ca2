package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline operations.
var (
	// ErrPipelineClosed is returned by Submit after Close.
	ErrPipelineClosed = errors.New("dispatch pipeline closed")

	// ErrNoSender indicates a Config without a Sender.
	ErrNoSender = errors.New("dispatch: sender is required")
)

// PanicError captures a panic raised while delivering an event.
type PanicError struct {
	// DeliveryID identifies the delivery that panicked.
	DeliveryID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("delivery %s panicked: %v", e.DeliveryID, e.Value)
}
