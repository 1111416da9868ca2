package collector

import "sync"

// Fault makes the next Count /track requests fail with StatusCode.
type Fault struct {
	StatusCode int    `json:"status_code"`
	Count      int    `json:"count"`
	Body       string `json:"body,omitempty"`
	DelayMS    int    `json:"delay_ms,omitempty"`
}

// Faults holds the active fault. Safe for concurrent use.
type Faults struct {
	mu     sync.Mutex
	active *Fault
}

// Set replaces the active fault. A Count <= 0 means one request.
func (f *Faults) Set(fault Fault) {
	if fault.Count <= 0 {
		fault.Count = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = &fault
}

// Take consumes one use of the active fault and returns it, or nil.
func (f *Faults) Take() *Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return nil
	}
	out := *f.active
	f.active.Count--
	if f.active.Count == 0 {
		f.active = nil
	}
	return &out
}

// Reset clears the active fault.
func (f *Faults) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = nil
}
