package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/deadletter"
	operrors "github.com/openpanel-dev/openpanel-go/pkg/openpanel/errors"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/observability"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/state"
)

// Sender posts one encoded event. *transport.Transport satisfies it.
type Sender interface {
	Send(ctx context.Context, path string, body any, overrides map[string]string) ([]byte, error)
}

// Delivery is one unit of work in the FIFO.
type Delivery struct {
	ID         uuid.UUID
	Event      event.Event
	AcceptedAt time.Time
}

// Config configures a Pipeline.
type Config struct {
	// Sender performs the HTTP call. Required.
	Sender Sender

	// State provides the profile identity used for waiting and stamping.
	// Default: a fresh state.Store
	State *state.Store

	// Queue holds events accepted while waiting for a profile.
	// Default: an unbounded state.Queue
	Queue *state.Queue

	// Filter drops events it returns false for. Nil allows everything.
	Filter func(event.Event) bool

	// Disabled drops every event before any other step.
	Disabled bool

	// WaitForProfile holds events in Queue until a profile is identified
	// or Release turns waiting off.
	WaitForProfile bool

	// BufferSize preallocates the FIFO. The FIFO grows past it; Submit
	// never blocks on delivery.
	// Default: 1024
	BufferSize int

	// Path is appended to the Sender's base URL.
	// Default: "/track"
	Path string

	// Logger receives delivery logs. Nil disables logging.
	Logger *slog.Logger

	// Metrics records delivery metrics.
	// Default: observability.NoopMetrics{}
	Metrics observability.MetricsRecorder

	// Spans traces deliveries.
	// Default: observability.NoopSpanManager{}
	Spans observability.SpanManager

	// DeadLetters stores deliveries that failed terminally. Optional.
	DeadLetters deadletter.Store

	// OnError is called from the worker after a delivery fails. It may
	// Submit.
	OnError func(d Delivery, err error)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	BufferSize: 1024,
	Path:       "/track",
}

// Pipeline is the single-worker delivery queue.
type Pipeline struct {
	cfg Config

	// mu serializes acceptance: the wait check, queue access, and the
	// FIFO append happen as one step relative to Release and Close. Nothing
	// blocks while mu is held.
	mu      sync.Mutex
	waiting bool
	closed  bool
	fifo    []Delivery

	// wake has capacity 1 and is signalled after every append and on Close.
	wake    chan struct{}
	pending atomic.Int64
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Pipeline and starts its worker.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sender == nil {
		return nil, ErrNoSender
	}
	if cfg.State == nil {
		cfg.State = state.NewStore()
	}
	if cfg.Queue == nil {
		cfg.Queue = state.NewQueue(state.QueueConfig{})
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig.BufferSize
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig.Path
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:     cfg,
		waiting: cfg.WaitForProfile,
		fifo:    make([]Delivery, 0, cfg.BufferSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	go p.run()

	return p, nil
}

// Submit accepts an event. It never waits on the network or on the worker,
// so it is safe to call from OnError.
//
// Disabled, filtered, and queued events return nil. An event with no
// payload is dropped with ErrNoPayload; other validation failures are
// logged and the event is still sent. After Close, ErrPipelineClosed.
func (p *Pipeline) Submit(e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		observability.LogDropped(p.cfg.Logger, string(e.Kind()), "closed")
		return ErrPipelineClosed
	}
	if p.cfg.Disabled {
		return nil
	}
	if p.cfg.Filter != nil && !p.cfg.Filter(e) {
		observability.LogDropped(p.cfg.Logger, string(e.Kind()), "filter")
		p.cfg.Metrics.RecordDropped(p.ctx, string(e.Kind()), "filter")
		return nil
	}
	if err := e.Validate(); errors.Is(err, event.ErrNoPayload) {
		observability.LogDropped(p.cfg.Logger, string(e.Kind()), "invalid")
		p.cfg.Metrics.RecordDropped(p.ctx, string(e.Kind()), "invalid")
		return err
	} else if err != nil && p.cfg.Logger != nil {
		p.cfg.Logger.Warn("incomplete event sent",
			slog.String("event_type", string(e.Kind())),
			slog.String("error", err.Error()),
		)
	}

	if _, ok := p.cfg.State.ProfileID(); p.waiting && !ok {
		p.cfg.Queue.Enqueue(e)
		depth := p.cfg.Queue.Len()
		observability.LogQueued(p.cfg.Logger, string(e.Kind()), depth)
		p.cfg.Metrics.RecordQueueDepth(p.ctx, int64(depth))
		return nil
	}

	p.pushLocked(e)
	return nil
}

// Release runs fn, then drains the pre-identity queue into the FIFO
// in acceptance order. Drained events skip the wait check. fn and the drain
// run under the acceptance lock, so nothing submitted concurrently can
// overtake the drained events. fn may be nil and must not call back into
// the Pipeline.
//
// After Close, fn still runs but drained events are discarded.
func (p *Pipeline) Release(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fn != nil {
		fn()
	}
	p.releaseLocked()
}

// StopWaiting turns waiting off and releases the queue in one step.
func (p *Pipeline) StopWaiting() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.waiting = false
	p.releaseLocked()
}

func (p *Pipeline) releaseLocked() {
	drained := p.cfg.Queue.DrainAll()
	if len(drained) == 0 {
		return
	}

	p.cfg.Metrics.RecordQueueDepth(p.ctx, 0)
	observability.LogReleased(p.cfg.Logger, len(drained))
	if p.closed {
		for _, e := range drained {
			observability.LogDropped(p.cfg.Logger, string(e.Kind()), "closed")
		}
		return
	}
	for _, e := range drained {
		p.pushLocked(e)
	}
}

// SetWaitForProfile changes the waiting mode for events accepted from now on.
// Callers turning waiting off usually want Release so the queue drains too.
func (p *Pipeline) SetWaitForProfile(wait bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting = wait
}

// WaitingForProfile reports whether new events are held until a profile is
// identified.
func (p *Pipeline) WaitingForProfile() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}

// Pending returns the number of accepted deliveries not yet finished.
// Events held in the pre-identity queue are not counted.
func (p *Pipeline) Pending() int {
	return int(p.pending.Load())
}

// Close stops accepting events and waits for the worker to finish the
// deliveries already accepted. If ctx ends first, the in-flight delivery is
// cancelled and ctx.Err() is returned. Close is idempotent.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.signal()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

// pushLocked stamps and enqueues e. Caller holds mu.
func (p *Pipeline) pushLocked(e event.Event) {
	if id, ok := p.cfg.State.ProfileID(); ok {
		e = e.WithProfileID(id)
	}
	p.pending.Add(1)
	p.fifo = append(p.fifo, Delivery{
		ID:         uuid.New(),
		Event:      e,
		AcceptedAt: time.Now(),
	})
	p.signal()
}

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest delivery, waiting for one. It returns false once the
// pipeline is closed and the FIFO is empty.
func (p *Pipeline) next() (Delivery, bool) {
	for {
		p.mu.Lock()
		if len(p.fifo) > 0 {
			d := p.fifo[0]
			p.fifo[0] = Delivery{}
			p.fifo = p.fifo[1:]
			p.mu.Unlock()
			return d, true
		}
		closed := p.closed
		p.mu.Unlock()

		if closed {
			return Delivery{}, false
		}
		<-p.wake
	}
}

// run is the single worker.
func (p *Pipeline) run() {
	defer close(p.done)
	for {
		d, ok := p.next()
		if !ok {
			return
		}
		p.deliver(d)
		p.pending.Add(-1)
	}
}

// deliver performs one delivery, retries included, and reports the outcome.
func (p *Pipeline) deliver(d Delivery) {
	id := d.ID.String()
	kind := string(d.Event.Kind())

	ctx, span := p.cfg.Spans.StartDeliverySpan(p.ctx, kind, id)
	observability.LogDeliveryStart(p.cfg.Logger, id, kind)
	elapsed := observability.TimedOperation()
	start := time.Now()

	err := p.send(ctx, d)

	p.cfg.Metrics.RecordDelivery(ctx, kind, time.Since(start), err)
	p.cfg.Spans.EndSpanWithError(span, err)

	if err == nil {
		observability.LogDeliveryComplete(p.cfg.Logger, id, kind, elapsed())
		return
	}

	observability.LogDeliveryError(p.cfg.Logger, id, kind, err, elapsed())
	p.deadLetter(d, err)
	if p.cfg.OnError != nil {
		p.cfg.OnError(d, err)
	}
}

// send calls the Sender, converting a panic into a *PanicError.
func (p *Pipeline) send(ctx context.Context, d Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				DeliveryID: d.ID.String(),
				Value:      r,
				Stack:      string(debug.Stack()),
			}
		}
	}()

	_, err = p.cfg.Sender.Send(ctx, p.cfg.Path, d.Event, nil)
	return err
}

func (p *Pipeline) deadLetter(d Delivery, cause error) {
	if p.cfg.DeadLetters == nil {
		return
	}

	payload, _ := event.Marshal(d.Event)

	attempts := operrors.Attempts(cause)
	if attempts == 0 {
		attempts = 1
	}

	rec := deadletter.NewRecord(d.ID.String(), string(d.Event.Kind()), payload, cause, attempts)
	if err := p.cfg.DeadLetters.Save(rec); err != nil {
		observability.LogDeadLetterError(p.cfg.Logger, d.ID.String(), err)
	}
}
