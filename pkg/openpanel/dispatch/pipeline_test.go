package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/deadletter"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/dispatch"
	operrors "github.com/openpanel-dev/openpanel-go/pkg/openpanel/errors"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/state"
)

// fakeSender records deliveries and flags overlapping calls.
type fakeSender struct {
	mu       sync.Mutex
	events   []event.Event
	paths    []string
	inFlight atomic.Int32
	overlap  atomic.Bool
	fail     func(event.Event) error
	delay    time.Duration
}

func (f *fakeSender) Send(ctx context.Context, path string, body any, _ map[string]string) ([]byte, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	e, ok := body.(event.Event)
	if !ok {
		return nil, fmt.Errorf("unexpected body %T", body)
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.events = append(f.events, e)
	f.paths = append(f.paths, path)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(e); err != nil {
			return nil, err
		}
	}
	return []byte(`{}`), nil
}

func (f *fakeSender) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Name()
	}
	return out
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func track(name string) event.Event {
	return event.NewTrack(event.TrackPayload{Name: name})
}

func newPipeline(t *testing.T, cfg dispatch.Config) *dispatch.Pipeline {
	t.Helper()
	p, err := dispatch.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

func closePipeline(t *testing.T, p *dispatch.Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

func TestNew_RequiresSender(t *testing.T) {
	_, err := dispatch.New(dispatch.Config{})
	assert.ErrorIs(t, err, dispatch.ErrNoSender)
}

func TestPipeline_DeliversInAcceptanceOrder(t *testing.T) {
	sender := &fakeSender{}
	p := newPipeline(t, dispatch.Config{Sender: sender})

	var want []string
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("e%d", i)
		want = append(want, name)
		require.NoError(t, p.Submit(track(name)))
	}
	closePipeline(t, p)

	assert.Equal(t, want, sender.names())
	assert.False(t, sender.overlap.Load())
	assert.Equal(t, 0, p.Pending())
	for _, path := range sender.paths {
		assert.Equal(t, "/track", path)
	}
}

func TestPipeline_Disabled(t *testing.T) {
	sender := &fakeSender{}
	p := newPipeline(t, dispatch.Config{Sender: sender, Disabled: true, WaitForProfile: true})

	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(track("x")))
	}
	p.StopWaiting()
	closePipeline(t, p)

	assert.Zero(t, sender.count())
}

func TestPipeline_Filter(t *testing.T) {
	sender := &fakeSender{}
	p := newPipeline(t, dispatch.Config{
		Sender: sender,
		Filter: func(e event.Event) bool { return e.Name() != "secret" },
	})

	require.NoError(t, p.Submit(track("a")))
	require.NoError(t, p.Submit(track("secret")))
	require.NoError(t, p.Submit(track("b")))
	closePipeline(t, p)

	assert.Equal(t, []string{"a", "b"}, sender.names())
}

func TestPipeline_EventWithoutPayloadDropped(t *testing.T) {
	sender := &fakeSender{}
	p := newPipeline(t, dispatch.Config{Sender: sender})

	err := p.Submit(event.Event{})
	assert.ErrorIs(t, err, event.ErrNoPayload)

	closePipeline(t, p)
	assert.Zero(t, sender.count())
}

func TestPipeline_IncompleteEventsAreSent(t *testing.T) {
	sender := &fakeSender{}
	p := newPipeline(t, dispatch.Config{Sender: sender})

	incomplete := []event.Event{
		event.NewAlias(event.AliasPayload{ProfileID: "u1"}),
		event.NewAlias(event.AliasPayload{Alias: "anon"}),
		event.NewIncrement(event.IncrementPayload{Property: "visits"}),
		event.NewDecrement(event.DecrementPayload{Property: "credits"}),
		event.NewIdentify(event.IdentifyPayload{Email: "a@b.c"}),
	}
	for _, e := range incomplete {
		require.NoError(t, p.Submit(e))
	}
	closePipeline(t, p)

	require.Equal(t, len(incomplete), sender.count())
	for i, e := range incomplete {
		assert.Equal(t, e.Kind(), sender.events[i].Kind())
	}
}

func TestPipeline_StampsAnonymousTrack(t *testing.T) {
	sender := &fakeSender{}
	st := state.NewStore()
	st.SetProfileID("u1")
	p := newPipeline(t, dispatch.Config{Sender: sender, State: st})

	require.NoError(t, p.Submit(track("anon")))
	require.NoError(t, p.Submit(event.NewTrack(event.TrackPayload{Name: "explicit", ProfileID: "u2"})))
	require.NoError(t, p.Submit(event.NewAlias(event.AliasPayload{ProfileID: "u3", Alias: "a"})))
	closePipeline(t, p)

	require.Equal(t, 3, sender.count())
	ids := make([]string, 3)
	for i, e := range sender.events {
		ids[i], _ = e.ProfileID()
	}
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids)
}

func TestPipeline_WaitForProfile(t *testing.T) {
	sender := &fakeSender{}
	st := state.NewStore()
	q := state.NewQueue(state.QueueConfig{})
	p := newPipeline(t, dispatch.Config{Sender: sender, State: st, Queue: q, WaitForProfile: true})

	require.NoError(t, p.Submit(track("q1")))
	require.NoError(t, p.Submit(track("q2")))
	require.NoError(t, p.Submit(track("q3")))

	// Nothing reaches the sender while waiting.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sender.count())
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 0, p.Pending())

	p.Release(func() { st.SetProfileID("u1") })
	require.NoError(t, p.Submit(track("after")))
	closePipeline(t, p)

	assert.Equal(t, []string{"q1", "q2", "q3", "after"}, sender.names())
	for _, e := range sender.events {
		id, ok := e.ProfileID()
		assert.True(t, ok)
		assert.Equal(t, "u1", id, "stamped at release time")
	}
	assert.True(t, p.WaitingForProfile(), "identify does not turn waiting off")
}

func TestPipeline_StopWaitingBypassesWaitCheck(t *testing.T) {
	sender := &fakeSender{}
	p := newPipeline(t, dispatch.Config{Sender: sender, WaitForProfile: true})

	require.NoError(t, p.Submit(track("q1")))
	require.NoError(t, p.Submit(track("q2")))

	p.StopWaiting()
	assert.False(t, p.WaitingForProfile())

	require.NoError(t, p.Submit(track("n1")))
	closePipeline(t, p)

	assert.Equal(t, []string{"q1", "q2", "n1"}, sender.names())
	for _, e := range sender.events {
		_, ok := e.ProfileID()
		assert.False(t, ok, "no identity to stamp")
	}
}

func TestPipeline_ReleaseWithoutIdentityKeepsWaiting(t *testing.T) {
	sender := &fakeSender{}
	q := state.NewQueue(state.QueueConfig{})
	p := newPipeline(t, dispatch.Config{Sender: sender, Queue: q, WaitForProfile: true})

	require.NoError(t, p.Submit(track("q1")))
	p.Release(nil)
	require.NoError(t, p.Submit(track("q2")))

	assert.Equal(t, 1, q.Len(), "new events are queued again")
	closePipeline(t, p)
	assert.Equal(t, []string{"q1"}, sender.names())
}

func TestPipeline_SetWaitForProfile(t *testing.T) {
	sender := &fakeSender{}
	q := state.NewQueue(state.QueueConfig{})
	p := newPipeline(t, dispatch.Config{Sender: sender, Queue: q})

	assert.False(t, p.WaitingForProfile())
	p.SetWaitForProfile(true)
	require.NoError(t, p.Submit(track("held")))
	assert.Equal(t, 1, q.Len())
}

func TestPipeline_QueuedEventsPrecedeConcurrentSubmits(t *testing.T) {
	sender := &fakeSender{}
	st := state.NewStore()
	p := newPipeline(t, dispatch.Config{Sender: sender, State: st, WaitForProfile: true})

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(track(fmt.Sprintf("q%d", i))))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = p.Submit(track(fmt.Sprintf("n%d", i)))
		}
	}()
	p.Release(func() { st.SetProfileID("u1") })
	wg.Wait()
	closePipeline(t, p)

	names := sender.names()
	require.Len(t, names, 60)
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("q%d", i), names[i])
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, fmt.Sprintf("n%d", i), names[10+i])
	}
}

func TestPipeline_ConcurrentSubmitsNeverOverlap(t *testing.T) {
	sender := &fakeSender{delay: time.Millisecond}
	p := newPipeline(t, dispatch.Config{Sender: sender})

	const producers = 4
	const perProducer = 25

	var wg sync.WaitGroup
	wg.Add(producers)
	for w := 0; w < producers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = p.Submit(track(fmt.Sprintf("p%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()
	closePipeline(t, p)

	assert.False(t, sender.overlap.Load(), "at most one send in flight")

	names := sender.names()
	require.Len(t, names, producers*perProducer)
	next := make(map[int]int)
	for _, name := range names {
		var w, i int
		_, err := fmt.Sscanf(name, "p%d-%d", &w, &i)
		require.NoError(t, err)
		require.Equal(t, next[w], i, "producer %d order", w)
		next[w]++
	}
}

func TestPipeline_FailureDoesNotStopDelivery(t *testing.T) {
	statusErr := &operrors.CategorizedError{
		Err:      &operrors.HTTPStatusError{StatusCode: 500, Endpoint: "http://x/track"},
		Category: operrors.CategoryPermanent,
		Attempts: 1,
	}
	netErr := &operrors.CategorizedError{
		Err:      &operrors.TransportError{Op: "POST", Err: errors.New("refused")},
		Category: operrors.CategoryTransient,
		Attempts: 4,
		Context:  "max retries exceeded",
	}

	sender := &fakeSender{fail: func(e event.Event) error {
		switch e.Name() {
		case "status":
			return statusErr
		case "network":
			return netErr
		}
		return nil
	}}

	dl := deadletter.NewMemoryStore(0)
	var mu sync.Mutex
	var failed []string

	p := newPipeline(t, dispatch.Config{
		Sender:      sender,
		DeadLetters: dl,
		OnError: func(d dispatch.Delivery, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, d.Event.Name())
		},
	})

	for _, name := range []string{"a", "status", "b", "network", "c"} {
		require.NoError(t, p.Submit(track(name)))
	}
	closePipeline(t, p)

	assert.Equal(t, []string{"a", "status", "b", "network", "c"}, sender.names())
	assert.Equal(t, []string{"status", "network"}, failed)

	records, err := dl.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "track", records[0].EventType)
	assert.Equal(t, 1, records[0].Attempts)
	assert.Equal(t, 4, records[1].Attempts)
	assert.Contains(t, string(records[1].Payload), `"name":"network"`)
	assert.Contains(t, records[1].Error, "refused")
}

type panicSender struct{ calls atomic.Int32 }

func (s *panicSender) Send(_ context.Context, _ string, body any, _ map[string]string) ([]byte, error) {
	if s.calls.Add(1) == 1 {
		panic("boom")
	}
	return nil, nil
}

func TestPipeline_RecoversSenderPanic(t *testing.T) {
	sender := &panicSender{}
	errs := make(chan error, 1)
	p := newPipeline(t, dispatch.Config{
		Sender:  sender,
		OnError: func(_ dispatch.Delivery, err error) { errs <- err },
	})

	require.NoError(t, p.Submit(track("a")))
	require.NoError(t, p.Submit(track("b")))
	closePipeline(t, p)

	assert.Equal(t, int32(2), sender.calls.Load(), "worker survives the panic")

	err := <-errs
	var panicErr *dispatch.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "boom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestPipeline_Close(t *testing.T) {
	t.Run("rejects submits after close", func(t *testing.T) {
		sender := &fakeSender{}
		p := newPipeline(t, dispatch.Config{Sender: sender})
		closePipeline(t, p)

		assert.ErrorIs(t, p.Submit(track("late")), dispatch.ErrPipelineClosed)
		assert.Zero(t, sender.count())
	})

	t.Run("idempotent", func(t *testing.T) {
		p := newPipeline(t, dispatch.Config{Sender: &fakeSender{}})
		closePipeline(t, p)
		closePipeline(t, p)
	})

	t.Run("drains accepted deliveries", func(t *testing.T) {
		sender := &fakeSender{delay: 2 * time.Millisecond}
		p := newPipeline(t, dispatch.Config{Sender: sender})
		for i := 0; i < 10; i++ {
			require.NoError(t, p.Submit(track(fmt.Sprintf("e%d", i))))
		}
		closePipeline(t, p)
		assert.Equal(t, 10, sender.count())
	})

	t.Run("deadline cancels in-flight delivery", func(t *testing.T) {
		sender := &fakeSender{delay: time.Hour}
		p := newPipeline(t, dispatch.Config{Sender: sender})
		require.NoError(t, p.Submit(track("slow")))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := p.Close(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("release after close discards queue", func(t *testing.T) {
		sender := &fakeSender{}
		q := state.NewQueue(state.QueueConfig{})
		p := newPipeline(t, dispatch.Config{Sender: sender, Queue: q, WaitForProfile: true})
		require.NoError(t, p.Submit(track("q")))
		closePipeline(t, p)

		ran := false
		p.Release(func() { ran = true })
		assert.True(t, ran)
		assert.Equal(t, 0, q.Len())
		assert.Zero(t, sender.count())
	})
}

func TestPipeline_Pending(t *testing.T) {
	gate := make(chan struct{})
	sender := &gatedSender{gate: gate}
	p := newPipeline(t, dispatch.Config{Sender: sender})

	require.NoError(t, p.Submit(track("a")))
	require.NoError(t, p.Submit(track("b")))
	assert.Equal(t, 2, p.Pending())

	close(gate)
	closePipeline(t, p)
	assert.Equal(t, 0, p.Pending())
}

type gatedSender struct{ gate chan struct{} }

func (s *gatedSender) Send(ctx context.Context, _ string, _ any, _ map[string]string) ([]byte, error) {
	select {
	case <-s.gate:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPipeline_CloseWithHungSender(t *testing.T) {
	sender := &gatedSender{gate: make(chan struct{})}
	p := newPipeline(t, dispatch.Config{Sender: sender, BufferSize: 1})

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 3; i++ {
			_ = p.Submit(track(fmt.Sprintf("e%d", i)))
		}
	}()

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked behind a hung delivery")
	}
	assert.Equal(t, 3, p.Pending())

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		closed <- p.Close(ctx)
	}()

	select {
	case err := <-closed:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not honour its deadline")
	}
}

func TestPipeline_OnErrorMaySubmit(t *testing.T) {
	sender := &fakeSender{fail: func(event.Event) error {
		return &operrors.TransportError{Op: "post", Err: errors.New("down")}
	}}

	var p *dispatch.Pipeline
	p = newPipeline(t, dispatch.Config{
		Sender:     sender,
		BufferSize: 1,
		OnError: func(d dispatch.Delivery, _ error) {
			if d.Event.Name() != "delivery_failed" {
				_ = p.Submit(track("delivery_failed"))
			}
		},
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(track(fmt.Sprintf("e%d", i))))
	}

	require.Eventually(t, func() bool { return sender.count() == 10 }, 2*time.Second, 5*time.Millisecond)
	closePipeline(t, p)

	failed := 0
	for _, name := range sender.names() {
		if name == "delivery_failed" {
			failed++
		}
	}
	assert.Equal(t, 5, failed)
	assert.False(t, sender.overlap.Load())
}
