package openpanel

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/dispatch"
	operrors "github.com/openpanel-dev/openpanel-go/pkg/openpanel/errors"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/observability"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/state"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/transport"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/useragent"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/value"
)

// trackProfileIDKey is the Track property that overrides the identity.
const trackProfileIDKey = "profileId"

// Client records events and delivers them in acceptance order.
type Client struct {
	opts      Options
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	state     *state.Store
	queue     *state.Queue
	transport *transport.Transport
	pipeline  *dispatch.Pipeline
}

// New creates a Client and starts its delivery worker. Call Close to
// deliver pending events before exit.
func New(opts Options) (*Client, error) {
	if opts.ClientID == "" {
		return nil, ErrClientIDRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var metrics observability.MetricsRecorder = observability.NoopMetrics{}
	if opts.Metrics {
		metrics = observability.NewMetricsRecorder()
	}
	var spans observability.SpanManager = observability.NoopSpanManager{}
	if opts.Tracing {
		spans = observability.NewSpanManager()
	}

	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	ua := opts.UserAgent
	if ua == nil {
		ua = useragent.Default(SDKVersion)
	}

	headers := map[string]string{
		transport.HeaderClientID:   opts.ClientID,
		transport.HeaderSDKName:    SDKName,
		transport.HeaderSDKVersion: SDKVersion,
		transport.HeaderUserAgent:  ua.UserAgent(),
	}
	if opts.ClientSecret != "" {
		headers[transport.HeaderClientSecret] = opts.ClientSecret
	}

	retry := retryConfig(opts, logger, metrics)
	tr := transport.New(transport.Config{
		BaseURL:    apiURL,
		Headers:    headers,
		Retry:      &retry,
		HTTPClient: opts.HTTPClient,
	})

	st := state.NewStore()
	queue := state.NewQueue(state.QueueConfig{
		MaxSize: opts.MaxQueueSize,
		OnDrop: func(e event.Event) {
			observability.LogDropped(logger, string(e.Kind()), "queue_overflow")
			metrics.RecordDropped(context.Background(), string(e.Kind()), "queue_overflow")
		},
	})

	var onError func(dispatch.Delivery, error)
	if opts.OnError != nil {
		onError = func(d dispatch.Delivery, err error) { opts.OnError(d.Event, err) }
	}

	pipeline, err := dispatch.New(dispatch.Config{
		Sender:         tr,
		State:          st,
		Queue:          queue,
		Filter:         opts.Filter,
		Disabled:       opts.Disabled,
		WaitForProfile: opts.WaitForProfile,
		BufferSize:     opts.QueueBufferSize,
		Logger:         logger,
		Metrics:        metrics,
		Spans:          spans,
		DeadLetters:    opts.DeadLetters,
		OnError:        onError,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		state:     st,
		queue:     queue,
		transport: tr,
		pipeline:  pipeline,
	}, nil
}

func retryConfig(opts Options, logger *slog.Logger, metrics observability.MetricsRecorder) operrors.RetryConfig {
	retryOpts := []operrors.RetryOption{
		operrors.WithOnRetry(func(retry int, delay time.Duration, err error) {
			observability.LogRetry(logger, retry, delay, err)
			metrics.RecordRetry(context.Background(), retry)
		}),
	}
	if opts.MaxRetries != nil {
		retryOpts = append(retryOpts, operrors.WithMaxRetries(*opts.MaxRetries))
	}
	if opts.InitialRetryDelay > 0 {
		retryOpts = append(retryOpts, operrors.WithInitialBackoff(opts.InitialRetryDelay))
	}
	return operrors.NewRetryConfig(retryOpts...)
}

// Track records a named event. Global properties are the defaults and
// properties win on collision. A string "profileId" property sets the
// event's profile id; otherwise the current identity is used.
func (c *Client) Track(name string, properties map[string]any) {
	props, err := value.PropertiesFromMap(properties)
	if err != nil {
		c.reject(event.KindTrack, err)
		return
	}

	payload := event.TrackPayload{
		Name:       name,
		Properties: c.state.EnrichTrack(props),
	}
	if id, ok := properties[trackProfileIDKey].(string); ok {
		payload.ProfileID = id
	}
	c.submit(event.NewTrack(payload))
}

// Identify sets the current profile identity and releases any events held
// while waiting for it. An empty ProfileID clears the identity. The identify
// event itself is sent only when the payload carries traits; global
// properties are merged under its own.
func (c *Client) Identify(payload event.IdentifyPayload) {
	c.pipeline.Release(func() { c.state.SetProfileID(payload.ProfileID) })

	if !payload.HasTraits() {
		return
	}
	payload.Properties = c.state.EnrichIdentify(payload.Properties)
	c.submit(event.NewIdentify(payload))
}

// Alias links alias to a profile.
func (c *Client) Alias(payload event.AliasPayload) {
	c.submit(event.NewAlias(payload))
}

// Increment increases a numeric profile property.
func (c *Client) Increment(payload event.IncrementPayload) {
	c.submit(event.NewIncrement(payload))
}

// Decrement decreases a numeric profile property.
func (c *Client) Decrement(payload event.DecrementPayload) {
	c.submit(event.NewDecrement(payload))
}

// Submit accepts a prebuilt event as is. Global properties are not merged;
// the current identity is stamped when the event has no profile id.
func (c *Client) Submit(e event.Event) error {
	return c.pipeline.Submit(e)
}

// SetGlobalProperties merges properties into the global properties.
func (c *Client) SetGlobalProperties(properties map[string]any) {
	props, err := value.PropertiesFromMap(properties)
	if err != nil {
		c.logger.Warn("global properties rejected", slog.String("error", err.Error()))
		return
	}
	c.state.MergeGlobal(props)
}

// GlobalProperties returns a copy of the global properties, or nil.
func (c *Client) GlobalProperties() value.Properties {
	return c.state.GlobalProperties()
}

// ProfileID returns the current profile identity.
func (c *Client) ProfileID() (string, bool) {
	return c.state.ProfileID()
}

// Clear forgets the profile identity and the global properties. Events
// already accepted are unaffected.
func (c *Client) Clear() {
	c.state.Reset()
}

// Flush releases events held while waiting for a profile, stamped with
// the current identity if there is one. Waiting stays on.
func (c *Client) Flush() {
	c.pipeline.Release(nil)
}

// Ready stops waiting for a profile and releases held events.
func (c *Client) Ready() {
	c.pipeline.StopWaiting()
}

// AddHeader sets a header sent with every later request.
func (c *Client) AddHeader(key, value string) {
	c.transport.AddHeader(key, value)
}

// Pending returns the number of accepted events not yet delivered,
// including events held while waiting for a profile.
func (c *Client) Pending() int {
	return c.pipeline.Pending() + c.queue.Len()
}

// Close stops accepting events and waits until accepted deliveries finish
// or ctx ends. Events still held for a profile are discarded.
func (c *Client) Close(ctx context.Context) error {
	return c.pipeline.Close(ctx)
}

func (c *Client) submit(e event.Event) {
	if err := c.pipeline.Submit(e); err != nil {
		c.logger.Debug("event not accepted",
			slog.String("event_type", string(e.Kind())),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) reject(kind event.Kind, err error) {
	c.logger.Warn("event dropped",
		slog.String("event_type", string(kind)),
		slog.String("error", (&operrors.EncodingError{Kind: string(kind), Err: err}).Error()),
	)
}
