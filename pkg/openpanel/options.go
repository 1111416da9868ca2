package openpanel

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/config"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/deadletter"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/filter"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/useragent"
)

const (
	// SDKName is sent in the openpanel-sdk-name header.
	SDKName = "go"

	// SDKVersion is sent in the openpanel-sdk-version header.
	SDKVersion = "0.1.0"

	// DefaultAPIURL is used when Options.APIURL is empty.
	DefaultAPIURL = "https://api.openpanel.dev"
)

// Options configures a Client. Only ClientID is required.
type Options struct {
	// ClientID identifies the project. Required.
	ClientID string

	// ClientSecret is sent when set; server-side clients need it.
	ClientSecret string

	// APIURL is the endpoint base URL.
	// Default: DefaultAPIURL
	APIURL string

	// WaitForProfile holds events until Identify or Ready is called.
	WaitForProfile bool

	// Filter drops events it returns false for.
	Filter func(event.Event) bool

	// Disabled drops every event.
	Disabled bool

	// AutomaticTracking makes the Lifecycle hooks track app_opened and
	// app_closed.
	AutomaticTracking bool

	// Logger receives SDK logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// HTTPClient performs requests.
	// Default: http.DefaultClient
	HTTPClient *http.Client

	// MaxRetries bounds retries after a network failure. Nil keeps the
	// default of 3; zero disables retries.
	MaxRetries *int

	// InitialRetryDelay is the wait before the first retry; each later
	// retry doubles it.
	// Default: 500ms
	InitialRetryDelay time.Duration

	// UserAgent supplies the user-agent header.
	// Default: useragent.Default(SDKVersion)
	UserAgent useragent.Provider

	// Metrics records OpenTelemetry metrics through the global meter provider.
	Metrics bool

	// Tracing records OpenTelemetry spans through the global tracer provider.
	Tracing bool

	// DeadLetters keeps deliveries that failed after all retries. The
	// caller owns the store and closes it after Client.Close.
	DeadLetters deadletter.Store

	// QueueBufferSize preallocates the delivery FIFO. It is not a bound.
	// Default: 1024
	QueueBufferSize int

	// MaxQueueSize bounds events held while waiting for a profile; the
	// oldest is dropped when full.
	// Default: 0 (unbounded)
	MaxQueueSize int

	// OnError is called from the delivery worker after a delivery fails.
	// It may call Track and the other event methods.
	OnError func(e event.Event, err error)
}

// OptionsFromConfig reads Options from cfg. Keys:
//
//	client_id, client_secret, api_url, wait_for_profile, disabled,
//	automatic_tracking, max_retries, initial_retry_delay,
//	queue_buffer_size, max_queue_size, user_agent, metrics, tracing,
//	exclude
//
// exclude is a filter expression; matching events are dropped. Missing
// keys keep their zero value, so New applies the defaults.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	opts := Options{
		ClientID:          cfg.String("client_id", ""),
		ClientSecret:      cfg.String("client_secret", ""),
		APIURL:            cfg.String("api_url", ""),
		WaitForProfile:    cfg.Bool("wait_for_profile", false),
		Disabled:          cfg.Bool("disabled", false),
		AutomaticTracking: cfg.Bool("automatic_tracking", false),
		InitialRetryDelay: cfg.Duration("initial_retry_delay", 0),
		QueueBufferSize:   cfg.Int("queue_buffer_size", 0),
		MaxQueueSize:      cfg.Int("max_queue_size", 0),
		Metrics:           cfg.Bool("metrics", false),
		Tracing:           cfg.Bool("tracing", false),
	}
	if cfg.Has("max_retries") {
		n := cfg.Int("max_retries", -1)
		if n >= 0 {
			opts.MaxRetries = &n
		}
	}
	if ua := cfg.String("user_agent", ""); ua != "" {
		opts.UserAgent = useragent.Static(ua)
	}
	if src := cfg.String("exclude", ""); src != "" {
		x, err := filter.Compile(src)
		if err != nil {
			return Options{}, fmt.Errorf("exclude: %w", err)
		}
		opts.Filter = x.Exclude()
	}
	return opts, nil
}
