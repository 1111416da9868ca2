package openpanel

// Lifecycle receives application lifecycle notifications from a
// platform adapter.
type Lifecycle interface {
	// OnForegroundFirstActivation is called when the first window or scene
	// becomes active.
	OnForegroundFirstActivation()

	// OnBackgroundAllInactive is called when no window or scene is active.
	OnBackgroundAllInactive()
}

var _ Lifecycle = (*Client)(nil)

// Names of the events tracked by the Lifecycle hooks.
const (
	EventAppOpened = "app_opened"
	EventAppClosed = "app_closed"
)

// OnForegroundFirstActivation tracks app_opened when AutomaticTracking is on.
func (c *Client) OnForegroundFirstActivation() {
	if c.opts.AutomaticTracking {
		c.Track(EventAppOpened, nil)
	}
}

// OnBackgroundAllInactive tracks app_closed when AutomaticTracking is on.
func (c *Client) OnBackgroundAllInactive() {
	if c.opts.AutomaticTracking {
		c.Track(EventAppClosed, nil)
	}
}
