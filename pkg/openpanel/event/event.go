// Package event defines the payloads the SDK delivers and their wire codec.
//
// An Event is a closed tagged variant over five kinds: track, identify,
// alias, increment, and decrement. Exactly one payload is set, and Kind
// names which. On the wire an event is
//
//	{"type": "<kind>", "payload": {...}}
package event

import (
	"errors"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/value"
)

// Kind is the event discriminant.
type Kind string

// Event kinds accepted by the collection endpoint.
const (
	KindTrack     Kind = "track"
	KindIdentify  Kind = "identify"
	KindAlias     Kind = "alias"
	KindIncrement Kind = "increment"
	KindDecrement Kind = "decrement"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindTrack, KindIdentify, KindAlias, KindIncrement, KindDecrement}

// Validation errors.
var (
	ErrEmptyName      = errors.New("event name is required")
	ErrEmptyProfileID = errors.New("profile id is required")
	ErrEmptyAlias     = errors.New("alias is required")
	ErrEmptyProperty  = errors.New("property is required")
	ErrNoPayload      = errors.New("event has no payload")
)

// TrackPayload records a named event. ProfileID may be empty at
// construction; the dispatch pipeline stamps the current identity.
type TrackPayload struct {
	Name       string           `json:"name"`
	Properties value.Properties `json:"properties,omitempty"`
	ProfileID  string           `json:"profileId,omitempty"`
}

// IdentifyPayload attaches traits to a profile.
type IdentifyPayload struct {
	ProfileID  string           `json:"profileId"`
	FirstName  string           `json:"firstName,omitempty"`
	LastName   string           `json:"lastName,omitempty"`
	Email      string           `json:"email,omitempty"`
	Avatar     string           `json:"avatar,omitempty"`
	Properties value.Properties `json:"properties,omitempty"`
}

// HasTraits reports whether the payload carries anything beyond the id.
// Identify calls without traits only switch the active profile.
func (p IdentifyPayload) HasTraits() bool {
	return p.FirstName != "" || p.LastName != "" || p.Email != "" || p.Avatar != "" || len(p.Properties) > 0
}

// AliasPayload links an alias to a profile.
type AliasPayload struct {
	ProfileID string `json:"profileId"`
	Alias     string `json:"alias"`
}

// IncrementPayload increments a numeric profile property.
// A nil Value lets the server apply its default step.
type IncrementPayload struct {
	ProfileID string `json:"profileId"`
	Property  string `json:"property"`
	Value     *int   `json:"value,omitempty"`
}

// DecrementPayload decrements a numeric profile property.
type DecrementPayload struct {
	ProfileID string `json:"profileId"`
	Property  string `json:"property"`
	Value     *int   `json:"value,omitempty"`
}

// Event is one of the five payload kinds. The zero Event is invalid.
// Payloads are copied in and out, so an Event never changes after
// construction; WithProfileID returns a new Event.
type Event struct {
	kind      Kind
	track     *TrackPayload
	identify  *IdentifyPayload
	alias     *AliasPayload
	increment *IncrementPayload
	decrement *DecrementPayload
}

// NewTrack wraps a track payload.
func NewTrack(p TrackPayload) Event {
	p.Properties = p.Properties.Clone()
	return Event{kind: KindTrack, track: &p}
}

// NewIdentify wraps an identify payload.
func NewIdentify(p IdentifyPayload) Event {
	p.Properties = p.Properties.Clone()
	return Event{kind: KindIdentify, identify: &p}
}

// NewAlias wraps an alias payload.
func NewAlias(p AliasPayload) Event {
	return Event{kind: KindAlias, alias: &p}
}

// NewIncrement wraps an increment payload.
func NewIncrement(p IncrementPayload) Event {
	p.Value = copyInt(p.Value)
	return Event{kind: KindIncrement, increment: &p}
}

// NewDecrement wraps a decrement payload.
func NewDecrement(p DecrementPayload) Event {
	p.Value = copyInt(p.Value)
	return Event{kind: KindDecrement, decrement: &p}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Kind returns the event discriminant.
func (e Event) Kind() Kind { return e.kind }

// Track returns the track payload if e is a track event.
func (e Event) Track() (TrackPayload, bool) {
	if e.kind != KindTrack || e.track == nil {
		return TrackPayload{}, false
	}
	p := *e.track
	p.Properties = p.Properties.Clone()
	return p, true
}

// Identify returns the identify payload if e is an identify event.
func (e Event) Identify() (IdentifyPayload, bool) {
	if e.kind != KindIdentify || e.identify == nil {
		return IdentifyPayload{}, false
	}
	p := *e.identify
	p.Properties = p.Properties.Clone()
	return p, true
}

// Alias returns the alias payload if e is an alias event.
func (e Event) Alias() (AliasPayload, bool) {
	if e.kind != KindAlias || e.alias == nil {
		return AliasPayload{}, false
	}
	return *e.alias, true
}

// Increment returns the increment payload if e is an increment event.
func (e Event) Increment() (IncrementPayload, bool) {
	if e.kind != KindIncrement || e.increment == nil {
		return IncrementPayload{}, false
	}
	p := *e.increment
	p.Value = copyInt(p.Value)
	return p, true
}

// Decrement returns the decrement payload if e is a decrement event.
func (e Event) Decrement() (DecrementPayload, bool) {
	if e.kind != KindDecrement || e.decrement == nil {
		return DecrementPayload{}, false
	}
	p := *e.decrement
	p.Value = copyInt(p.Value)
	return p, true
}

// ProfileID returns the profile identifier the event carries, if any.
func (e Event) ProfileID() (string, bool) {
	var id string
	switch e.kind {
	case KindTrack:
		id = e.track.ProfileID
	case KindIdentify:
		id = e.identify.ProfileID
	case KindAlias:
		id = e.alias.ProfileID
	case KindIncrement:
		id = e.increment.ProfileID
	case KindDecrement:
		id = e.decrement.ProfileID
	}
	return id, id != ""
}

// WithProfileID returns a copy of a track event stamped with id when it has
// no identifier yet. Other kinds, and track events that already carry an
// identifier, are returned unchanged.
func (e Event) WithProfileID(id string) Event {
	if e.kind != KindTrack || e.track.ProfileID != "" || id == "" {
		return e
	}
	p := *e.track
	p.ProfileID = id
	return Event{kind: KindTrack, track: &p}
}

// Validate checks the fields the endpoint requires.
func (e Event) Validate() error {
	switch e.kind {
	case KindTrack:
		if e.track.Name == "" {
			return ErrEmptyName
		}
	case KindIdentify:
		if e.identify.ProfileID == "" {
			return ErrEmptyProfileID
		}
	case KindAlias:
		if e.alias.ProfileID == "" {
			return ErrEmptyProfileID
		}
		if e.alias.Alias == "" {
			return ErrEmptyAlias
		}
	case KindIncrement:
		return validateCounter(e.increment.ProfileID, e.increment.Property)
	case KindDecrement:
		return validateCounter(e.decrement.ProfileID, e.decrement.Property)
	default:
		return ErrNoPayload
	}
	return nil
}

func validateCounter(profileID, property string) error {
	if profileID == "" {
		return ErrEmptyProfileID
	}
	if property == "" {
		return ErrEmptyProperty
	}
	return nil
}

// Name returns a short label for logs: the track name, or the kind.
func (e Event) Name() string {
	if e.kind == KindTrack {
		return e.track.Name
	}
	return string(e.kind)
}
