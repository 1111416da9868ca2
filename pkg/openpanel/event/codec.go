package event

import (
	"encoding/json"
	"fmt"

	operrors "github.com/openpanel-dev/openpanel-go/pkg/openpanel/errors"
)

// envelope is the wire shape of every event.
type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decoders is the tag-dispatch table: one entry per kind.
var decoders = map[Kind]func(json.RawMessage) (Event, error){
	KindTrack: func(raw json.RawMessage) (Event, error) {
		var p TrackPayload
		err := json.Unmarshal(raw, &p)
		return Event{kind: KindTrack, track: &p}, err
	},
	KindIdentify: func(raw json.RawMessage) (Event, error) {
		var p IdentifyPayload
		err := json.Unmarshal(raw, &p)
		return Event{kind: KindIdentify, identify: &p}, err
	},
	KindAlias: func(raw json.RawMessage) (Event, error) {
		var p AliasPayload
		err := json.Unmarshal(raw, &p)
		return Event{kind: KindAlias, alias: &p}, err
	},
	KindIncrement: func(raw json.RawMessage) (Event, error) {
		var p IncrementPayload
		err := json.Unmarshal(raw, &p)
		return Event{kind: KindIncrement, increment: &p}, err
	},
	KindDecrement: func(raw json.RawMessage) (Event, error) {
		var p DecrementPayload
		err := json.Unmarshal(raw, &p)
		return Event{kind: KindDecrement, decrement: &p}, err
	},
}

// payload returns the record for the active variant.
func (e Event) payload() (any, error) {
	switch e.kind {
	case KindTrack:
		return e.track, nil
	case KindIdentify:
		return e.identify, nil
	case KindAlias:
		return e.alias, nil
	case KindIncrement:
		return e.increment, nil
	case KindDecrement:
		return e.decrement, nil
	}
	return nil, ErrNoPayload
}

// Marshal encodes e in wire form. Failures are *errors.EncodingError.
func Marshal(e Event) ([]byte, error) {
	p, err := e.payload()
	if err != nil {
		return nil, &operrors.EncodingError{Kind: string(e.kind), Err: err}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, &operrors.EncodingError{Kind: string(e.kind), Err: err}
	}
	out, err := json.Marshal(envelope{Type: e.kind, Payload: raw})
	if err != nil {
		return nil, &operrors.EncodingError{Kind: string(e.kind), Err: err}
	}
	return out, nil
}

// Unmarshal decodes a wire-form event. Unknown types and malformed
// payloads are *errors.EncodingError.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, &operrors.EncodingError{Err: err}
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return Event{}, &operrors.EncodingError{Kind: string(env.Type), Err: fmt.Errorf("unknown event type %q", env.Type)}
	}
	if len(env.Payload) == 0 {
		return Event{}, &operrors.EncodingError{Kind: string(env.Type), Err: ErrNoPayload}
	}
	e, err := decode(env.Payload)
	if err != nil {
		return Event{}, &operrors.EncodingError{Kind: string(env.Type), Err: err}
	}
	return e, nil
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	return Marshal(e)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}
