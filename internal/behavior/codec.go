package behavior

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/talgya/swift-dreams/internal/world"
)

// ErrUnknownKind is returned when decoding a behavior with an unrecognised kind.
var ErrUnknownKind = errors.New("unknown behavior kind")

// Envelope is the wire and storage form of a committed behavior.
type Envelope struct {
	Kind  string          `json:"kind"`
	Dest  *world.DestRef  `json:"dest,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

// Wrap converts a behavior into its envelope.
func Wrap(b Behavior) (Envelope, error) {
	if b == nil {
		return Envelope{}, fmt.Errorf("wrap: nil behavior")
	}
	key := b.Key()
	env := Envelope{Kind: key.Kind.String()}
	if key.Dest.ID != 0 {
		dest := key.Dest
		env.Dest = &dest
	}

	var state any
	switch b := b.(type) {
	case *UseDestination:
		state = b.State
	case *Sleep:
		state = b.State
	case *Awaken:
		state = b.State
	}
	if state != nil {
		raw, err := json.Marshal(state)
		if err != nil {
			return Envelope{}, fmt.Errorf("wrap %s state: %w", key.Kind, err)
		}
		env.State = raw
	}
	return env, nil
}

// Unwrap rebuilds a behavior from its envelope.
func Unwrap(env Envelope) (Behavior, error) {
	kind, ok := ParseKind(env.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}

	dest := func() (world.DestRef, error) {
		if env.Dest == nil || env.Dest.ID == 0 {
			return world.DestRef{}, fmt.Errorf("%s: missing destination", kind)
		}
		return *env.Dest, nil
	}
	state := func(v any) error {
		if len(env.State) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.State, v); err != nil {
			return fmt.Errorf("%s state: %w", kind, err)
		}
		return nil
	}

	switch kind {
	case KindIdle:
		return &Idle{}, nil
	case KindWalkTo:
		d, err := dest()
		if err != nil {
			return nil, err
		}
		return &WalkTo{Dest: d}, nil
	case KindUseDestination:
		d, err := dest()
		if err != nil {
			return nil, err
		}
		b := &UseDestination{Dest: d}
		if err := state(&b.State); err != nil {
			return nil, err
		}
		return b, nil
	case KindSleep:
		d, err := dest()
		if err != nil {
			return nil, err
		}
		b := &Sleep{Bed: d.ID}
		if err := state(&b.State); err != nil {
			return nil, err
		}
		return b, nil
	case KindAwaken:
		b := &Awaken{}
		if err := state(&b.State); err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
}

// Encode marshals a behavior to JSON.
func Encode(b Behavior) ([]byte, error) {
	env, err := Wrap(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses JSON produced by Encode.
func Decode(data []byte) (Behavior, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode behavior: %w", err)
	}
	return Unwrap(env)
}
