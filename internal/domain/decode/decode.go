// Package decode turns raw bus payloads into typed sensor events.
package decode

import (
	"encoding/json"
	"fmt"

	"github.com/okian/swish/internal/domain/model"
)

// payload is the union of the fields the three event kinds carry.
// Pointers distinguish a missing field from a zero value.
type payload struct {
	TS            *int64 `json:"ts"`
	GripPeak      *int   `json:"grip_peak"`
	GripPeakCamel *int   `json:"gripPeak"`
}

// Decode parses one payload of the given kind. It is stateless and safe
// for concurrent use. Every failure wraps ErrDecode.
func Decode(kind model.Kind, raw []byte) (model.Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", ErrDecode, kind, err)
	}
	if p.TS == nil {
		return nil, fmt.Errorf("%w: %s payload: missing ts", ErrDecode, kind)
	}
	if *p.TS < 0 {
		return nil, fmt.Errorf("%w: %s payload: negative ts %d", ErrDecode, kind, *p.TS)
	}

	switch kind {
	case model.KindRelease:
		grip := p.GripPeak
		if grip == nil {
			grip = p.GripPeakCamel
		}
		if grip == nil {
			return nil, fmt.Errorf("%w: release payload: missing grip_peak", ErrDecode)
		}
		if *grip < 0 {
			return nil, fmt.Errorf("%w: release payload: negative grip_peak %d", ErrDecode, *grip)
		}
		return model.ReleaseEvent{TS: *p.TS, GripPeak: *grip}, nil
	case model.KindApex:
		return model.ApexEvent{TS: *p.TS}, nil
	case model.KindScore:
		return model.ScoreEvent{TS: *p.TS}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnknownTopic, kind)
	}
}

// Encode renders an event in the payload format Decode accepts. The sensor
// simulator publishes with it.
func Encode(ev model.Event) ([]byte, error) {
	switch e := ev.(type) {
	case model.ReleaseEvent:
		return json.Marshal(map[string]int64{"ts": e.TS, "grip_peak": int64(e.GripPeak)})
	case model.ApexEvent, model.ScoreEvent:
		return json.Marshal(map[string]int64{"ts": ev.Timestamp()})
	default:
		return nil, fmt.Errorf("%w: unsupported event %T", ErrUnknownTopic, ev)
	}
}

// Router maps bus topics to event kinds.
type Router struct {
	kinds map[string]model.Kind
}

// NewRouter builds a router for the three configured topics.
func NewRouter(releaseTopic, apexTopic, scoreTopic string) *Router {
	return &Router{kinds: map[string]model.Kind{
		releaseTopic: model.KindRelease,
		apexTopic:    model.KindApex,
		scoreTopic:   model.KindScore,
	}}
}

// Kind resolves a topic.
func (r *Router) Kind(topic string) (model.Kind, error) {
	kind, ok := r.kinds[topic]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return kind, nil
}

// Topics returns topic -> kind pairs for subscription.
func (r *Router) Topics() map[string]model.Kind {
	out := make(map[string]model.Kind, len(r.kinds))
	for t, k := range r.kinds {
		out[t] = k
	}
	return out
}
