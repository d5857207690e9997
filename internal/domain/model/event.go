// Package model contains domain models passed between layers.
package model

import "time"

// Kind identifies which sensor stream an event came from.
type Kind string

// Event kinds, one per inbound topic.
const (
	KindRelease Kind = "release"
	KindApex    Kind = "apex"
	KindScore   Kind = "score"
)

// Event is a typed sensor event. Timestamps are producer-side monotonic
// milliseconds; they are only comparable within one attempt.
type Event interface {
	Kind() Kind
	Timestamp() int64
}

// ReleaseEvent marks the ball leaving the hand, reported by the grip sensor.
type ReleaseEvent struct {
	TS       int64 // monotonic ms
	GripPeak int   // sum of finger-force readings at release
}

// ApexEvent marks the peak of the jump arc, reported by the foot sensor.
type ApexEvent struct {
	TS int64
}

// ScoreEvent marks a made basket, reported by the hoop sensor.
type ScoreEvent struct {
	TS int64
}

func (e ReleaseEvent) Kind() Kind       { return KindRelease }
func (e ReleaseEvent) Timestamp() int64 { return e.TS }
func (e ApexEvent) Kind() Kind          { return KindApex }
func (e ApexEvent) Timestamp() int64    { return e.TS }
func (e ScoreEvent) Kind() Kind         { return KindScore }
func (e ScoreEvent) Timestamp() int64   { return e.TS }

// Message is a raw bus delivery waiting to be decoded.
type Message struct {
	Kind       Kind
	Topic      string
	Payload    []byte
	Duplicate  bool // broker redelivery flag
	ReceivedAt time.Time
}
