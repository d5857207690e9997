package queue

import "errors"

// Sentinel errors for consumers of a queue.
var (
	ErrStopped = errors.New("consumer stopped")
	ErrFull    = errors.New("queue full")
)
