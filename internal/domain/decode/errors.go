package decode

import "errors"

// Sentinel kinds for decode failures.
var (
	ErrDecode       = errors.New("decode failed")
	ErrUnknownTopic = errors.New("unknown topic")
)
