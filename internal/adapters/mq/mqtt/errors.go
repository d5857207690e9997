package mqtt

import "errors"

// Sentinel kinds for bus errors.
var (
	ErrConnect      = errors.New("mqtt connect failed")
	ErrNotConnected = errors.New("mqtt not connected")
	ErrPublish      = errors.New("mqtt publish failed")
	ErrSubscribe    = errors.New("mqtt subscribe failed")
)
