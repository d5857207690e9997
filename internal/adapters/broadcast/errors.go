package broadcast

import "errors"

// Sentinel kinds for broadcast errors.
var (
	ErrBroadcast = errors.New("broadcast failed")
	ErrHubClosed = errors.New("broadcast hub closed")
)
