package dispatcher

import "errors"

// ErrRecordDropped is reported when a finished record cannot be handed to
// the record queue.
var ErrRecordDropped = errors.New("record queue rejected shot")
