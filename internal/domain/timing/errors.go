package timing

import "errors"

// ErrInvalidThresholds reports an unusable timing calibration.
var ErrInvalidThresholds = errors.New("invalid timing thresholds")
