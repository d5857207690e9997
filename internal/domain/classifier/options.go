package classifier

import (
	"time"

	"github.com/okian/swish/pkg/logger"
)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithClock replaces the wall clock used to open attempts and detect expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger for the classifier.
func WithLogger(l logger.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAnomalyHook registers a callback invoked for every dropped event.
func WithAnomalyHook(fn func(ev Anomaly)) Option {
	return func(c *Classifier) {
		c.onAnomaly = fn
	}
}
