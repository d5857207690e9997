package worker

import (
	"time"

	"github.com/okian/swish/pkg/logger"
)

// Option applies a configuration option to the RecordWorker.
type Option func(*RecordWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *RecordWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *RecordWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetries sets how many times a failed save is retried.
func WithRetries(n int) Option {
	return func(w *RecordWorker) {
		if n >= 0 {
			w.retries = n
		}
	}
}

// WithBackoff sets the base delay between save attempts. The n-th retry
// waits n times this delay.
func WithBackoff(d time.Duration) Option {
	return func(w *RecordWorker) {
		if d >= 0 {
			w.backoff = d
		}
	}
}

// WithDeadLetterLimit bounds how many unsaved shots are retained.
func WithDeadLetterLimit(n int) Option {
	return func(w *RecordWorker) {
		if n > 0 {
			w.deadLetterLimit = n
		}
	}
}
