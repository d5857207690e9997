package dispatcher

import (
	"context"
	"time"

	"github.com/okian/swish/internal/domain/dedupe"
	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/pkg/logger"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithTickInterval sets how often the classifier is ticked while the bus is
// quiet.
func WithTickInterval(d time.Duration) Option {
	return func(p *Dispatcher) {
		if d > 0 {
			p.tickInterval = d
		}
	}
}

// WithDeduper replaces the default redelivery filter.
func WithDeduper(d dedupe.Deduper) Option {
	return func(p *Dispatcher) {
		if d != nil {
			p.dedupe = d
		}
	}
}

// WithOverflowHandler registers the callback used when the record queue
// rejects a finished shot.
func WithOverflowHandler(fn func(ctx context.Context, rec model.ShotRecord, err error)) Option {
	return func(p *Dispatcher) {
		p.onOverflow = fn
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) Option {
	return func(p *Dispatcher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock sets the clock passed to the classifier on every tick. It must
// match the classifier's own clock.
func WithClock(now func() time.Time) Option {
	return func(p *Dispatcher) {
		if now != nil {
			p.now = now
		}
	}
}
