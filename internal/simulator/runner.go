// Package simulator publishes scripted shot attempts to the sensor bus and
// checks what the service stored.
package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/pkg/logger"
)

// Publisher sends one event to the bus.
type Publisher interface {
	PublishEvent(ctx context.Context, ev model.Event) error
}

// Runner plays plans against a Publisher.
type Runner struct {
	pub     Publisher
	verbose bool
	sleep   func(ctx context.Context, d time.Duration) error
	logger  logger.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithVerbose logs every published event.
func WithVerbose(v bool) RunnerOption {
	return func(r *Runner) {
		r.verbose = v
	}
}

// WithSleeper replaces the wait between steps.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(pub Publisher, opts ...RunnerOption) *Runner {
	r := &Runner{
		pub:   pub,
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("simulator")
	}
	return r
}

// Run publishes every step of plans in order, then waits tail so the last
// attempt can close. It returns the records the service should have stored.
func (r *Runner) Run(ctx context.Context, plans []Plan, tail time.Duration) ([]model.ShotRecord, Stats, error) {
	runID := uuid.NewString()
	stats := Stats{
		StartTime:  time.Now(),
		ByScenario: make(map[string]int),
	}
	r.logger.Info(ctx, "starting simulation", logger.String("runID", runID), logger.Int("attempts", len(plans)))

	expected := make([]model.ShotRecord, 0, len(plans))
	for i, p := range plans {
		for _, step := range p.Steps {
			if err := r.sleep(ctx, step.After); err != nil {
				return expected, r.finish(stats), fmt.Errorf("attempt %d: %w", i, err)
			}
			if err := r.pub.PublishEvent(ctx, step.Event); err != nil {
				stats.Failed++
				return expected, r.finish(stats), fmt.Errorf("attempt %d %s: %w: %w", i, step.Event.Kind(), ErrPublish, err)
			}
			stats.Events++
			if r.verbose {
				r.logger.Info(ctx, "published",
					logger.String("kind", string(step.Event.Kind())),
					logger.Int64("ts", step.Event.Timestamp()),
				)
			}
		}
		stats.Attempts++
		if p.Orphan {
			stats.Orphans++
		}
		key := p.Scenario.String()
		if p.Scored {
			key += "_scored"
		}
		stats.ByScenario[key]++
		expected = append(expected, p.Expect)
	}
	stats.Expected = len(expected)

	if err := r.sleep(ctx, tail); err != nil {
		return expected, r.finish(stats), err
	}
	stats = r.finish(stats)
	r.logger.Info(ctx, "simulation finished",
		logger.String("runID", runID),
		logger.Int("attempts", stats.Attempts),
		logger.Int("events", stats.Events),
		logger.Int("orphans", stats.Orphans),
		logger.Any("byScenario", stats.ByScenario),
		logger.Duration("duration", stats.Duration),
	)
	return expected, stats, nil
}

func (r *Runner) finish(s Stats) Stats {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
