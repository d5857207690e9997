// Package timing classifies release timing against the jump apex.
package timing

import (
	"fmt"
	"time"

	"github.com/okian/swish/internal/domain/model"
)

// Default calibration. These are deployment parameters; the service reads
// the live values from configuration.
const (
	DefaultEarlyBelow  = 150 * time.Millisecond
	DefaultLateAbove   = 400 * time.Millisecond
	DefaultApexWindow  = 1500 * time.Millisecond
	DefaultScoreWindow = 2000 * time.Millisecond
)

// Thresholds holds the four timing constants.
//
// EarlyBelow and LateAbove bound the PERFECT band, inclusive on both ends.
// ApexWindow is how long a release waits for its apex; ScoreWindow is how
// long a completed release/apex pair waits for a score.
type Thresholds struct {
	EarlyBelow  time.Duration // T_low
	LateAbove   time.Duration // T_high
	ApexWindow  time.Duration // A_max
	ScoreWindow time.Duration // S_max
}

// Option adjusts Thresholds built by New.
type Option func(*Thresholds)

// WithBand sets the PERFECT band.
func WithBand(earlyBelow, lateAbove time.Duration) Option {
	return func(t *Thresholds) {
		t.EarlyBelow = earlyBelow
		t.LateAbove = lateAbove
	}
}

// WithApexWindow sets A_max.
func WithApexWindow(d time.Duration) Option {
	return func(t *Thresholds) {
		t.ApexWindow = d
	}
}

// WithScoreWindow sets S_max.
func WithScoreWindow(d time.Duration) Option {
	return func(t *Thresholds) {
		t.ScoreWindow = d
	}
}

// New returns the default thresholds with opts applied.
func New(opts ...Option) Thresholds {
	t := Thresholds{
		EarlyBelow:  DefaultEarlyBelow,
		LateAbove:   DefaultLateAbove,
		ApexWindow:  DefaultApexWindow,
		ScoreWindow: DefaultScoreWindow,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Validate checks 0 <= T_low < T_high and positive windows.
func (t Thresholds) Validate() error {
	switch {
	case t.EarlyBelow < 0:
		return fmt.Errorf("%w: early threshold %s is negative", ErrInvalidThresholds, t.EarlyBelow)
	case t.EarlyBelow >= t.LateAbove:
		return fmt.Errorf("%w: early threshold %s must be below late threshold %s", ErrInvalidThresholds, t.EarlyBelow, t.LateAbove)
	case t.ApexWindow <= 0:
		return fmt.Errorf("%w: apex window must be positive", ErrInvalidThresholds)
	case t.ScoreWindow <= 0:
		return fmt.Errorf("%w: score window must be positive", ErrInvalidThresholds)
	}
	return nil
}

// Classify labels an elapsed release-to-apex interval in milliseconds.
// Exactly T_low and exactly T_high are PERFECT.
func (t Thresholds) Classify(elapsedMs int64) model.Classification {
	switch {
	case elapsedMs < t.EarlyBelow.Milliseconds():
		return model.Early
	case elapsedMs > t.LateAbove.Milliseconds():
		return model.Late
	default:
		return model.Perfect
	}
}

// ApexExpired reports whether an apex elapsedMs after release is outside A_max.
func (t Thresholds) ApexExpired(elapsedMs int64) bool {
	return elapsedMs > t.ApexWindow.Milliseconds()
}

// ScoreExpired reports whether a score elapsedMs after apex is outside S_max.
func (t Thresholds) ScoreExpired(elapsedMs int64) bool {
	return elapsedMs > t.ScoreWindow.Milliseconds()
}
