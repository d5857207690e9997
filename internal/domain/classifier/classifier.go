// Package classifier correlates release, apex and score events into shot records.
//
// A Classifier holds at most one open attempt. It is driven by Process for
// every decoded event and by Tick on a timer, so that an attempt missing its
// apex or its score is closed even when the bus goes quiet. A Classifier is
// not safe for concurrent use; exactly one goroutine must own it.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/timing"
	"github.com/okian/swish/pkg/logger"
	"github.com/okian/swish/pkg/metrics"
)

// State is the correlation state.
type State int

// States.
const (
	StateIdle State = iota
	StateAwaitingApex
	StateAwaitingScore
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitingApex:
		return "AWAITING_APEX"
	case StateAwaitingScore:
		return "AWAITING_SCORE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Expiry reasons, used as metric labels.
const (
	reasonNoApex   = "no_apex"
	reasonNoScore  = "no_score"
	reasonLateApex = "apex_out_of_window"
	reasonShutdown = "shutdown"
)

// Anomaly describes an event the classifier dropped.
type Anomaly struct {
	Err   *AnomalyError
	Event model.Event
	State State
}

// attempt is the in-flight correlation record. Zero when idle.
type attempt struct {
	tsRelease      int64
	tsApex         int64
	gripPeak       int
	classification model.Classification
	openedAt       time.Time
	apexAt         time.Time
}

// Classifier is the shot correlation state machine.
type Classifier struct {
	th    timing.Thresholds
	state State
	cur   attempt

	now       func() time.Time
	onAnomaly func(Anomaly)
	logger    logger.Logger
}

// New constructs an idle Classifier. th is used as given; callers validate
// configuration before constructing.
func New(th timing.Thresholds, opts ...Option) *Classifier {
	c := &Classifier{
		th:  th,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("classifier")
	}
	metrics.UpdateClassifierState(int(StateIdle))
	return c
}

// State returns the current state.
func (c *Classifier) State() State {
	return c.state
}

// Thresholds returns the calibration in use.
func (c *Classifier) Thresholds() timing.Thresholds {
	return c.th
}

// Process applies one event. Window expiry against the clock is checked
// first, so a stale attempt never absorbs a new event. At most one record
// is returned per call.
func (c *Classifier) Process(ctx context.Context, ev model.Event) (model.ShotRecord, bool) {
	rec, emitted := c.expire(ctx, c.now())

	switch e := ev.(type) {
	case model.ReleaseEvent:
		if r, ok := c.release(ctx, e); ok {
			rec, emitted = r, true
		}
	case model.ApexEvent:
		c.apex(ctx, e)
	case model.ScoreEvent:
		if r, ok := c.score(ctx, e); ok {
			rec, emitted = r, true
		}
	default:
		c.logger.Warn(ctx, "ignoring unsupported event", logger.String("type", fmt.Sprintf("%T", ev)))
	}

	metrics.UpdateClassifierState(int(c.state))
	return rec, emitted
}

// Tick closes the open attempt if its window has elapsed at now. A release
// without an apex is discarded; a release/apex pair without a score is
// emitted unscored.
func (c *Classifier) Tick(ctx context.Context, now time.Time) (model.ShotRecord, bool) {
	rec, emitted := c.expire(ctx, now)
	metrics.UpdateClassifierState(int(c.state))
	return rec, emitted
}

// Reset discards any open attempt without emitting it.
func (c *Classifier) Reset(ctx context.Context) {
	if c.state != StateIdle {
		c.logger.Info(ctx, "discarding open attempt",
			logger.String("state", c.state.String()),
			logger.Int64("tsRelease", c.cur.tsRelease),
		)
		metrics.RecordAttemptExpired(reasonShutdown)
	}
	c.close()
	metrics.UpdateClassifierState(int(c.state))
}

// release opens an attempt. An open attempt whose window has lapsed in
// device time yields to the release even when the clock has not caught up
// yet, as happens with buffered or batched deliveries.
func (c *Classifier) release(ctx context.Context, e model.ReleaseEvent) (model.ShotRecord, bool) {
	var (
		rec     model.ShotRecord
		emitted bool
	)
	switch c.state {
	case StateAwaitingApex:
		if !c.th.ApexExpired(e.TS - c.cur.tsRelease) {
			c.drop(ctx, ErrDuplicateRelease, e)
			return rec, false
		}
		c.logger.Debug(ctx, "attempt superseded without apex", logger.Int64("tsRelease", c.cur.tsRelease))
		metrics.RecordAttemptExpired(reasonNoApex)
		c.close()
	case StateAwaitingScore:
		if !c.th.ScoreExpired(e.TS - c.cur.tsApex) {
			c.drop(ctx, ErrDuplicateRelease, e)
			return rec, false
		}
		metrics.RecordAttemptExpired(reasonNoScore)
		rec, emitted = c.finalize(ctx, false), true
	}

	c.cur = attempt{
		tsRelease: e.TS,
		gripPeak:  e.GripPeak,
		openedAt:  c.now(),
	}
	c.state = StateAwaitingApex
	c.logger.Debug(ctx, "attempt opened", logger.Int64("tsRelease", e.TS), logger.Int("gripPeak", e.GripPeak))
	return rec, emitted
}

func (c *Classifier) apex(ctx context.Context, e model.ApexEvent) {
	switch c.state {
	case StateIdle:
		c.drop(ctx, ErrOrphanApex, e)
		return
	case StateAwaitingScore:
		c.drop(ctx, ErrDuplicateApex, e)
		return
	}

	elapsed := e.TS - c.cur.tsRelease
	if c.th.ApexExpired(elapsed) {
		c.drop(ctx, ErrApexOutOfWindow, e)
		metrics.RecordAttemptExpired(reasonLateApex)
		c.close()
		return
	}

	c.cur.tsApex = e.TS
	c.cur.apexAt = c.now()
	c.cur.classification = c.th.Classify(elapsed)
	c.state = StateAwaitingScore
	metrics.RecordReleaseToApex(float64(elapsed))
	c.logger.Debug(ctx, "apex matched",
		logger.Int64("elapsedMs", elapsed),
		logger.String("classification", c.cur.classification.String()),
	)
}

func (c *Classifier) score(ctx context.Context, e model.ScoreEvent) (model.ShotRecord, bool) {
	switch c.state {
	case StateIdle:
		c.drop(ctx, ErrOrphanScore, e)
		return model.ShotRecord{}, false
	case StateAwaitingApex:
		c.drop(ctx, ErrScoreBeforeApex, e)
		return model.ShotRecord{}, false
	}

	if c.th.ScoreExpired(e.TS - c.cur.tsApex) {
		// The pair is complete; only the score is too late to count.
		c.drop(ctx, ErrScoreOutOfWindow, e)
		metrics.RecordAttemptExpired(reasonNoScore)
		return c.finalize(ctx, false), true
	}
	return c.finalize(ctx, true), true
}

func (c *Classifier) expire(ctx context.Context, now time.Time) (model.ShotRecord, bool) {
	switch c.state {
	case StateAwaitingApex:
		if now.Sub(c.cur.openedAt) > c.th.ApexWindow {
			c.logger.Debug(ctx, "attempt expired without apex", logger.Int64("tsRelease", c.cur.tsRelease))
			metrics.RecordAttemptExpired(reasonNoApex)
			c.close()
		}
	case StateAwaitingScore:
		if now.Sub(c.cur.apexAt) > c.th.ScoreWindow {
			metrics.RecordAttemptExpired(reasonNoScore)
			return c.finalize(ctx, false), true
		}
	}
	return model.ShotRecord{}, false
}

func (c *Classifier) finalize(ctx context.Context, scored bool) model.ShotRecord {
	rec := model.ShotRecord{
		TSRelease:      c.cur.tsRelease,
		TSApex:         c.cur.tsApex,
		Classification: c.cur.classification,
		Scored:         scored,
		GripPeak:       c.cur.gripPeak,
	}
	c.close()
	metrics.RecordShotEmitted(rec.Classification.String(), rec.Scored)
	c.logger.Info(ctx, "shot finalized",
		logger.Int64("tsRelease", rec.TSRelease),
		logger.Int64("tsApex", rec.TSApex),
		logger.String("classification", rec.Classification.String()),
		logger.Bool("scored", rec.Scored),
		logger.Int("gripPeak", rec.GripPeak),
	)
	return rec
}

func (c *Classifier) close() {
	c.cur = attempt{}
	c.state = StateIdle
}

func (c *Classifier) drop(ctx context.Context, kind *AnomalyError, ev model.Event) {
	metrics.RecordAnomaly(kind.Type)
	c.logger.Warn(ctx, "dropping anomalous event",
		logger.String("anomaly", kind.Type),
		logger.String("kind", string(ev.Kind())),
		logger.Int64("ts", ev.Timestamp()),
		logger.String("state", c.state.String()),
	)
	if c.onAnomaly != nil {
		c.onAnomaly(Anomaly{Err: kind, Event: ev, State: c.state})
	}
}
