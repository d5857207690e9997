// Package dispatcher routes bus messages through the shot classifier.
//
// The Dispatcher is the only goroutine that touches the classifier. It takes
// messages off the inbound queue in arrival order, filters redeliveries,
// decodes them and hands any finished shot to the record queue. A ticker
// closes stale attempts while no messages arrive.
package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/swish/internal/domain/decode"
	"github.com/okian/swish/internal/domain/dedupe"
	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/pkg/logger"
	"github.com/okian/swish/pkg/metrics"
)

// DefaultTickInterval is the idle expiry cadence.
const DefaultTickInterval = 50 * time.Millisecond

// Classifier is the correlation state machine driven by the dispatcher.
type Classifier interface {
	Process(ctx context.Context, ev model.Event) (model.ShotRecord, bool)
	Tick(ctx context.Context, now time.Time) (model.ShotRecord, bool)
	Reset(ctx context.Context)
}

// Source is the inbound message queue.
type Source interface {
	Dequeue() <-chan model.Message
	Received()
}

// Sink is the record queue consumed by the record worker.
type Sink interface {
	Enqueue(ctx context.Context, rec model.ShotRecord) bool
	Close() error
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Received     int64 `json:"received"`
	Duplicates   int64 `json:"duplicates"`
	DecodeErrors int64 `json:"decodeErrors"`
	Emitted      int64 `json:"emitted"`
	Overflows    int64 `json:"overflows"`
}

// Dispatcher feeds queued messages to a Classifier.
type Dispatcher struct {
	src  Source
	sink Sink
	cls  Classifier

	dedupe       dedupe.Deduper
	tickInterval time.Duration
	now          func() time.Time
	onOverflow   func(ctx context.Context, rec model.ShotRecord, err error)
	logger       logger.Logger

	received     atomic.Int64
	duplicates   atomic.Int64
	decodeErrors atomic.Int64
	emitted      atomic.Int64
	overflows    atomic.Int64
}

// New creates a Dispatcher. It owns cls from the moment Run is called.
func New(src Source, cls Classifier, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		src:          src,
		sink:         sink,
		cls:          cls,
		tickInterval: DefaultTickInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dedupe == nil {
		d.dedupe = dedupe.New()
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("dispatcher")
	}
	return d
}

// Run consumes the inbound queue until ctx is cancelled or the queue is
// closed. On return the open attempt has been discarded and the record
// queue is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()
	defer d.stop(ctx)

	d.logger.Info(ctx, "dispatcher started", logger.Duration("tickInterval", d.tickInterval))

	in := d.src.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			d.src.Received()
			d.handle(ctx, msg)
		case <-ticker.C:
			if rec, ok := d.cls.Tick(ctx, d.now()); ok {
				d.emit(ctx, rec)
			}
		}
	}
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:     d.received.Load(),
		Duplicates:   d.duplicates.Load(),
		DecodeErrors: d.decodeErrors.Load(),
		Emitted:      d.emitted.Load(),
		Overflows:    d.overflows.Load(),
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg model.Message) { //nolint:gocritic // hugeParam: messages are passed by value through the queue
	start := time.Now()
	defer func() {
		metrics.RecordDispatchLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	d.received.Add(1)
	metrics.RecordEventReceived(string(msg.Kind))

	if d.dedupe.SeenAndRecord(ctx, dedupe.Key(msg.Topic, msg.Payload)) {
		d.duplicates.Add(1)
		metrics.RecordEventDuplicate()
		d.logger.Debug(ctx, "dropping redelivered message",
			logger.String("topic", msg.Topic),
			logger.Bool("dupFlag", msg.Duplicate),
		)
		return
	}

	ev, err := decode.Decode(msg.Kind, msg.Payload)
	if err != nil {
		d.decodeErrors.Add(1)
		metrics.RecordDecodeError(string(msg.Kind))
		d.logger.Warn(ctx, "dropping undecodable message",
			logger.String("topic", msg.Topic),
			logger.String("payload", string(msg.Payload)),
			logger.Error(err),
		)
		return
	}

	if rec, ok := d.cls.Process(ctx, ev); ok {
		d.emit(ctx, rec)
	}
}

func (d *Dispatcher) emit(ctx context.Context, rec model.ShotRecord) {
	if d.sink.Enqueue(ctx, rec) {
		d.emitted.Add(1)
		return
	}

	d.overflows.Add(1)
	err := fmt.Errorf("shot %d/%d: %w", rec.TSRelease, rec.TSApex, ErrRecordDropped)
	d.logger.Error(ctx, "record queue rejected shot",
		logger.Int64("tsRelease", rec.TSRelease),
		logger.Int64("tsApex", rec.TSApex),
		logger.Error(err),
	)
	if d.onOverflow != nil {
		d.onOverflow(ctx, rec, err)
	}
}

func (d *Dispatcher) stop(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	d.cls.Reset(ctx)
	if err := d.sink.Close(); err != nil {
		d.logger.Error(ctx, "closing record queue", logger.Error(err))
	}
	d.logger.Info(ctx, "dispatcher stopped")
}
