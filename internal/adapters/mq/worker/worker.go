// Package worker persists and broadcasts finished shots.
//
// A single RecordWorker consumes the record queue so shots are stored in the
// order the classifier produced them, and each shot is stored before it is
// broadcast. A shot that cannot be stored is never broadcast; it is logged,
// counted and kept in a bounded dead-letter list.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/pkg/logger"
	"github.com/okian/swish/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultRetries         = 3
	defaultBackoff         = 100 * time.Millisecond
	defaultDeadLetterLimit = 100
)

// Store persists one shot and returns its identifier.
type Store interface {
	Save(ctx context.Context, rec model.ShotRecord) (int64, error)
}

// Broadcaster pushes a stored shot to live observers.
type Broadcaster interface {
	Publish(ctx context.Context, id int64, rec model.ShotRecord) error
}

// Queue is the record queue the worker drains.
type Queue interface {
	Dequeue() <-chan model.ShotRecord
	Received()
}

// Stats is a point-in-time view of the worker.
type Stats struct {
	Persisted        int64              `json:"persisted"`
	Broadcast        int64              `json:"broadcast"`
	BroadcastErrors  int64              `json:"broadcastErrors"`
	StorageFailures  int64              `json:"storageFailures"`
	LastStorageError string             `json:"lastStorageError,omitempty"`
	DeadLetters      []model.ShotRecord `json:"deadLetters"`
}

// RecordWorker drains the record queue.
type RecordWorker struct {
	queue  Queue
	store  Store
	bcast  Broadcaster
	name   string
	logger logger.Logger

	retries         int
	backoff         time.Duration
	deadLetterLimit int

	mu    sync.Mutex
	stats Stats

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewRecordWorker creates a worker. bcast may be nil when no live view is
// served.
func NewRecordWorker(q Queue, store Store, bcast Broadcaster, opts ...Option) *RecordWorker {
	w := &RecordWorker{
		queue:           q,
		store:           store,
		bcast:           bcast,
		name:            "record-worker",
		retries:         defaultRetries,
		backoff:         defaultBackoff,
		deadLetterLimit: defaultDeadLetterLimit,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run handles shots until the record queue is closed and drained, or until
// Shutdown is called. Cancelling ctx alone does not stop the worker so that
// shots already produced are still stored; the producer closes the queue.
func (w *RecordWorker) Run(ctx context.Context) error {
	defer close(w.done)
	ctx = context.WithoutCancel(ctx)

	records := w.queue.Dequeue()
	for {
		select {
		case <-w.shutdown:
			return nil
		case rec, ok := <-records:
			if !ok {
				w.logger.Info(ctx, "record queue drained")
				return nil
			}
			w.queue.Received()
			w.handle(ctx, rec)
		}
	}
}

// Shutdown stops the worker without draining and waits for it to exit.
func (w *RecordWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *RecordWorker) Done() <-chan struct{} {
	return w.done
}

// ReportFailure records a shot that could not be persisted.
func (w *RecordWorker) ReportFailure(ctx context.Context, rec model.ShotRecord, err error) {
	metrics.RecordStorageError()
	metrics.RecordErrorByComponent("worker", "storage_error")
	w.logger.Error(ctx, "shot not persisted",
		logger.Int64("tsRelease", rec.TSRelease),
		logger.Int64("tsApex", rec.TSApex),
		logger.String("classification", rec.Classification.String()),
		logger.Bool("scored", rec.Scored),
		logger.Int("gripPeak", rec.GripPeak),
		logger.Error(err),
	)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.StorageFailures++
	w.stats.LastStorageError = err.Error()
	w.stats.DeadLetters = append(w.stats.DeadLetters, rec)
	if over := len(w.stats.DeadLetters) - w.deadLetterLimit; over > 0 {
		w.stats.DeadLetters = append([]model.ShotRecord(nil), w.stats.DeadLetters[over:]...)
	}
	metrics.UpdateDeadLetters(len(w.stats.DeadLetters))
}

// Stats returns a copy of the worker counters and dead letters.
func (w *RecordWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.stats
	st.DeadLetters = append([]model.ShotRecord{}, w.stats.DeadLetters...)
	return st
}

func (w *RecordWorker) handle(ctx context.Context, rec model.ShotRecord) {
	id, err := w.save(ctx, rec)
	if err != nil {
		w.ReportFailure(ctx, rec, err)
		return
	}
	w.mu.Lock()
	w.stats.Persisted++
	w.mu.Unlock()

	if w.bcast == nil {
		return
	}
	if err := w.bcast.Publish(ctx, id, rec); err != nil {
		metrics.RecordBroadcastError()
		w.logger.Warn(ctx, "broadcast failed", logger.Int64("id", id), logger.Error(err))
		w.mu.Lock()
		w.stats.BroadcastErrors++
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.stats.Broadcast++
	w.mu.Unlock()
}

// save tries the store up to retries+1 times with linear backoff.
func (w *RecordWorker) save(ctx context.Context, rec model.ShotRecord) (int64, error) {
	var errs []error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			metrics.RecordStorageRetry()
			select {
			case <-time.After(time.Duration(attempt) * w.backoff):
			case <-w.shutdown:
				return 0, fmt.Errorf("retry aborted by shutdown: %w", errs[len(errs)-1])
			}
		}

		start := time.Now()
		id, err := w.store.Save(ctx, rec)
		metrics.RecordStorageLatency(float64(time.Since(start).Microseconds()) / 1000)
		if err == nil {
			return id, nil
		}
		w.logger.Warn(ctx, "save failed", logger.Int("attempt", attempt+1), logger.Error(err))
		errs = append(errs, err)
	}
	return 0, fmt.Errorf("after %d attempts: %w", w.retries+1, errs[len(errs)-1])
}
