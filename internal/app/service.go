// Package service wires the shot pipeline and implements the dependencies
// required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/swish/internal/adapters/broadcast"
	"github.com/okian/swish/internal/adapters/mq/dispatcher"
	"github.com/okian/swish/internal/adapters/mq/mqtt"
	"github.com/okian/swish/internal/adapters/mq/queue"
	"github.com/okian/swish/internal/adapters/mq/worker"
	"github.com/okian/swish/internal/adapters/repository"
	"github.com/okian/swish/internal/domain/classifier"
	"github.com/okian/swish/internal/domain/dedupe"
	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/internal/domain/timing"
	"github.com/okian/swish/pkg/logger"
	"github.com/okian/swish/pkg/metrics"
)

// abortTimeout bounds the wait for the worker once the drain deadline passed.
const abortTimeout = time.Second

// Bus delivers sensor messages into the inbound queue until ctx is done.
type Bus interface {
	Run(ctx context.Context) error
	Stats() mqtt.SubscriberStats
}

// Service owns the pipeline: bus -> inbound queue -> dispatcher/classifier
// -> record queue -> worker -> store and live feed.
type Service struct {
	mu sync.RWMutex

	// Configuration
	thresholds      timing.Thresholds
	tickInterval    time.Duration
	queueSize       int
	recordQueueSize int
	dedupeSize      int
	dbPath          string
	storageRetries  int
	storageBackoff  time.Duration
	broadcastBuffer int
	mqttConfig      mqtt.Config
	topics          mqtt.Topics
	newBus          func(sink mqtt.Sink) Bus
	now             func() time.Time

	// Components
	store      *repository.SQLiteStore
	hub        *broadcast.Hub
	inbound    *queue.InMemoryQueue[model.Message]
	records    *queue.InMemoryQueue[model.ShotRecord]
	dispatcher *dispatcher.Dispatcher
	worker     *worker.RecordWorker
	bus        Bus

	anomaliesMu sync.Mutex
	anomalies   map[string]int64

	// State
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		thresholds:      timing.New(),
		tickInterval:    dispatcher.DefaultTickInterval,
		queueSize:       queue.DefaultCapacity,
		recordQueueSize: 256,
		dedupeSize:      dedupe.DefaultMaxSize,
		dbPath:          repository.MemoryPath,
		storageRetries:  3,
		storageBackoff:  100 * time.Millisecond,
		broadcastBuffer: 16,
		mqttConfig:      mqtt.Config{Broker: "localhost:1883", QoS: 1},
		topics:          mqtt.DefaultTopics,
		now:             time.Now,
		anomalies:       make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newBus == nil {
		s.newBus = func(sink mqtt.Sink) Bus {
			return mqtt.NewSubscriber(s.mqttConfig, s.topics, sink)
		}
	}
	return s
}

// Start opens the store and launches the pipeline goroutines. The pipeline
// runs until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.thresholds.Validate(); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	s.logger.Info(ctx, "starting shot service...")

	store, err := repository.Open(ctx, s.dbPath)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	s.store = store
	s.hub = broadcast.NewHub(broadcast.WithBuffer(s.broadcastBuffer))
	s.inbound = queue.NewInMemoryQueue[model.Message](queue.WithCapacity(s.queueSize), queue.WithName("inbound"))
	s.records = queue.NewInMemoryQueue[model.ShotRecord](queue.WithCapacity(s.recordQueueSize), queue.WithName("records"))

	cls := classifier.New(s.thresholds,
		classifier.WithClock(s.now),
		classifier.WithAnomalyHook(s.countAnomaly),
	)
	s.worker = worker.NewRecordWorker(s.records, s.store, s.hub,
		worker.WithRetries(s.storageRetries),
		worker.WithBackoff(s.storageBackoff),
	)
	s.dispatcher = dispatcher.New(s.inbound, cls, s.records,
		dispatcher.WithTickInterval(s.tickInterval),
		dispatcher.WithClock(s.now),
		dispatcher.WithDeduper(dedupe.New(dedupe.WithMaxSize(s.dedupeSize))),
		dispatcher.WithOverflowHandler(s.worker.ReportFailure),
	)
	s.bus = s.newBus(s.inbound)

	// The pipeline outlives the start context; Stop cancels it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.bus.Run(gctx) })
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	g.Go(func() error { return s.worker.Run(gctx) })
	s.cancel = cancel
	s.group = g

	s.started = true
	th := s.thresholds
	s.logger.Info(ctx, "shot service started",
		logger.Duration("tLow", th.EarlyBelow),
		logger.Duration("tHigh", th.LateAbove),
		logger.Duration("apexWindow", th.ApexWindow),
		logger.Duration("scoreWindow", th.ScoreWindow),
		logger.Int("queueSize", s.queueSize),
		logger.String("dbPath", s.dbPath),
	)
	return nil
}

// Stop shuts the pipeline down in order: the bus disconnects, the open
// attempt is discarded, queued shots are stored, then the store and live
// feed close. It waits at most until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping shot service...")
	s.cancel()

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		s.logger.Warn(ctx, "pipeline did not drain in time")
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
		_ = s.worker.Shutdown(abortCtx)
		cancel()
		runErr = fmt.Errorf("stop service: %w", ctx.Err())
	}

	_ = s.inbound.Close()
	if err := s.hub.Close(); err != nil {
		s.logger.Warn(ctx, "closing live feed", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "shot service stopped")
	return runErr
}

// Recent returns the n most recent stored shots.
func (s *Service) Recent(ctx context.Context, n int) ([]model.StoredShot, error) {
	s.mu.RLock()
	store := s.store
	started := s.started
	s.mu.RUnlock()
	if !started {
		return nil, fmt.Errorf("%w: %w", repository.ErrStorage, ErrNotStarted)
	}
	return store.Recent(ctx, n)
}

// Ready reports whether the pipeline is running and the bus is connected.
func (s *Service) Ready(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	if !s.bus.Stats().Connected {
		return ErrBusDisconnected
	}
	return nil
}

// LiveFeed returns the WebSocket hub, or nil before Start.
func (s *Service) LiveFeed() *broadcast.Hub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": s.started,
		"thresholds": map[string]int64{
			"tLowMs":        s.thresholds.EarlyBelow.Milliseconds(),
			"tHighMs":       s.thresholds.LateAbove.Milliseconds(),
			"apexWindowMs":  s.thresholds.ApexWindow.Milliseconds(),
			"scoreWindowMs": s.thresholds.ScoreWindow.Milliseconds(),
		},
		"queueSize":       s.queueSize,
		"recordQueueSize": s.recordQueueSize,
	}
	if !s.started {
		return stats
	}

	ws := s.worker.Stats()
	stats["bus"] = s.bus.Stats()
	stats["dispatcher"] = s.dispatcher.Stats()
	stats["worker"] = ws
	stats["storageFailures"] = ws.StorageFailures
	stats["lastStorageError"] = ws.LastStorageError
	stats["deadLetters"] = ws.DeadLetters
	stats["queueLength"] = s.inbound.Len()
	stats["recordQueueLength"] = s.records.Len()
	stats["observers"] = s.hub.Observers()
	stats["anomalies"] = s.anomalyCounts()
	if n, err := s.store.Count(context.Background()); err == nil {
		stats["totalShots"] = n
	}

	metrics.UpdateQueueSize("inbound", s.inbound.Len())
	metrics.UpdateQueueSize("records", s.records.Len())
	return stats
}

func (s *Service) countAnomaly(a classifier.Anomaly) {
	s.anomaliesMu.Lock()
	defer s.anomaliesMu.Unlock()
	s.anomalies[a.Err.Type]++
}

func (s *Service) anomalyCounts() map[string]int64 {
	s.anomaliesMu.Lock()
	defer s.anomaliesMu.Unlock()
	out := make(map[string]int64, len(s.anomalies))
	for k, v := range s.anomalies {
		out[k] = v
	}
	return out
}
