package service

import (
	"time"

	"github.com/okian/swish/internal/adapters/mq/mqtt"
	"github.com/okian/swish/internal/domain/timing"
	"github.com/okian/swish/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithThresholds sets the timing calibration.
func WithThresholds(th timing.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = th
	}
}

// WithTickInterval sets the idle expiry cadence.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithQueueSize sets the capacity of the inbound message queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithRecordQueueSize sets the capacity of the finished-shot queue.
func WithRecordQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.recordQueueSize = size
		}
	}
}

// WithDedupeSize sets how many message keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDBPath sets the SQLite database location.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithStorageRetries sets how often a failed save is retried.
func WithStorageRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.storageRetries = n
		}
	}
}

// WithStorageBackoff sets the base delay between save attempts.
func WithStorageBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.storageBackoff = d
		}
	}
}

// WithBroadcastBuffer sets the per-observer pending message bound.
func WithBroadcastBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.broadcastBuffer = n
		}
	}
}

// WithMQTT sets the broker connection and topics of the default bus.
func WithMQTT(cfg mqtt.Config, topics mqtt.Topics) Option {
	return func(s *Service) {
		s.mqttConfig = cfg
		s.topics = topics
	}
}

// WithBus replaces the MQTT subscriber. The factory receives the inbound
// queue the bus must feed.
func WithBus(factory func(sink mqtt.Sink) Bus) Option {
	return func(s *Service) {
		if factory != nil {
			s.newBus = factory
		}
	}
}

// WithClock sets the clock shared by the classifier and dispatcher.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
