// Package config defines service configuration and its loading.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/swish/internal/adapters/mq/mqtt"
	"github.com/okian/swish/internal/domain/timing"
)

// Config contains process configuration. All values are fixed at start.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTClientID string `koanf:"mqtt_client_id"`
	MQTTUsername string `koanf:"mqtt_username"`
	MQTTPassword string `koanf:"mqtt_password"`
	MQTTQoS      int    `koanf:"mqtt_qos"`

	TopicRelease string `koanf:"topic_release"`
	TopicApex    string `koanf:"topic_apex"`
	TopicScore   string `koanf:"topic_score"`

	// Timing calibration, in milliseconds.
	TLowMS         int `koanf:"t_low_ms"`
	THighMS        int `koanf:"t_high_ms"`
	ApexWindowMS   int `koanf:"apex_window_ms"`
	ScoreWindowMS  int `koanf:"score_window_ms"`
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// QueueSize bounds the inbound message queue.
	QueueSize int `koanf:"queue_size"`
	// RecordQueueSize bounds the finished-shot queue.
	RecordQueueSize int `koanf:"record_queue_size"`
	// DedupeSize sets how many message keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// DBPath is the SQLite database file, or ":memory:".
	DBPath string `koanf:"db_path"`
	// StorageRetries is how often a failed save is retried.
	StorageRetries int `koanf:"storage_retries"`
	// StorageBackoffMS is the base delay between save retries.
	StorageBackoffMS int `koanf:"storage_backoff_ms"`

	// MaxListLimit caps GET /shots?limit.
	MaxListLimit int `koanf:"max_list_limit"`
	// BroadcastBuffer is the per-observer pending message bound.
	BroadcastBuffer int `koanf:"broadcast_buffer"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		MQTTBroker:       "localhost:1883",
		MQTTQoS:          1,
		TopicRelease:     mqtt.DefaultTopics.Release,
		TopicApex:        mqtt.DefaultTopics.Apex,
		TopicScore:       mqtt.DefaultTopics.Score,
		TLowMS:           int(timing.DefaultEarlyBelow / time.Millisecond),
		THighMS:          int(timing.DefaultLateAbove / time.Millisecond),
		ApexWindowMS:     int(timing.DefaultApexWindow / time.Millisecond),
		ScoreWindowMS:    int(timing.DefaultScoreWindow / time.Millisecond),
		TickIntervalMS:   50,
		QueueSize:        1024,
		RecordQueueSize:  256,
		DedupeSize:       1024,
		DBPath:           "data/shots.db",
		StorageRetries:   3,
		StorageBackoffMS: 100,
		MaxListLimit:     100,
		BroadcastBuffer:  16,
	}
}

// Thresholds returns the timing calibration.
func (c *Config) Thresholds() timing.Thresholds {
	return timing.New(
		timing.WithBand(ms(c.TLowMS), ms(c.THighMS)),
		timing.WithApexWindow(ms(c.ApexWindowMS)),
		timing.WithScoreWindow(ms(c.ScoreWindowMS)),
	)
}

// Topics returns the bus topics.
func (c *Config) Topics() mqtt.Topics {
	return mqtt.Topics{Release: c.TopicRelease, Apex: c.TopicApex, Score: c.TopicScore}
}

// MQTT returns the broker settings.
func (c *Config) MQTT() mqtt.Config {
	return mqtt.Config{
		Broker:   c.MQTTBroker,
		ClientID: c.MQTTClientID,
		Username: c.MQTTUsername,
		Password: c.MQTTPassword,
		QoS:      byte(c.MQTTQoS),
	}
}

// TickInterval returns the idle tick cadence.
func (c *Config) TickInterval() time.Duration {
	return ms(c.TickIntervalMS)
}

// StorageBackoff returns the base delay between save retries.
func (c *Config) StorageBackoff() time.Duration {
	return ms(c.StorageBackoffMS)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MQTTBroker == "":
		return fmt.Errorf("%w: mqtt_broker must not be empty", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos must be 0, 1 or 2, got %d", ErrInvalidConfig, c.MQTTQoS)
	case c.TopicRelease == "" || c.TopicApex == "" || c.TopicScore == "":
		return fmt.Errorf("%w: topics must not be empty", ErrInvalidConfig)
	case c.TopicRelease == c.TopicApex || c.TopicApex == c.TopicScore || c.TopicRelease == c.TopicScore:
		return fmt.Errorf("%w: topics must be distinct", ErrInvalidConfig)
	case c.TickIntervalMS <= 0:
		return fmt.Errorf("%w: tick_interval_ms must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0 || c.RecordQueueSize <= 0 || c.DedupeSize <= 0:
		return fmt.Errorf("%w: queue and dedupe sizes must be positive", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.StorageRetries < 0:
		return fmt.Errorf("%w: storage_retries must not be negative", ErrInvalidConfig)
	case c.StorageBackoffMS < 0:
		return fmt.Errorf("%w: storage_backoff_ms must not be negative", ErrInvalidConfig)
	case c.MaxListLimit <= 0:
		return fmt.Errorf("%w: max_list_limit must be positive", ErrInvalidConfig)
	case c.BroadcastBuffer <= 0:
		return fmt.Errorf("%w: broadcast_buffer must be positive", ErrInvalidConfig)
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
