package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/swish/internal/domain/decode"
	"github.com/okian/swish/internal/domain/model"
	"github.com/okian/swish/pkg/logger"
	"github.com/okian/swish/pkg/metrics"
)

// Sink receives every message taken off the bus.
type Sink interface {
	Enqueue(ctx context.Context, msg model.Message) bool
}

// SubscriberOption applies a configuration option to the Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubscriberLogger sets a custom logger for the subscriber.
func WithSubscriberLogger(l logger.Logger) SubscriberOption {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClientFactory replaces paho.NewClient.
func WithClientFactory(fn func(*paho.ClientOptions) paho.Client) SubscriberOption {
	return func(s *Subscriber) {
		if fn != nil {
			s.newClient = fn
		}
	}
}

// Subscriber listens on the sensor topics and hands each message to a Sink.
// Paho callbacks only enqueue; all processing happens downstream.
type Subscriber struct {
	cfg    Config
	topics Topics
	router *decode.Router
	sink   Sink
	logger logger.Logger

	newClient func(*paho.ClientOptions) paho.Client
	client    paho.Client

	connected atomic.Bool
	received  atomic.Int64
	rejected  atomic.Int64
}

// SubscriberStats is a point-in-time view of the subscriber.
type SubscriberStats struct {
	Connected bool  `json:"connected"`
	Received  int64 `json:"received"`
	Rejected  int64 `json:"rejected"`
}

// NewSubscriber creates a Subscriber for topics.
func NewSubscriber(cfg Config, topics Topics, sink Sink, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		cfg:       cfg,
		topics:    topics,
		router:    topics.Router(),
		sink:      sink,
		newClient: paho.NewClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("mqtt")
	}
	return s
}

// Run connects, subscribes and blocks until ctx is cancelled, then
// unsubscribes and disconnects. Subscriptions are renewed on every
// reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := s.cfg.clientOptions("swish")
	opts.SetOnConnectHandler(func(c paho.Client) {
		if err := s.subscribe(c); err != nil {
			s.logger.Error(ctx, "subscribe failed", logger.Error(err))
		}
		s.setConnected(true)
		s.logger.Info(ctx, "mqtt connection established", logger.String("broker", s.cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setConnected(false)
		s.logger.Warn(ctx, "mqtt connection lost, will auto-reconnect", logger.Error(err))
	})
	s.client = s.newClient(opts)

	s.logger.Info(ctx, "connecting to mqtt broker", logger.String("broker", s.cfg.Broker))
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.connectTimeout()) {
		s.logger.Warn(ctx, "broker not reachable yet, retrying in background", logger.String("broker", s.cfg.Broker))
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w: %w", s.cfg.Broker, ErrConnect, err)
	}

	<-ctx.Done()
	s.close(context.WithoutCancel(ctx))
	return nil
}

// Handle routes one bus message into the sink.
func (s *Subscriber) Handle(msg paho.Message) {
	ctx := context.Background()
	s.received.Add(1)

	kind, err := s.router.Kind(msg.Topic())
	if err != nil {
		s.rejected.Add(1)
		metrics.RecordDecodeError("unknown")
		s.logger.Warn(ctx, "message on unexpected topic", logger.String("topic", msg.Topic()), logger.Error(err))
		return
	}

	m := model.Message{
		Kind:       kind,
		Topic:      msg.Topic(),
		Payload:    append([]byte(nil), msg.Payload()...),
		Duplicate:  msg.Duplicate(),
		ReceivedAt: time.Now(),
	}
	if !s.sink.Enqueue(ctx, m) {
		s.rejected.Add(1)
		metrics.RecordErrorByComponent("mqtt", "inbound_queue_full")
		s.logger.Warn(ctx, "inbound queue full, dropping message", logger.String("topic", m.Topic))
	}
}

// Connected reports whether the broker connection is up.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

// Stats returns the subscriber counters.
func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{
		Connected: s.Connected(),
		Received:  s.received.Load(),
		Rejected:  s.rejected.Load(),
	}
}

func (s *Subscriber) subscribe(c paho.Client) error {
	filters := make(map[string]byte, 3)
	for topic := range s.router.Topics() {
		filters[topic] = s.cfg.QoS
	}
	token := c.SubscribeMultiple(filters, func(_ paho.Client, m paho.Message) { s.Handle(m) })
	if !token.WaitTimeout(s.cfg.connectTimeout()) {
		return fmt.Errorf("%w: timeout", ErrSubscribe)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	return nil
}

func (s *Subscriber) close(ctx context.Context) {
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		token := s.client.Unsubscribe(s.topics.Release, s.topics.Apex, s.topics.Score)
		if token.WaitTimeout(s.cfg.connectTimeout()) && token.Error() != nil {
			s.logger.Warn(ctx, "unsubscribe failed", logger.Error(token.Error()))
		}
	}
	s.client.Disconnect(disconnectQuiesceMs)
	s.setConnected(false)
	s.logger.Info(ctx, "mqtt disconnected")
}

func (s *Subscriber) setConnected(up bool) {
	s.connected.Store(up)
	metrics.UpdateBusConnected(up)
}
