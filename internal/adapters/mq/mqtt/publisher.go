package mqtt

import (
	"context"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/swish/internal/domain/decode"
	"github.com/okian/swish/internal/domain/model"
)

// Publisher sends sensor events to the bus. It is used by the simulator.
type Publisher struct {
	cfg    Config
	topics Topics
	client paho.Client
}

// NewPublisher creates a Publisher. Call Connect before publishing.
func NewPublisher(cfg Config, topics Topics) *Publisher {
	return &Publisher{cfg: cfg, topics: topics}
}

// Connect dials the broker and waits for the connection.
func (p *Publisher) Connect(ctx context.Context) error {
	opts := p.cfg.clientOptions("swish-sim")
	// A simulator that cannot reach the broker should fail fast.
	opts.SetConnectRetry(false)
	p.client = paho.NewClient(opts)

	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w: %w", p.cfg.Broker, ErrConnect, err)
	}
	return nil
}

// PublishEvent encodes ev and sends it on its topic.
func (p *Publisher) PublishEvent(ctx context.Context, ev model.Event) error {
	topic := p.topics.For(ev.Kind())
	if topic == "" {
		return fmt.Errorf("%w: kind %q", decode.ErrUnknownTopic, ev.Kind())
	}
	payload, err := decode.Encode(ev)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, payload)
}

// Publish sends payload on topic and waits for the broker's acknowledgement.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w: %w", topic, ErrPublish, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesceMs)
	}
}
