// Package mqtt connects the service to the sensor bus.
package mqtt

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/okian/swish/internal/domain/decode"
	"github.com/okian/swish/internal/domain/model"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultPublishTimeout = 2 * time.Second
	disconnectQuiesceMs   = 250
)

// Topics names the bus topic of each sensor stream.
type Topics struct {
	Release string
	Apex    string
	Score   string
}

// DefaultTopics are the topics the sensor firmware publishes on.
var DefaultTopics = Topics{
	Release: "basket/glove/release",
	Apex:    "basket/foot/apex",
	Score:   "basket/hoop/event",
}

// Router maps the topics back to event kinds.
func (t Topics) Router() *decode.Router {
	return decode.NewRouter(t.Release, t.Apex, t.Score)
}

// For returns the topic carrying kind, or "" if kind is unknown.
func (t Topics) For(kind model.Kind) string {
	switch kind {
	case model.KindRelease:
		return t.Release
	case model.KindApex:
		return t.Apex
	case model.KindScore:
		return t.Score
	default:
		return ""
	}
}

// Config holds broker connection settings.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
}

// brokerURL accepts "host:port" as well as a full URL.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func (c Config) clientOptions(prefix string) *paho.ClientOptions {
	id := c.ClientID
	if id == "" {
		id = fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL(c.Broker))
	opts.SetClientID(id)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOrderMatters(true)
	return opts
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return defaultConnectTimeout
}
