// internal/mqtt/options.go
package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tamzrod/freshair-modbus/internal/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// milliseconds
	defaultDisconnectQuiesce = 1000

	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = time.Minute

	maxQoS         = 2
	maxPayloadSize = 1 << 20
)

// Will is the Last Will and Testament the broker publishes on an unclean disconnect.
type Will struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// buildClientOptions maps config onto paho options: plain TCP broker URL,
// optional credentials, clean session, auto-reconnect with backoff.
func buildClientOptions(cfg config.MQTTConfig, will *Will) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInitialDelay)
	opts.SetMaxReconnectInterval(reconnectMaxDelay)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Handlers may publish and wait on the ack.
	opts.SetOrderMatters(false)

	if will != nil && will.Topic != "" {
		opts.SetWill(will.Topic, will.Payload, will.QoS, will.Retained)
	}
	return opts
}
