// internal/config/normalize.go
package config

import (
	"strings"

	"github.com/tamzrod/freshair-modbus/internal/device"
	"github.com/tamzrod/freshair-modbus/internal/transport"
)

// Defaults not owned by transport or device.
const (
	DefaultDeviceID       = "freshair"
	DefaultPollIntervalMs = 30000
	DefaultMQTTPort       = 1883
	DefaultMQTTClientID   = "freshair-modbus"
	DefaultTopicPrefix    = "freshair"
	DefaultHTTPListen     = ":8080"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DEVICE + TRANSPORT
	// ------------------------------------------------------------

	d := &cfg.Device
	if d.ID == "" {
		d.ID = DefaultDeviceID
	}
	if d.Port == 0 {
		d.Port = transport.DefaultPort
	}
	if d.UnitID == 0 {
		d.UnitID = transport.DefaultUnitID
	}
	if d.CacheTTLMs == 0 {
		d.CacheTTLMs = int(device.DefaultCacheTTL.Milliseconds())
	}

	t := &cfg.Transport
	if t.ConnectAttempts == 0 {
		t.ConnectAttempts = transport.DefaultConnectAttempts
	}
	if t.RetryDelayMs == 0 {
		t.RetryDelayMs = int(transport.DefaultRetryDelay.Milliseconds())
	}
	if t.ConnectTimeoutMs == 0 {
		t.ConnectTimeoutMs = int(transport.DefaultConnectTimeout.Milliseconds())
	}
	if t.RequestTimeoutMs == 0 {
		t.RequestTimeoutMs = int(transport.DefaultRequestTimeout.Milliseconds())
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultPollIntervalMs
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	m := &cfg.MQTT
	if m.Port == 0 {
		m.Port = DefaultMQTTPort
	}
	if m.ClientID == "" {
		m.ClientID = DefaultMQTTClientID + "-" + d.ID
	}
	if m.TopicPrefix == "" {
		m.TopicPrefix = DefaultTopicPrefix
	}
	m.TopicPrefix = strings.Trim(m.TopicPrefix, "/")
	if m.Retain == nil {
		on := true
		m.Retain = &on
	}

	// ------------------------------------------------------------
	// HTTP + LOGGING
	// ------------------------------------------------------------

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultHTTPListen
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}
