// internal/config/validate.go
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/tamzrod/freshair-modbus/internal/device"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values mean "use the default" and are accepted here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := cfg.Device
	if d.Host == "" {
		return fmt.Errorf("device.host is required")
	}
	if d.ID != "" {
		if err := topicSegment(d.ID); err != nil {
			return fmt.Errorf("device.id %q: %w", d.ID, err)
		}
	}
	if d.Port < 0 || d.Port > 65535 {
		return fmt.Errorf("device.port %d out of range 1..65535", d.Port)
	}
	if d.CacheTTLMs < 0 {
		return fmt.Errorf("device.cache_ttl_ms must be >= 0")
	}
	for name := range d.Registers {
		if _, err := device.ParseProperty(name); err != nil {
			return fmt.Errorf("device.registers: %w", err)
		}
	}

	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	t := cfg.Transport
	for key, v := range map[string]int{
		"transport.connect_attempts":   t.ConnectAttempts,
		"transport.retry_delay_ms":     t.RetryDelayMs,
		"transport.connect_timeout_ms": t.ConnectTimeoutMs,
		"transport.request_timeout_ms": t.RequestTimeoutMs,
		"transport.idle_timeout_ms":    t.IdleTimeoutMs,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	if t.ConnectTimeoutMs > 0 && t.RetryDelayMs >= t.ConnectTimeoutMs {
		return fmt.Errorf("transport.retry_delay_ms (%d) must be below transport.connect_timeout_ms (%d)", t.RetryDelayMs, t.ConnectTimeoutMs)
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll.interval_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// MQTT (opt-in)
	// ------------------------------------------------------------

	if m := cfg.MQTT; m.Enabled {
		if m.Host == "" {
			return fmt.Errorf("mqtt.host is required when mqtt.enabled")
		}
		if m.Port < 0 || m.Port > 65535 {
			return fmt.Errorf("mqtt.port %d out of range 1..65535", m.Port)
		}
		if m.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", m.QoS)
		}
		if m.TopicPrefix != "" {
			for _, seg := range strings.Split(m.TopicPrefix, "/") {
				if err := topicSegment(seg); err != nil {
					return fmt.Errorf("mqtt.topic_prefix %q: %w", m.TopicPrefix, err)
				}
			}
		}
	}

	// ------------------------------------------------------------
	// HTTP (opt-in)
	// ------------------------------------------------------------

	if h := cfg.HTTP; h.Enabled && h.Listen != "" {
		if _, _, err := net.SplitHostPort(h.Listen); err != nil {
			return fmt.Errorf("http.listen %q: %w", h.Listen, err)
		}
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", cfg.Logging.Format)
	}

	return nil
}

// topicSegment rejects values that cannot be used as one MQTT topic level.
func topicSegment(s string) error {
	if s == "" {
		return fmt.Errorf("empty topic level")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7F {
			return fmt.Errorf("must contain ASCII characters only")
		}
		if c == '/' || c == '+' || c == '#' || c <= ' ' {
			return fmt.Errorf("invalid character %q", c)
		}
	}
	return nil
}
