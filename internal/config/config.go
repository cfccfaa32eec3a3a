// internal/config/config.go
package config

import "time"

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Transport TransportConfig `yaml:"transport"`
	Poll      PollConfig      `yaml:"poll"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	ID         string `yaml:"id"` // used in topics and metric labels
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	UnitID     uint8  `yaml:"unit_id"`
	CacheTTLMs int    `yaml:"cache_ttl_ms"`

	// Registers overrides the built-in address map (property -> address).
	// Every property must be present when set.
	Registers map[string]uint16 `yaml:"registers"`
}

// ---- TRANSPORT ----

type TransportConfig struct {
	ConnectAttempts  int `yaml:"connect_attempts"`
	RetryDelayMs     int `yaml:"retry_delay_ms"`
	ConnectTimeoutMs int `yaml:"connect_timeout_ms"`
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
	IdleTimeoutMs    int `yaml:"idle_timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      *bool  `yaml:"retain"` // nil => true
}

// ---- HTTP ----

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
