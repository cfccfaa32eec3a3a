// internal/config/load.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRESHAIR_"

// Load reads the YAML file at path, applies FRESHAIR_* environment overrides,
// validates and normalizes. An empty path starts from an empty config so a
// deployment can be configured from the environment alone.
//
// If envFile is set it is loaded first with godotenv; a missing file is ignored.
// Variables already present in the environment win over the file.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := decode(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	Normalize(cfg)
	return cfg, nil
}

// decode rejects unknown keys so typos surface at startup.
func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides follows FRESHAIR_SECTION_KEY.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, bits int, set func(int64)) error {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.ParseInt(v, 10, bits)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		set(n)
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	// Device
	str("DEVICE_ID", &cfg.Device.ID)
	str("DEVICE_HOST", &cfg.Device.Host)
	if err := num("DEVICE_PORT", 32, func(n int64) { cfg.Device.Port = int(n) }); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(EnvPrefix + "DEVICE_UNIT_ID"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("config: %sDEVICE_UNIT_ID: %w", EnvPrefix, err)
		}
		cfg.Device.UnitID = uint8(n)
	}

	// Poll
	if err := num("POLL_INTERVAL_MS", 32, func(n int64) { cfg.Poll.IntervalMs = int(n) }); err != nil {
		return err
	}

	// MQTT
	if err := flag("MQTT_ENABLED", &cfg.MQTT.Enabled); err != nil {
		return err
	}
	str("MQTT_HOST", &cfg.MQTT.Host)
	if err := num("MQTT_PORT", 32, func(n int64) { cfg.MQTT.Port = int(n) }); err != nil {
		return err
	}
	str("MQTT_USERNAME", &cfg.MQTT.Username)
	str("MQTT_PASSWORD", &cfg.MQTT.Password)
	str("MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)

	// HTTP
	if err := flag("HTTP_ENABLED", &cfg.HTTP.Enabled); err != nil {
		return err
	}
	str("HTTP_LISTEN", &cfg.HTTP.Listen)

	// Logging
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	return nil
}
