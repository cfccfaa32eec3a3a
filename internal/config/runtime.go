// internal/config/runtime.go
package config

import (
	"time"

	"github.com/tamzrod/freshair-modbus/internal/device"
	"github.com/tamzrod/freshair-modbus/internal/transport"
)

// TransportConfig maps the device endpoint and transport tuning onto transport.Config.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Host:            c.Device.Host,
		Port:            c.Device.Port,
		UnitID:          c.Device.UnitID,
		ConnectAttempts: c.Transport.ConnectAttempts,
		RetryDelay:      ms(c.Transport.RetryDelayMs),
		ConnectTimeout:  ms(c.Transport.ConnectTimeoutMs),
		RequestTimeout:  ms(c.Transport.RequestTimeoutMs),
		IdleTimeout:     ms(c.Transport.IdleTimeoutMs),
	}
}

// DeviceConfig returns the device runtime config. Register names were checked by Validate.
func (c *Config) DeviceConfig() device.Config {
	dc := device.Config{
		ID:       c.Device.ID,
		CacheTTL: ms(c.Device.CacheTTLMs),
	}
	if len(c.Device.Registers) > 0 {
		dc.Registers = make(map[device.Property]uint16, len(c.Device.Registers))
		for name, addr := range c.Device.Registers {
			p, err := device.ParseProperty(name)
			if err != nil {
				continue
			}
			dc.Registers[p] = addr
		}
	}
	return dc
}

func (c *Config) PollInterval() time.Duration {
	return ms(c.Poll.IntervalMs)
}

// RetainState reports whether state topics are published retained.
func (m MQTTConfig) RetainState() bool {
	return m.Retain == nil || *m.Retain
}
