// internal/poller/builder.go
package poller

import (
	cfg "github.com/tamzrod/freshair-modbus/internal/config"
)

// Build constructs the Poller for the configured device.
// The device owns the transport lifecycle; the poller only triggers refreshes.
func Build(c *cfg.Config, dev Refresher) (*Poller, error) {
	return New(
		Config{
			DeviceID: c.Device.ID,
			Interval: c.PollInterval(),
		},
		dev,
	)
}
