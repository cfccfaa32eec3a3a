// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"time"
)

// Refresher is the one device operation the poller needs.
// *device.Device satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, force bool) error
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	DeviceID string
	Interval time.Duration
}

// Poller is a dumb, clock-driven refresher.
type Poller struct {
	cfg Config
	dev Refresher
}

// New creates a poller with immutable config.
func New(cfg Config, dev Refresher) (*Poller, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("poller: device id required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if dev == nil {
		return nil, errors.New("poller: refresher required")
	}
	return &Poller{cfg: cfg, dev: dev}, nil
}

// PollOnce performs exactly one forced refresh.
// All-or-nothing: the device either replaced its whole cache or dropped it.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	at := time.Now()
	err := p.dev.Refresh(ctx, true)
	return PollResult{
		DeviceID: p.cfg.DeviceID,
		At:       at,
		Duration: time.Since(at),
		Err:      err,
	}
}
