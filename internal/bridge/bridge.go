// internal/bridge/bridge.go
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/freshair-modbus/internal/device"
	"github.com/tamzrod/freshair-modbus/internal/mqtt"
	"github.com/tamzrod/freshair-modbus/internal/poller"
	"github.com/tamzrod/freshair-modbus/internal/status"
)

// DefaultCommandTimeout bounds the device I/O one command may cause.
const DefaultCommandTimeout = 15 * time.Second

// Client is the part of the MQTT client the bridge uses.
type Client interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Config for one bridged device.
type Config struct {
	Topics         Topics
	QoS            byte
	Retain         bool
	CommandTimeout time.Duration
}

// Bridge mirrors one device onto MQTT: state out, commands in.
type Bridge struct {
	dev    *device.Device
	client Client
	topics Topics
	qos    byte
	writer *StateWriter
	log    zerolog.Logger

	commandTimeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	online  *bool
	release func()
}

func New(cfg Config, dev *device.Device, client Client, log zerolog.Logger) *Bridge {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Bridge{
		dev:            dev,
		client:         client,
		topics:         cfg.Topics,
		qos:            cfg.QoS,
		writer:         NewStateWriter(client, cfg.Topics, cfg.QoS, cfg.Retain),
		log:            log.With().Str("component", "bridge").Str("device_id", dev.ID()).Logger(),
		commandTimeout: cfg.CommandTimeout,
		ctx:            context.Background(),
	}
}

// Start subscribes to command topics, publishes current availability and
// begins mirroring device events. ctx bounds command handling.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.client.Subscribe(b.topics.CommandWildcard(), b.qos, b.handleCommand); err != nil {
		return err
	}
	if err := b.client.Subscribe(b.topics.FanPercentageCommand(), b.qos, b.handleCommand); err != nil {
		return err
	}

	b.Reassert()

	// The device must not keep the bridge alive.
	release := device.Observe(b.dev, b, func(b *Bridge, ev device.Event) {
		b.onEvent(ev)
	})

	b.mu.Lock()
	b.release = release
	b.mu.Unlock()
	return nil
}

// Stop detaches from the device and announces offline.
func (b *Bridge) Stop() {
	b.mu.Lock()
	release := b.release
	b.release = nil
	b.mu.Unlock()

	if release != nil {
		release()
	}
	b.setAvailability(false, true)
}

// Reassert republishes everything; used on start and after reconnects.
func (b *Bridge) Reassert() {
	b.writer.Invalidate()

	s := b.dev.Cached()
	b.setAvailability(s.Available(), true)
	if s.Available() {
		b.writeState(s)
	}
}

// OnPoll reflects a poll outcome in the availability topic.
func (b *Bridge) OnPoll(res poller.PollResult) {
	b.setAvailability(res.OK(), false)
}

// Health publishes a status snapshot.
func (b *Bridge) Health(s status.Snapshot) {
	if err := b.writer.WriteHealth(s); err != nil {
		b.log.Warn().Err(err).Msg("health publish failed")
	}
}

func (b *Bridge) onEvent(ev device.Event) {
	if ev.Kind == device.EventRefreshed {
		b.setAvailability(true, false)
	}
	b.writeState(ev.State)
}

func (b *Bridge) writeState(s device.State) {
	if err := b.writer.WriteState(s); err != nil {
		b.log.Warn().Err(err).Msg("state publish failed")
	}
}

// setAvailability publishes on change, or always when force is set.
func (b *Bridge) setAvailability(online, force bool) {
	b.mu.Lock()
	if !force && b.online != nil && *b.online == online {
		b.mu.Unlock()
		return
	}
	b.online = &online
	b.mu.Unlock()

	if err := b.writer.WriteAvailability(online); err != nil {
		b.log.Warn().Err(err).Bool("online", online).Msg("availability publish failed")
		b.mu.Lock()
		b.online = nil
		b.mu.Unlock()
	}
}

func (b *Bridge) baseContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}
