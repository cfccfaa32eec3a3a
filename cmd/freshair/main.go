// cmd/freshair/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/tamzrod/freshair-modbus/internal/api"
	"github.com/tamzrod/freshair-modbus/internal/bridge"
	"github.com/tamzrod/freshair-modbus/internal/config"
	"github.com/tamzrod/freshair-modbus/internal/device"
	"github.com/tamzrod/freshair-modbus/internal/logging"
	"github.com/tamzrod/freshair-modbus/internal/metrics"
	"github.com/tamzrod/freshair-modbus/internal/mqtt"
	"github.com/tamzrod/freshair-modbus/internal/poller"
	"github.com/tamzrod/freshair-modbus/internal/status"
	"github.com/tamzrod/freshair-modbus/internal/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfgPath := flag.String("config", "", "path to config.yaml (empty: environment only)")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := run(*cfgPath, *envFile); err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("freshair exited")
	}
}

func run(cfgPath, envFile string) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logging.New(cfg.Logging, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Metrics
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --------------------
	// Transport + device
	// --------------------

	tc, err := transport.New(cfg.TransportConfig(), log, m)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	dev, err := device.New(cfg.DeviceConfig(), tc, log, m)
	if err != nil {
		tc.Close()
		return fmt.Errorf("device: %w", err)
	}
	defer dev.Close()

	deviceID := dev.ID()
	cancelGauges := dev.Subscribe(func(ev device.Event) {
		for p, v := range ev.State.Numeric() {
			m.SetValue(deviceID, string(p), v)
		}
	})
	defer cancelGauges()

	// --------------------
	// Status
	// --------------------

	tracker := status.NewTracker(3 * cfg.PollInterval())

	// --------------------
	// MQTT bridge (optional)
	// --------------------

	var br *bridge.Bridge
	if cfg.MQTT.Enabled {
		topics := bridge.Topics{Prefix: cfg.MQTT.TopicPrefix, DeviceID: deviceID}
		client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
			Topic:    topics.Availability(),
			Payload:  "offline",
			QoS:      cfg.MQTT.QoS,
			Retained: true,
		}, log)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer client.Close()

		br = bridge.New(bridge.Config{
			Topics: topics,
			QoS:    cfg.MQTT.QoS,
			Retain: cfg.MQTT.RetainState(),
		}, dev, client, log)
		if err := br.Start(ctx); err != nil {
			return fmt.Errorf("bridge: %w", err)
		}
		defer br.Stop()

		client.SetOnConnect(br.Reassert)
	}

	// --------------------
	// HTTP API (optional)
	// --------------------

	if cfg.HTTP.Enabled {
		srv, err := api.New(cfg.HTTP.Listen, api.Deps{
			Device:   dev,
			Health:   tracker,
			Gatherer: reg,
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("api: %w", err)
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Close()
	}

	// --------------------
	// Poller + orchestrator
	// --------------------

	p, err := poller.Build(cfg, dev)
	if err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	out := make(chan poller.PollResult)
	go p.Run(ctx, out)

	log.Info().
		Str("device_id", deviceID).
		Str("address", cfg.TransportConfig().Address()).
		Dur("poll_interval", cfg.PollInterval()).
		Bool("mqtt", cfg.MQTT.Enabled).
		Bool("http", cfg.HTTP.Enabled).
		Msg("started")

	orchestrate(ctx, out, tracker, br, m, deviceID, log)

	log.Info().Msg("shutting down")
	return nil
}

// orchestrate owns the status tracker: poll results and a 1 Hz ticker in,
// health and availability out. Returns when ctx is done.
func orchestrate(
	ctx context.Context,
	in <-chan poller.PollResult,
	tracker *status.Tracker,
	br *bridge.Bridge,
	m *metrics.Metrics,
	deviceID string,
	log zerolog.Logger,
) {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	publish := func() {
		if br != nil {
			br.Health(tracker.Snapshot())
		}
	}
	publish()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			if !res.OK() {
				log.Warn().Err(res.Err).Str("device_id", res.DeviceID).Dur("duration", res.Duration).Msg("poll failed")
				m.ClearValues(deviceID)
			}
			if br != nil {
				br.OnPoll(res)
			}
			if tracker.Apply(res) {
				publish()
			}

		case <-secTicker.C:
			if tracker.Tick() {
				publish()
			}
		}
	}
}
