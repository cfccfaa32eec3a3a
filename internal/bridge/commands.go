// internal/bridge/commands.go
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/freshair-modbus/internal/device"
)

// handleCommand applies one <name>/set message to the device.
// Invalid commands return an error; the MQTT client logs and drops them.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	name, ok := b.topics.commandName(topic)
	if !ok {
		return fmt.Errorf("bridge: not a command topic: %s", topic)
	}
	value := strings.TrimSpace(string(payload))

	ctx, cancel := context.WithTimeout(b.baseContext(), b.commandTimeout)
	defer cancel()

	if name == fanPercentage {
		return b.setFanPercentage(ctx, value)
	}

	p, err := device.ParseProperty(name)
	if err != nil {
		return err
	}

	b.log.Info().Str("property", string(p)).Str("value", value).Msg("command")
	return b.dev.Set(ctx, p, value)
}

// setFanPercentage maps 0 to power off; anything else powers on and sets
// both fans to the matching speed.
func (b *Bridge) setFanPercentage(ctx context.Context, value string) error {
	pct, err := strconv.Atoi(value)
	if err != nil || pct < 0 {
		return fmt.Errorf("bridge: invalid fan percentage %q", value)
	}

	b.log.Info().Int("percentage", pct).Msg("fan percentage command")

	speed, on := device.SpeedFromPercentage(pct)
	if !on {
		return b.dev.SetPower(ctx, false)
	}
	if err := b.dev.SetPower(ctx, true); err != nil {
		return err
	}
	if err := b.dev.SetSupplySpeed(ctx, speed); err != nil {
		return err
	}
	return b.dev.SetExhaustSpeed(ctx, speed)
}
