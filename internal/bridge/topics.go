// internal/bridge/topics.go
package bridge

import (
	"strings"

	"github.com/tamzrod/freshair-modbus/internal/device"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"

	setSuffix     = "/set"
	fanPercentage = "fan/percentage"
)

// Topics lays out the tree under <prefix>/<device_id>/.
type Topics struct {
	Prefix   string
	DeviceID string
}

func (t Topics) base() string {
	return t.Prefix + "/" + t.DeviceID
}

func (t Topics) Availability() string { return t.base() + "/availability" }
func (t Topics) State() string        { return t.base() + "/state" }
func (t Topics) Health() string       { return t.base() + "/health" }

// Property is the retained scalar topic for p.
func (t Topics) Property(p device.Property) string {
	return t.base() + "/" + string(p)
}

// Command is the topic a controller publishes to change p.
func (t Topics) Command(p device.Property) string {
	return t.Property(p) + setSuffix
}

// CommandWildcard matches every single-level property command.
func (t Topics) CommandWildcard() string {
	return t.base() + "/+" + setSuffix
}

func (t Topics) FanPercentage() string {
	return t.base() + "/" + fanPercentage
}

func (t Topics) FanPercentageCommand() string {
	return t.FanPercentage() + setSuffix
}

// commandName extracts the command name from a /set topic under this tree.
func (t Topics) commandName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.base()+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, setSuffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
