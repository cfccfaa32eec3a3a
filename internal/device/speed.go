// internal/device/speed.go
package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Speed is a fan speed step, 1..3 on the wire.
type Speed uint8

const (
	SpeedLow    Speed = 1
	SpeedMedium Speed = 2
	SpeedHigh   Speed = 3
)

var speedNames = map[Speed]string{
	SpeedLow:    "low",
	SpeedMedium: "medium",
	SpeedHigh:   "high",
}

func (s Speed) Valid() bool {
	return s >= SpeedLow && s <= SpeedHigh
}

func (s Speed) String() string {
	if n, ok := speedNames[s]; ok {
		return n
	}
	return fmt.Sprintf("speed(%d)", uint8(s))
}

// Percentage maps a speed onto 0..100 in equal steps: 33, 66, 100.
func (s Speed) Percentage() int {
	if !s.Valid() {
		return 0
	}
	return int(s) * 100 / int(SpeedHigh)
}

// SpeedFromPercentage rounds a percentage up to the next step.
// 0 (or less) means off and yields ok=false; values above 100 clamp to high.
func SpeedFromPercentage(pct int) (Speed, bool) {
	if pct <= 0 {
		return 0, false
	}
	if pct > 100 {
		pct = 100
	}
	return Speed((pct*int(SpeedHigh) + 99) / 100), true
}

// ParseSpeed accepts "low", "medium", "high" or "1".."3".
func ParseSpeed(s string) (Speed, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for sp, n := range speedNames {
		if key == n {
			return sp, nil
		}
	}
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, fmt.Errorf("unknown speed %q", s)
	}
	if n >= int(SpeedLow) && n <= int(SpeedHigh) {
		return Speed(n), nil
	}
	return 0, fmt.Errorf("speed %d out of range 1..3", n)
}
