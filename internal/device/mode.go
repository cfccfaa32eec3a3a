// internal/device/mode.go
package device

import (
	"fmt"
	"strconv"
	"strings"
)

// OperationMode is the value of the mode register.
// The upper three values are the lower three with bypass engaged.
type OperationMode uint16

const (
	ModeManual OperationMode = iota
	ModeAuto
	ModeTimer
	ModeManualBypass
	ModeAutoBypass
	ModeTimerBypass
)

// Modes lists every mode in wire order.
var Modes = []OperationMode{
	ModeManual, ModeAuto, ModeTimer,
	ModeManualBypass, ModeAutoBypass, ModeTimerBypass,
}

var modeNames = [...]string{
	"manual", "auto", "timer",
	"manual_bypass", "auto_bypass", "timer_bypass",
}

func (m OperationMode) Valid() bool {
	return m <= ModeTimerBypass
}

func (m OperationMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", uint16(m))
	}
	return modeNames[m]
}

// Bypass reports whether the mode has bypass engaged.
func (m OperationMode) Bypass() bool {
	return m.Valid() && m >= ModeManualBypass
}

// Base strips bypass: AUTO_BYPASS -> AUTO.
func (m OperationMode) Base() OperationMode {
	if m.Bypass() {
		return m - ModeManualBypass
	}
	return m
}

// WithBypass returns the same base mode with bypass set to on.
func (m OperationMode) WithBypass(on bool) OperationMode {
	b := m.Base()
	if on {
		return b + ModeManualBypass
	}
	return b
}

func (m OperationMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("device: invalid operation mode %d", uint16(m))
	}
	return []byte(m.String()), nil
}

func (m *OperationMode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode accepts a mode name (any case, '-' or ' ' for '_') or its wire number.
func ParseMode(s string) (OperationMode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)

	for i, n := range modeNames {
		if key == n {
			return OperationMode(i), nil
		}
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 0 && n <= int(ModeTimerBypass) {
		return OperationMode(n), nil
	}
	return 0, fmt.Errorf("unknown operation mode %q", s)
}

// decodeMode maps an out-of-range register value to MANUAL.
func decodeMode(raw uint16) OperationMode {
	m := OperationMode(raw)
	if !m.Valid() {
		return ModeManual
	}
	return m
}
