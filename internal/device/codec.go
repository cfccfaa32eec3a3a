// internal/device/codec.go
package device

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// codec describes how one property lives in the register bank.
// reg is the register the value is decoded from; encode is nil for read-only properties.
type codec struct {
	reg    Property
	decode func(raw uint16) (any, bool)
	encode func(p Property, v any) (uint16, error)
}

// Bypass has no encoder: it is folded into the mode register by Device.SetBypass.
var codecs = map[Property]codec{
	PropPower:         {reg: PropPower, decode: decodeBool, encode: encodeBool},
	PropMode:          {reg: PropMode, decode: decodeModeValue, encode: encodeMode},
	PropBypass:        {reg: PropMode, decode: decodeBypass},
	PropSupplySpeed:   {reg: PropSupplySpeed, decode: decodeSpeed, encode: encodeSpeed},
	PropExhaustSpeed:  {reg: PropExhaustSpeed, decode: decodeSpeed, encode: encodeSpeed},
	PropActualSupply:  {reg: PropActualSupply, decode: decodeRaw},
	PropActualExhaust: {reg: PropActualExhaust, decode: decodeRaw},
	PropTemperature:   {reg: PropTemperature, decode: decodeTenths},
	PropHumidity:      {reg: PropHumidity, decode: decodeTenths},
}

// ---- decode ----

func decodeBool(raw uint16) (any, bool) {
	return raw != 0, true
}

func decodeModeValue(raw uint16) (any, bool) {
	return decodeMode(raw), true
}

func decodeBypass(raw uint16) (any, bool) {
	return decodeMode(raw).Bypass(), true
}

// decodeSpeed reports absent for anything outside 1..3.
func decodeSpeed(raw uint16) (any, bool) {
	if raw < uint16(SpeedLow) || raw > uint16(SpeedHigh) {
		return nil, false
	}
	return Speed(raw), true
}

func decodeRaw(raw uint16) (any, bool) {
	return int(raw), true
}

func decodeTenths(raw uint16) (any, bool) {
	return float64(raw) / 10, true
}

// ---- encode ----

func encodeBool(p Property, v any) (uint16, error) {
	b, err := toBool(p, v)
	if err != nil {
		return 0, err
	}
	if b {
		return 1, nil
	}
	return 0, nil
}

func encodeMode(p Property, v any) (uint16, error) {
	switch x := v.(type) {
	case OperationMode:
		if !x.Valid() {
			return 0, invalid(p, v, "must be one of %d modes", len(Modes))
		}
		return uint16(x), nil
	case string:
		m, err := ParseMode(x)
		if err != nil {
			return 0, invalid(p, v, "%v", err)
		}
		return uint16(m), nil
	}
	n, ok := toInt(v)
	if !ok {
		return 0, invalid(p, v, "unsupported type %T", v)
	}
	if n < 0 || n > int64(ModeTimerBypass) {
		return 0, invalid(p, v, "must be 0..%d", ModeTimerBypass)
	}
	return uint16(n), nil
}

func encodeSpeed(p Property, v any) (uint16, error) {
	switch x := v.(type) {
	case Speed:
		if !x.Valid() {
			return 0, invalid(p, v, "must be 1..3")
		}
		return uint16(x), nil
	case string:
		s, err := ParseSpeed(x)
		if err != nil {
			return 0, invalid(p, v, "%v", err)
		}
		return uint16(s), nil
	}
	n, ok := toInt(v)
	if !ok {
		return 0, invalid(p, v, "unsupported type %T", v)
	}
	if n < int64(SpeedLow) || n > int64(SpeedHigh) {
		return 0, invalid(p, v, "must be 1..3")
	}
	return uint16(n), nil
}

// ---- coercion ----

// toBool accepts bool, 0/1, and on/off style strings.
func toBool(p Property, v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "on", "yes":
			return true, nil
		case "off", "no":
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, invalid(p, v, "not a boolean")
		}
		return b, nil
	}
	n, ok := toInt(v)
	if !ok {
		return false, invalid(p, v, "unsupported type %T", v)
	}
	if n != 0 && n != 1 {
		return false, invalid(p, v, "must be 0 or 1")
	}
	return n == 1, nil
}

// toInt widens integer kinds, integral floats and json.Number.
func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return clampUint(uint64(x))
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return clampUint(x)
	case float32:
		return integral(float64(x))
	case float64:
		return integral(x)
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	}
	return 0, false
}

func clampUint(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
