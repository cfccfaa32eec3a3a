// internal/device/state.go
package device

import "time"

// State is a decoded view of the register cache.
// Nil fields are unknown and must never be presented as zero.
type State struct {
	Power         *bool          `json:"power"`
	Mode          *OperationMode `json:"mode"`
	Bypass        *bool          `json:"bypass"`
	SupplySpeed   *Speed         `json:"supply_speed"`
	ExhaustSpeed  *Speed         `json:"exhaust_speed"`
	ActualSupply  *int           `json:"actual_supply"`
	ActualExhaust *int           `json:"actual_exhaust"`
	Temperature   *float64       `json:"temperature"`
	Humidity      *float64       `json:"humidity"`

	// CapturedAt is when the span was last read; slot patches do not move it.
	CapturedAt *time.Time `json:"captured_at"`
}

// Available reports whether the state came from a present cache.
func (s State) Available() bool {
	return s.CapturedAt != nil
}

// Value returns the decoded value of p, or ok=false if unknown.
func (s State) Value(p Property) (any, bool) {
	switch p {
	case PropPower:
		return deref(s.Power)
	case PropMode:
		return deref(s.Mode)
	case PropBypass:
		return deref(s.Bypass)
	case PropSupplySpeed:
		return deref(s.SupplySpeed)
	case PropExhaustSpeed:
		return deref(s.ExhaustSpeed)
	case PropActualSupply:
		return deref(s.ActualSupply)
	case PropActualExhaust:
		return deref(s.ActualExhaust)
	case PropTemperature:
		return deref(s.Temperature)
	case PropHumidity:
		return deref(s.Humidity)
	}
	return nil, false
}

// Numeric returns every known value as a float, for gauges.
func (s State) Numeric() map[Property]float64 {
	out := make(map[Property]float64, len(Properties))
	for _, p := range Properties {
		v, ok := s.Value(p)
		if !ok {
			continue
		}
		switch x := v.(type) {
		case bool:
			if x {
				out[p] = 1
			} else {
				out[p] = 0
			}
		case OperationMode:
			out[p] = float64(x)
		case Speed:
			out[p] = float64(x)
		case int:
			out[p] = float64(x)
		case float64:
			out[p] = x
		}
	}
	return out
}

func (s *State) set(p Property, v any) {
	switch p {
	case PropPower:
		s.Power = ptr(v.(bool))
	case PropMode:
		s.Mode = ptr(v.(OperationMode))
	case PropBypass:
		s.Bypass = ptr(v.(bool))
	case PropSupplySpeed:
		s.SupplySpeed = ptr(v.(Speed))
	case PropExhaustSpeed:
		s.ExhaustSpeed = ptr(v.(Speed))
	case PropActualSupply:
		s.ActualSupply = ptr(v.(int))
	case PropActualExhaust:
		s.ActualExhaust = ptr(v.(int))
	case PropTemperature:
		s.Temperature = ptr(v.(float64))
	case PropHumidity:
		s.Humidity = ptr(v.(float64))
	}
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](p *T) (any, bool) {
	if p == nil {
		return nil, false
	}
	return *p, true
}
