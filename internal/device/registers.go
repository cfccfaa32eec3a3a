// internal/device/registers.go
package device

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Property is a logical device value addressed by name.
type Property string

const (
	PropPower         Property = "power"
	PropMode          Property = "mode"
	PropSupplySpeed   Property = "supply_speed"
	PropExhaustSpeed  Property = "exhaust_speed"
	PropBypass        Property = "bypass"
	PropActualSupply  Property = "actual_supply"
	PropActualExhaust Property = "actual_exhaust"
	PropTemperature   Property = "temperature"
	PropHumidity      Property = "humidity"
)

// Properties lists every property in presentation order.
var Properties = []Property{
	PropPower,
	PropMode,
	PropBypass,
	PropSupplySpeed,
	PropExhaustSpeed,
	PropActualSupply,
	PropActualExhaust,
	PropTemperature,
	PropHumidity,
}

// DefaultRegisters is the holding-register layout of the ventilation unit.
var DefaultRegisters = map[Property]uint16{
	PropPower:         0,
	PropMode:          4,
	PropSupplySpeed:   7,
	PropExhaustSpeed:  8,
	PropBypass:        9,
	PropActualSupply:  12,
	PropActualExhaust: 13,
	PropTemperature:   16,
	PropHumidity:      17,
}

// maxSpan is the FC03 quantity limit; the whole map is read in one request.
const maxSpan = 125

// ParseProperty resolves a property name.
func ParseProperty(name string) (Property, error) {
	p := Property(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := codecs[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
	return p, nil
}

// Writable reports whether p has a setter.
func (p Property) Writable() bool {
	c, ok := codecs[p]
	return ok && (c.encode != nil || p == PropBypass)
}

// RegisterMap maps properties to holding-register addresses.
// Immutable after construction.
type RegisterMap struct {
	addrs map[Property]uint16
	min   uint16
	max   uint16
}

// NewRegisterMap copies addrs and computes the read span.
// Every known property must be mapped.
func NewRegisterMap(addrs map[Property]uint16) (RegisterMap, error) {
	if len(addrs) == 0 {
		return RegisterMap{}, errors.New("device: register map is empty")
	}

	m := RegisterMap{addrs: make(map[Property]uint16, len(addrs))}
	first := true
	for p, a := range addrs {
		if _, ok := codecs[p]; !ok {
			return RegisterMap{}, fmt.Errorf("%w: %q in register map", ErrUnknownProperty, p)
		}
		m.addrs[p] = a
		if first || a < m.min {
			m.min = a
		}
		if first || a > m.max {
			m.max = a
		}
		first = false
	}

	for _, p := range Properties {
		if _, ok := m.addrs[p]; !ok {
			return RegisterMap{}, fmt.Errorf("device: register map missing %q", p)
		}
	}

	if int(m.max)-int(m.min)+1 > maxSpan {
		return RegisterMap{}, fmt.Errorf("device: register span %d..%d exceeds %d registers", m.min, m.max, maxSpan)
	}
	return m, nil
}

// Address returns the register address of p.
func (m RegisterMap) Address(p Property) (uint16, bool) {
	a, ok := m.addrs[p]
	return a, ok
}

// Span returns the start address and register count covering every mapped address.
func (m RegisterMap) Span() (start, count uint16) {
	return m.min, m.max - m.min + 1
}

// Addresses returns a copy of the map.
func (m RegisterMap) Addresses() map[Property]uint16 {
	out := make(map[Property]uint16, len(m.addrs))
	for p, a := range m.addrs {
		out[p] = a
	}
	return out
}

// Sorted returns properties in ascending address order.
func (m RegisterMap) Sorted() []Property {
	out := make([]Property, 0, len(m.addrs))
	for p := range m.addrs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if m.addrs[out[i]] == m.addrs[out[j]] {
			return out[i] < out[j]
		}
		return m.addrs[out[i]] < m.addrs[out[j]]
	})
	return out
}
