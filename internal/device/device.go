// internal/device/device.go
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/freshair-modbus/internal/metrics"
)

// Transport is the register I/O the device needs.
// *transport.Client satisfies it.
type Transport interface {
	ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error)
	WriteSingleRegister(ctx context.Context, address, value uint16) error
	Close() error
}

// Config is the runtime config of one device.
type Config struct {
	ID       string
	CacheTTL time.Duration

	// Registers overrides DefaultRegisters when non-nil.
	Registers map[Property]uint16
}

// Device is one ventilation unit behind a register cache.
//
// Reads are served from a TTL-bounded snapshot of the whole register span.
// Writes go straight to the device and, once confirmed, patch the one slot
// they touched. A failed refresh drops the snapshot; a failed write leaves it alone.
type Device struct {
	id      string
	t       Transport
	regs    RegisterMap
	log     zerolog.Logger
	metrics *metrics.Metrics

	// mu serializes transport I/O and every cache mutation.
	mu    sync.Mutex
	cache *registerCache

	obs observers
}

// New builds a device over t. The cache starts empty; nothing is read here.
func New(cfg Config, t Transport, log zerolog.Logger, m *metrics.Metrics) (*Device, error) {
	if cfg.ID == "" {
		return nil, errors.New("device: id required")
	}
	if t == nil {
		return nil, errors.New("device: transport required")
	}

	addrs := cfg.Registers
	if addrs == nil {
		addrs = DefaultRegisters
	}
	regs, err := NewRegisterMap(addrs)
	if err != nil {
		return nil, err
	}

	start, _ := regs.Span()
	return &Device{
		id:      cfg.ID,
		t:       t,
		regs:    regs,
		log:     log.With().Str("component", "device").Str("device_id", cfg.ID).Logger(),
		metrics: m,
		cache:   newRegisterCache(start, cfg.CacheTTL),
	}, nil
}

func (d *Device) ID() string {
	return d.id
}

func (d *Device) Registers() RegisterMap {
	return d.regs
}

// Close releases the transport.
func (d *Device) Close() error {
	return d.t.Close()
}

// ---- read path ----

// Get returns the decoded value of p.
// ok=false means unknown: the cache could not be filled or the raw value is out of domain.
func (d *Device) Get(ctx context.Context, p Property) (any, bool) {
	if _, known := codecs[p]; !known {
		return nil, false
	}

	d.mu.Lock()
	events := d.ensureLocked(ctx)
	v, ok := d.decodeLocked(p)
	d.mu.Unlock()

	d.obs.notify(events...)
	return v, ok
}

// Register returns the raw cached register mapped to p, refreshing if needed.
func (d *Device) Register(ctx context.Context, p Property) (uint16, bool) {
	addr, ok := d.regs.Address(p)
	if !ok {
		return 0, false
	}

	d.mu.Lock()
	events := d.ensureLocked(ctx)
	raw, ok := d.cache.value(addr)
	d.mu.Unlock()

	d.obs.notify(events...)
	return raw, ok
}

// State returns every property, refreshing first if the cache is not valid.
func (d *Device) State(ctx context.Context) State {
	d.mu.Lock()
	events := d.ensureLocked(ctx)
	s := d.stateLocked()
	d.mu.Unlock()

	d.obs.notify(events...)
	return s
}

// Cached returns the current cache contents without any I/O, expired or not.
func (d *Device) Cached() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Refresh reads the whole register span.
// Without force, a valid cache short-circuits with no I/O.
func (d *Device) Refresh(ctx context.Context, force bool) error {
	d.mu.Lock()
	if !force && d.cache.valid() {
		d.mu.Unlock()
		return nil
	}
	ev, err := d.refreshLocked(ctx)
	d.mu.Unlock()

	if err != nil {
		return err
	}
	d.obs.notify(ev)
	return nil
}

// ensureLocked refreshes an invalid cache. Failures leave the cache absent
// and are logged by refreshLocked; callers see them as unknown values.
func (d *Device) ensureLocked(ctx context.Context) []Event {
	hit := d.cache.valid()
	d.metrics.CacheLookup(hit)
	if hit {
		return nil
	}
	ev, err := d.refreshLocked(ctx)
	if err != nil {
		return nil
	}
	return []Event{ev}
}

func (d *Device) refreshLocked(ctx context.Context) (Event, error) {
	start, count := d.regs.Span()

	regs, err := d.t.ReadHoldingRegisters(ctx, start, count)
	if err == nil && len(regs) != int(count) {
		err = fmt.Errorf("got %d registers, want %d", len(regs), count)
	}
	d.metrics.Refresh(err)

	if err != nil {
		d.cache.invalidate()
		d.log.Warn().Err(err).Uint16("start", start).Uint16("count", count).Msg("refresh failed; cache dropped")
		return Event{}, fmt.Errorf("refresh %s: %w", d.id, err)
	}

	d.cache.replace(regs)
	d.log.Debug().Uint16("start", start).Uint16("count", count).Msg("cache refreshed")
	return d.eventLocked(EventRefreshed, ""), nil
}

func (d *Device) decodeLocked(p Property) (any, bool) {
	c := codecs[p]
	addr, ok := d.regs.Address(c.reg)
	if !ok {
		return nil, false
	}
	raw, ok := d.cache.value(addr)
	if !ok {
		return nil, false
	}
	return c.decode(raw)
}

func (d *Device) stateLocked() State {
	var s State
	if !d.cache.present() {
		return s
	}
	at := d.cache.capturedAt
	s.CapturedAt = &at

	for _, p := range Properties {
		if v, ok := d.decodeLocked(p); ok {
			s.set(p, v)
		}
	}
	return s
}

func (d *Device) eventLocked(kind EventKind, p Property) Event {
	return Event{
		DeviceID: d.id,
		Kind:     kind,
		Property: p,
		At:       d.cache.now(),
		State:    d.stateLocked(),
	}
}

// ---- write path ----

// Set validates v for p and writes it.
// Invalid values fail with *ValidationError before any I/O.
func (d *Device) Set(ctx context.Context, p Property, v any) error {
	c, ok := codecs[p]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProperty, p)
	}

	if p == PropBypass {
		on, err := toBool(p, v)
		if err != nil {
			return err
		}
		return d.SetBypass(ctx, on)
	}

	if c.encode == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, p)
	}
	raw, err := c.encode(p, v)
	if err != nil {
		return err
	}
	addr, _ := d.regs.Address(c.reg)

	d.mu.Lock()
	ev, err := d.writeLocked(ctx, p, addr, raw)
	d.mu.Unlock()

	if err != nil {
		return err
	}
	d.obs.notify(ev)
	return nil
}

// SetBypass engages or releases bypass by rewriting the mode register with the
// same base mode. The current mode must be known, so an invalid cache is refreshed first.
func (d *Device) SetBypass(ctx context.Context, on bool) error {
	modeAddr, _ := d.regs.Address(PropMode)

	d.mu.Lock()
	var events []Event
	if !d.cache.valid() {
		ev, err := d.refreshLocked(ctx)
		if err != nil {
			d.mu.Unlock()
			return fmt.Errorf("set bypass: current mode unknown: %w", err)
		}
		events = append(events, ev)
	}

	raw, _ := d.cache.value(modeAddr)
	next := decodeMode(raw).WithBypass(on)

	ev, err := d.writeLocked(ctx, PropBypass, modeAddr, uint16(next))
	if err == nil {
		events = append(events, ev)
	}
	d.mu.Unlock()

	d.obs.notify(events...)
	return err
}

func (d *Device) writeLocked(ctx context.Context, p Property, addr, raw uint16) (Event, error) {
	if err := d.t.WriteSingleRegister(ctx, addr, raw); err != nil {
		d.log.Warn().Err(err).Str("property", string(p)).Uint16("address", addr).Uint16("value", raw).Msg("write failed")
		return Event{}, fmt.Errorf("set %s: %w", p, err)
	}

	if d.cache.patch(addr, raw) {
		d.metrics.Patch()
		d.log.Debug().Str("property", string(p)).Uint16("address", addr).Uint16("value", raw).Msg("cache patched")
	}
	return d.eventLocked(EventWritten, p), nil
}

// ---- typed accessors ----

func getAs[T any](ctx context.Context, d *Device, p Property) (T, bool) {
	var zero T
	v, ok := d.Get(ctx, p)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func (d *Device) Power(ctx context.Context) (bool, bool) {
	return getAs[bool](ctx, d, PropPower)
}

func (d *Device) Mode(ctx context.Context) (OperationMode, bool) {
	return getAs[OperationMode](ctx, d, PropMode)
}

func (d *Device) Bypass(ctx context.Context) (bool, bool) {
	return getAs[bool](ctx, d, PropBypass)
}

func (d *Device) SupplySpeed(ctx context.Context) (Speed, bool) {
	return getAs[Speed](ctx, d, PropSupplySpeed)
}

func (d *Device) ExhaustSpeed(ctx context.Context) (Speed, bool) {
	return getAs[Speed](ctx, d, PropExhaustSpeed)
}

func (d *Device) ActualSupply(ctx context.Context) (int, bool) {
	return getAs[int](ctx, d, PropActualSupply)
}

func (d *Device) ActualExhaust(ctx context.Context) (int, bool) {
	return getAs[int](ctx, d, PropActualExhaust)
}

// Temperature is in degrees Celsius.
func (d *Device) Temperature(ctx context.Context) (float64, bool) {
	return getAs[float64](ctx, d, PropTemperature)
}

// Humidity is in percent relative humidity.
func (d *Device) Humidity(ctx context.Context) (float64, bool) {
	return getAs[float64](ctx, d, PropHumidity)
}

func (d *Device) SetPower(ctx context.Context, on bool) error {
	return d.Set(ctx, PropPower, on)
}

func (d *Device) SetMode(ctx context.Context, m OperationMode) error {
	return d.Set(ctx, PropMode, m)
}

func (d *Device) SetSupplySpeed(ctx context.Context, s Speed) error {
	return d.Set(ctx, PropSupplySpeed, s)
}

func (d *Device) SetExhaustSpeed(ctx context.Context, s Speed) error {
	return d.Set(ctx, PropExhaustSpeed, s)
}
