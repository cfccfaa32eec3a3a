// internal/device/device_test.go
package device

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fake transport ----

type readCall struct {
	addr uint16
	qty  uint16
}

type writeCall struct {
	addr  uint16
	value uint16
}

type fakeTransport struct {
	bank     [32]uint16
	reads    []readCall
	writes   []writeCall
	readErr  error
	writeErr error
	closed   bool
}

func (f *fakeTransport) ReadHoldingRegisters(_ context.Context, addr, qty uint16) ([]uint16, error) {
	f.reads = append(f.reads, readCall{addr: addr, qty: qty})
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]uint16, qty)
	copy(out, f.bank[addr:addr+qty])
	return out, nil
}

func (f *fakeTransport) WriteSingleRegister(_ context.Context, addr, value uint16) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, writeCall{addr: addr, value: value})
	f.bank[addr] = value
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDevice(t *testing.T, ft *fakeTransport) (*Device, *fakeClock) {
	t.Helper()
	d, err := New(Config{ID: "unit-1"}, ft, zerolog.Nop(), nil)
	require.NoError(t, err)

	clk := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	d.cache.now = clk.Now
	return d, clk
}

var ctx = context.Background()

// ---- construction ----

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, &fakeTransport{}, zerolog.Nop(), nil)
	require.Error(t, err)

	_, err = New(Config{ID: "x"}, nil, zerolog.Nop(), nil)
	require.Error(t, err)

	_, err = New(Config{ID: "x", Registers: map[Property]uint16{PropPower: 0}}, &fakeTransport{}, zerolog.Nop(), nil)
	require.Error(t, err)
}

func TestNew_DefaultTTL(t *testing.T) {
	d, err := New(Config{ID: "x"}, &fakeTransport{}, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheTTL, d.cache.ttl)
	assert.False(t, d.cache.present())
}

func TestClose_ClosesTransport(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)
	require.NoError(t, d.Close())
	assert.True(t, ft.closed)
}

// ---- read path ----

func TestGet_ReadsWholeSpanOnce(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[0] = 1
	ft.bank[16] = 215
	ft.bank[17] = 456
	d, _ := newTestDevice(t, ft)

	on, ok := d.Power(ctx)
	require.True(t, ok)
	assert.True(t, on)

	temp, ok := d.Temperature(ctx)
	require.True(t, ok)
	assert.InDelta(t, 21.5, temp, 1e-9)

	hum, ok := d.Humidity(ctx)
	require.True(t, ok)
	assert.InDelta(t, 45.6, hum, 1e-9)

	require.Len(t, ft.reads, 1)
	assert.Equal(t, readCall{addr: 0, qty: 18}, ft.reads[0])
}

func TestGet_DecodeRules(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[0] = 7  // nonzero power
	ft.bank[4] = 42 // unknown mode
	ft.bank[7] = 0  // out-of-domain speed
	ft.bank[8] = 3
	ft.bank[12] = 2
	ft.bank[13] = 1
	d, _ := newTestDevice(t, ft)

	on, ok := d.Power(ctx)
	require.True(t, ok)
	assert.True(t, on)

	m, ok := d.Mode(ctx)
	require.True(t, ok)
	assert.Equal(t, ModeManual, m)

	_, ok = d.SupplySpeed(ctx)
	assert.False(t, ok, "speed 0 is unknown, not zero")

	s, ok := d.ExhaustSpeed(ctx)
	require.True(t, ok)
	assert.Equal(t, SpeedHigh, s)

	a, ok := d.ActualSupply(ctx)
	require.True(t, ok)
	assert.Equal(t, 2, a)

	a, ok = d.ActualExhaust(ctx)
	require.True(t, ok)
	assert.Equal(t, 1, a)

	_, ok = d.Get(ctx, Property("nope"))
	assert.False(t, ok)
}

func TestRefresh_TTL(t *testing.T) {
	ft := &fakeTransport{}
	d, clk := newTestDevice(t, ft)

	require.NoError(t, d.Refresh(ctx, false))
	require.NoError(t, d.Refresh(ctx, false))
	assert.Len(t, ft.reads, 1, "second refresh within ttl is a no-op")

	clk.Advance(DefaultCacheTTL - time.Millisecond)
	require.NoError(t, d.Refresh(ctx, false))
	assert.Len(t, ft.reads, 1)

	clk.Advance(time.Millisecond)
	require.NoError(t, d.Refresh(ctx, false))
	assert.Len(t, ft.reads, 2, "refresh at ttl re-reads")

	require.NoError(t, d.Refresh(ctx, true))
	assert.Len(t, ft.reads, 3, "force always reads")
}

func TestRefresh_FailureDropsCache(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[0] = 1
	d, _ := newTestDevice(t, ft)

	on, ok := d.Power(ctx)
	require.True(t, ok)
	require.True(t, on)
	require.Len(t, ft.reads, 1)

	boom := errors.New("link down")
	ft.readErr = boom
	err := d.Refresh(ctx, true)
	require.ErrorIs(t, err, boom)
	require.Len(t, ft.reads, 2)
	assert.False(t, d.Cached().Available())

	_, ok = d.Power(ctx)
	assert.False(t, ok, "stale value must not be served")
	assert.Len(t, ft.reads, 3, "get retries exactly once")
}

func TestRegister_Raw(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[9] = 1
	d, _ := newTestDevice(t, ft)

	raw, ok := d.Register(ctx, PropBypass)
	require.True(t, ok)
	assert.Equal(t, uint16(1), raw)

	// bypass is derived from the mode register, not register 9
	b, ok := d.Bypass(ctx)
	require.True(t, ok)
	assert.False(t, b)
}

// ---- write path ----

func TestSetPower_PatchesCacheWithoutRead(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	on, ok := d.Power(ctx)
	require.True(t, ok)
	require.False(t, on)

	require.NoError(t, d.SetPower(ctx, true))
	require.Equal(t, []writeCall{{addr: 0, value: 1}}, ft.writes)

	on, ok = d.Power(ctx)
	require.True(t, ok)
	assert.True(t, on)
	assert.Len(t, ft.reads, 1, "no span read after a confirmed write")
}

func TestSet_WithoutCacheDoesNotPopulate(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	require.NoError(t, d.SetSupplySpeed(ctx, SpeedMedium))
	assert.False(t, d.Cached().Available())
	assert.Empty(t, ft.reads)

	s, ok := d.SupplySpeed(ctx)
	require.True(t, ok)
	assert.Equal(t, SpeedMedium, s)
	assert.Len(t, ft.reads, 1)
}

func TestSet_ValidationIssuesNoIO(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	for _, v := range []any{0, 5, -1, Speed(0), Speed(4), "turbo", 1.5, nil} {
		err := d.Set(ctx, PropSupplySpeed, v)
		require.ErrorIs(t, err, ErrInvalidValue, "value %v", v)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, PropSupplySpeed, ve.Property)
	}

	require.ErrorIs(t, d.Set(ctx, PropMode, 6), ErrInvalidValue)
	require.ErrorIs(t, d.Set(ctx, PropMode, OperationMode(9)), ErrInvalidValue)
	require.ErrorIs(t, d.Set(ctx, PropMode, "party"), ErrInvalidValue)
	require.ErrorIs(t, d.Set(ctx, PropPower, 2), ErrInvalidValue)
	require.ErrorIs(t, d.Set(ctx, PropBypass, "maybe"), ErrInvalidValue)

	require.ErrorIs(t, d.Set(ctx, PropTemperature, 20.0), ErrReadOnly)
	require.ErrorIs(t, d.Set(ctx, PropActualSupply, 1), ErrReadOnly)
	require.ErrorIs(t, d.Set(ctx, Property("fan"), 1), ErrUnknownProperty)

	assert.Empty(t, ft.writes)
	assert.Empty(t, ft.reads)
}

func TestSet_AcceptedForms(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	require.NoError(t, d.Set(ctx, PropSupplySpeed, "high"))
	require.NoError(t, d.Set(ctx, PropExhaustSpeed, float64(2)))
	require.NoError(t, d.Set(ctx, PropExhaustSpeed, json.Number("1")))
	require.NoError(t, d.Set(ctx, PropMode, "Auto"))
	require.NoError(t, d.Set(ctx, PropMode, "timer-bypass"))
	require.NoError(t, d.Set(ctx, PropPower, "ON"))
	require.NoError(t, d.Set(ctx, PropPower, 0))

	assert.Equal(t, []writeCall{
		{addr: 7, value: 3},
		{addr: 8, value: 2},
		{addr: 8, value: 1},
		{addr: 4, value: 1},
		{addr: 4, value: 5},
		{addr: 0, value: 1},
		{addr: 0, value: 0},
	}, ft.writes)
}

func TestSet_WriteFailureLeavesCache(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[7] = 1
	d, _ := newTestDevice(t, ft)

	s, ok := d.SupplySpeed(ctx)
	require.True(t, ok)
	require.Equal(t, SpeedLow, s)

	ft.writeErr = errors.New("exception 4")
	err := d.SetSupplySpeed(ctx, SpeedHigh)
	require.ErrorIs(t, err, ft.writeErr)

	s, ok = d.SupplySpeed(ctx)
	require.True(t, ok)
	assert.Equal(t, SpeedLow, s)
	assert.Len(t, ft.reads, 1)
	assert.True(t, d.Cached().Available())
}

func TestPatch_KeepsTTLClock(t *testing.T) {
	ft := &fakeTransport{}
	d, clk := newTestDevice(t, ft)

	require.NoError(t, d.Refresh(ctx, false))
	clk.Advance(20 * time.Second)
	require.NoError(t, d.SetPower(ctx, true))

	clk.Advance(10 * time.Second)
	_, ok := d.Power(ctx)
	require.True(t, ok)
	assert.Len(t, ft.reads, 2, "write does not extend the ttl")
}

func TestScenario_ModeChangesAndExternalUpdate(t *testing.T) {
	ft := &fakeTransport{}
	d, clk := newTestDevice(t, ft)

	m, ok := d.Mode(ctx)
	require.True(t, ok)
	assert.Equal(t, ModeManual, m)

	require.NoError(t, d.SetMode(ctx, ModeAuto))
	assert.Equal(t, []writeCall{{addr: 4, value: 1}}, ft.writes)

	m, ok = d.Mode(ctx)
	require.True(t, ok)
	assert.Equal(t, ModeAuto, m)
	assert.Len(t, ft.reads, 1)

	// device-side change
	ft.bank[4] = uint16(ModeTimer)

	m, _ = d.Mode(ctx)
	assert.Equal(t, ModeAuto, m, "not visible before refresh")

	clk.Advance(DefaultCacheTTL)
	m, ok = d.Mode(ctx)
	require.True(t, ok)
	assert.Equal(t, ModeTimer, m)
	assert.Len(t, ft.reads, 2)
}

// ---- bypass ----

func TestSetBypass_FoldsIntoMode(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[4] = uint16(ModeAuto)
	d, _ := newTestDevice(t, ft)

	require.NoError(t, d.SetBypass(ctx, true))
	require.Len(t, ft.reads, 1, "mode unknown: refreshed first")
	assert.Equal(t, []writeCall{{addr: 4, value: uint16(ModeAutoBypass)}}, ft.writes)

	b, ok := d.Bypass(ctx)
	require.True(t, ok)
	assert.True(t, b)

	m, _ := d.Mode(ctx)
	assert.Equal(t, ModeAutoBypass, m)

	require.NoError(t, d.Set(ctx, PropBypass, "off"))
	m, _ = d.Mode(ctx)
	assert.Equal(t, ModeAuto, m)

	assert.Len(t, ft.reads, 1)
	assert.Zero(t, ft.bank[9], "bypass register is never written")
}

func TestSetBypass_UnknownModeFails(t *testing.T) {
	ft := &fakeTransport{readErr: errors.New("down")}
	d, _ := newTestDevice(t, ft)

	err := d.SetBypass(ctx, true)
	require.ErrorIs(t, err, ft.readErr)
	assert.Empty(t, ft.writes)
}

// ---- codec ----

func TestCodec_RoundTrip(t *testing.T) {
	for _, s := range []Speed{SpeedLow, SpeedMedium, SpeedHigh} {
		raw, err := encodeSpeed(PropSupplySpeed, s)
		require.NoError(t, err)
		v, ok := decodeSpeed(raw)
		require.True(t, ok)
		assert.Equal(t, s, v)
	}

	for _, b := range []bool{true, false} {
		raw, err := encodeBool(PropPower, b)
		require.NoError(t, err)
		v, ok := decodeBool(raw)
		require.True(t, ok)
		assert.Equal(t, b, v)
	}

	for _, m := range Modes {
		raw, err := encodeMode(PropMode, m)
		require.NoError(t, err)
		v, ok := decodeBypass(raw)
		require.True(t, ok)
		assert.Equal(t, m.Bypass(), v)
	}
}

func TestState_JSON(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[4] = uint16(ModeAutoBypass)
	ft.bank[7] = 2
	d, _ := newTestDevice(t, ft)

	s := d.State(ctx)
	require.True(t, s.Available())

	b, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "auto_bypass", got["mode"])
	assert.Equal(t, true, got["bypass"])
	assert.Equal(t, float64(2), got["supply_speed"])
	assert.Nil(t, got["exhaust_speed"])
	assert.Equal(t, false, got["power"])

	n := s.Numeric()
	assert.Equal(t, float64(4), n[PropMode])
	assert.Equal(t, float64(1), n[PropBypass])
	_, ok := n[PropExhaustSpeed]
	assert.False(t, ok)
}

func TestState_UnavailableIsAllNull(t *testing.T) {
	ft := &fakeTransport{readErr: errors.New("down")}
	d, _ := newTestDevice(t, ft)

	s := d.State(ctx)
	assert.False(t, s.Available())
	for _, p := range Properties {
		_, ok := s.Value(p)
		assert.False(t, ok, p)
	}
}
