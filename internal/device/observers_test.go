// internal/device/observers_test.go
package device

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe_RefreshAndWriteEvents(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	var got []Event
	cancel := d.Subscribe(func(ev Event) { got = append(got, ev) })

	_, ok := d.Power(ctx)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, EventRefreshed, got[0].Kind)
	assert.Equal(t, "unit-1", got[0].DeviceID)
	assert.Empty(t, got[0].Property)

	// cache hit: no event
	_, _ = d.Power(ctx)
	require.Len(t, got, 1)

	require.NoError(t, d.SetPower(ctx, true))
	require.Len(t, got, 2)
	assert.Equal(t, EventWritten, got[1].Kind)
	assert.Equal(t, PropPower, got[1].Property)
	require.NotNil(t, got[1].State.Power)
	assert.True(t, *got[1].State.Power)

	cancel()
	require.NoError(t, d.Refresh(ctx, true))
	assert.Len(t, got, 2)
	assert.Zero(t, d.obs.size())
}

func TestSubscribe_NoEventOnFailure(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	var got []Event
	d.Subscribe(func(ev Event) { got = append(got, ev) })

	ft.writeErr = errors.New("nope")
	require.Error(t, d.SetPower(ctx, true))

	ft.readErr = errors.New("nope")
	require.Error(t, d.Refresh(ctx, true))

	assert.Empty(t, got)
}

func TestSubscribe_ObserverMayCallBack(t *testing.T) {
	ft := &fakeTransport{}
	ft.bank[16] = 200
	d, _ := newTestDevice(t, ft)

	var temp float64
	d.Subscribe(func(ev Event) {
		// lock is released before observers run
		temp, _ = d.Temperature(ctx)
	})

	require.NoError(t, d.Refresh(ctx, true))
	assert.InDelta(t, 20.0, temp, 1e-9)
}

// ---- weak observers ----

type panel struct {
	label *string
	seen  []EventKind
}

func observeFromPanel(d *Device, calls *int) {
	p := &panel{label: new(string)}
	Observe(d, p, func(p *panel, ev Event) {
		*calls++
		p.seen = append(p.seen, ev.Kind)
	})
}

func TestObserve_DoesNotKeepOwnerAlive(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	calls := 0
	observeFromPanel(d, &calls)
	require.Equal(t, 1, d.obs.size())

	for i := 0; i < 5; i++ {
		runtime.GC()
	}

	require.NoError(t, d.Refresh(ctx, true))
	assert.Zero(t, calls)
	assert.Zero(t, d.obs.size(), "collected owner is unregistered")
}

func TestObserve_LiveOwnerReceivesEvents(t *testing.T) {
	ft := &fakeTransport{}
	d, _ := newTestDevice(t, ft)

	p := &panel{label: new(string)}
	cancel := Observe(d, p, func(p *panel, ev Event) {
		p.seen = append(p.seen, ev.Kind)
	})

	runtime.GC()
	require.NoError(t, d.Refresh(ctx, true))
	require.NoError(t, d.SetMode(ctx, ModeTimer))
	assert.Equal(t, []EventKind{EventRefreshed, EventWritten}, p.seen)

	cancel()
	require.NoError(t, d.Refresh(ctx, true))
	assert.Len(t, p.seen, 2)
	runtime.KeepAlive(p)
}
