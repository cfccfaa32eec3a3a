// internal/transport/client_test.go
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeLink struct {
	regs     []uint16
	readErr  error
	writeErr error
	reads    int
	writes   int
	closed   bool
}

func (f *fakeLink) ReadHoldingRegisters(addr, qty uint16) ([]byte, error) {
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return packRegisters(f.regs[addr : addr+qty]), nil
}

func (f *fakeLink) WriteSingleRegister(addr, value uint16) ([]byte, error) {
	f.writes++
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.regs[addr] = value
	return packRegisters([]uint16{value}), nil
}

func (f *fakeLink) Close() error {
	f.closed = true
	return nil
}

// fakeDialer fails with errs in order, then hands out link.
type fakeDialer struct {
	errs  []error
	link  *fakeLink
	calls int
}

func (d *fakeDialer) dial(_ Config, _ time.Duration) (link, error) {
	d.calls++
	if d.calls <= len(d.errs) {
		return nil, d.errs[d.calls-1]
	}
	return d.link, nil
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func newTestClient(t *testing.T, d *fakeDialer) *Client {
	t.Helper()
	c, err := New(Config{
		Host:           "127.0.0.1",
		RetryDelay:     5 * time.Millisecond,
		ConnectTimeout: time.Second,
	}, zerolog.Nop(), nil)
	require.NoError(t, err)
	c.dial = d.dial
	return c
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

// ---- tests ----

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{Host: "10.0.0.5"}, zerolog.Nop(), nil)
	require.NoError(t, err)

	cfg := c.Config()
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, uint8(DefaultUnitID), cfg.UnitID)
	assert.Equal(t, DefaultConnectAttempts, cfg.ConnectAttempts)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, "10.0.0.5:8899", cfg.Address())
	assert.False(t, c.Connected())
}

func TestNew_RequiresHost(t *testing.T) {
	_, err := New(Config{}, zerolog.Nop(), nil)
	require.Error(t, err)
}

func TestConnect_RetriesRefusedThenFails(t *testing.T) {
	d := &fakeDialer{errs: []error{refused(), refused(), refused()}}
	c := newTestClient(t, d)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.Equal(t, 3, d.calls)
	assert.False(t, c.Connected())
}

func TestConnect_SucceedsAfterRetry(t *testing.T) {
	d := &fakeDialer{
		errs: []error{refused(), &net.OpError{Op: "dial", Net: "tcp", Err: os.ErrDeadlineExceeded}},
		link: &fakeLink{},
	}
	c := newTestClient(t, d)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 3, d.calls)
	assert.True(t, c.Connected())
}

func TestConnect_Idempotent(t *testing.T) {
	d := &fakeDialer{link: &fakeLink{}}
	c := newTestClient(t, d)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, d.calls)
}

func TestConnect_UnexpectedErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	d := &fakeDialer{errs: []error{boom, boom, boom}}
	c := newTestClient(t, d)

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 1, d.calls)
}

func TestConnect_AbandonsWhenBudgetElapses(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = refused()
	}
	d := &fakeDialer{errs: errs}

	c, err := New(Config{
		Host:            "127.0.0.1",
		ConnectAttempts: 10,
		RetryDelay:      50 * time.Millisecond,
		ConnectTimeout:  120 * time.Millisecond,
	}, zerolog.Nop(), nil)
	require.NoError(t, err)
	c.dial = d.dial

	start := time.Now()
	err = c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionRefused)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, d.calls, 10)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnect_CancelledContextDoesNotDial(t *testing.T) {
	d := &fakeDialer{link: &fakeLink{}}
	c := newTestClient(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Connect(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Zero(t, d.calls)
	assert.False(t, c.Connected())
}

func TestConnect_CancelDuringRetryWait(t *testing.T) {
	d := &fakeDialer{errs: []error{refused(), refused(), refused()}}
	c, err := New(Config{
		Host:           "127.0.0.1",
		RetryDelay:     time.Second,
		ConnectTimeout: 5 * time.Second,
	}, zerolog.Nop(), nil)
	require.NoError(t, err)
	c.dial = d.dial

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	err = c.Connect(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.Equal(t, 1, d.calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRead_ConnectsLazily(t *testing.T) {
	l := &fakeLink{regs: []uint16{1, 2, 3, 4}}
	d := &fakeDialer{link: l}
	c := newTestClient(t, d)

	regs, err := c.ReadHoldingRegisters(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{2, 3, 4}, regs)
	assert.Equal(t, 1, d.calls)
}

func TestRead_RejectsBadQuantity(t *testing.T) {
	d := &fakeDialer{link: &fakeLink{}}
	c := newTestClient(t, d)

	_, err := c.ReadHoldingRegisters(context.Background(), 0, 0)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.ReadHoldingRegisters(context.Background(), 0, MaxReadQuantity+1)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, d.calls)
}

func TestRead_ProtocolErrorKeepsLink(t *testing.T) {
	l := &fakeLink{readErr: &modbus.ModbusError{FunctionCode: 0x83, ExceptionCode: modbus.ExceptionCodeIllegalDataAddress}}
	c := newTestClient(t, &fakeDialer{link: l})

	regs, err := c.ReadHoldingRegisters(context.Background(), 0, 2)
	require.Error(t, err)
	assert.Nil(t, regs)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, byte(3), pe.Function)
	assert.Equal(t, byte(2), pe.Exception)
	assert.Equal(t, uint16(2), pe.Code())
	assert.False(t, IsRetryable(err))

	assert.True(t, c.Connected())
	assert.False(t, l.closed)
}

func TestRead_ConnectionErrorDropsLink(t *testing.T) {
	l := &fakeLink{regs: []uint16{7, 8}, readErr: io.EOF}
	d := &fakeDialer{link: l}
	c := newTestClient(t, d)

	_, err := c.ReadHoldingRegisters(context.Background(), 0, 2)
	require.ErrorIs(t, err, ErrConnection)
	assert.False(t, c.Connected())
	assert.True(t, l.closed)

	// next call redials
	l.readErr = nil
	regs, err := c.ReadHoldingRegisters(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{7, 8}, regs)
	assert.Equal(t, 2, d.calls)
}

func TestRead_TimeoutClassified(t *testing.T) {
	l := &fakeLink{readErr: &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}}
	c := newTestClient(t, &fakeDialer{link: l})

	_, err := c.ReadHoldingRegisters(context.Background(), 0, 1)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsRetryable(err))
}

func TestWrite_Success(t *testing.T) {
	l := &fakeLink{regs: make([]uint16, 10)}
	c := newTestClient(t, &fakeDialer{link: l})

	require.NoError(t, c.WriteSingleRegister(context.Background(), 4, 1))
	assert.Equal(t, uint16(1), l.regs[4])
	assert.Equal(t, 1, l.writes)
}

func TestWrite_ProtocolErrorReturnedAsValue(t *testing.T) {
	l := &fakeLink{regs: make([]uint16, 10), writeErr: &modbus.ModbusError{FunctionCode: 0x86, ExceptionCode: modbus.ExceptionCodeIllegalDataValue}}
	c := newTestClient(t, &fakeDialer{link: l})

	err := c.WriteSingleRegister(context.Background(), 4, 9)
	require.True(t, IsProtocol(err))
	assert.True(t, c.Connected())
}

func TestClose_Safe(t *testing.T) {
	l := &fakeLink{}
	c := newTestClient(t, &fakeDialer{link: l})

	require.NoError(t, c.Close())
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, l.closed)
	assert.False(t, c.Connected())
}
