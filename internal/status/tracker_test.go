// internal/status/tracker_test.go
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/freshair-modbus/internal/poller"
	"github.com/tamzrod/freshair-modbus/internal/transport"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker(0)
	assert.Equal(t, Snapshot{Health: HealthUnknown}, tr.Snapshot())

	// boot state counts as not OK
	assert.True(t, tr.Tick())
	assert.Equal(t, uint16(1), tr.Snapshot().SecondsInError)

	assert.True(t, tr.Apply(poller.PollResult{}))
	assert.Equal(t, Snapshot{Health: HealthOK}, tr.Snapshot())

	assert.False(t, tr.Apply(poller.PollResult{}), "no change on repeated success")
	assert.False(t, tr.Tick(), "ok does not tick")

	pe := &transport.ProtocolError{Function: 3, Exception: 2}
	assert.True(t, tr.Apply(poller.PollResult{Err: fmt.Errorf("refresh: %w", pe)}))
	assert.Equal(t, Snapshot{Health: HealthError, LastErrorCode: 2}, tr.Snapshot())

	tr.Tick()
	tr.Tick()
	assert.Equal(t, uint16(2), tr.Snapshot().SecondsInError)

	assert.True(t, tr.Apply(poller.PollResult{Err: errors.New("boom")}))
	assert.Equal(t, Snapshot{Health: HealthError, LastErrorCode: 1, SecondsInError: 2}, tr.Snapshot())

	assert.True(t, tr.Apply(poller.PollResult{}))
	assert.Equal(t, Snapshot{Health: HealthOK}, tr.Snapshot())
}

func TestTracker_SecondsSaturate(t *testing.T) {
	tr := NewTracker(0)
	tr.Apply(poller.PollResult{Err: errors.New("down")})
	tr.snap.SecondsInError = MaxSecondsInError - 1

	assert.True(t, tr.Tick())
	assert.Equal(t, MaxSecondsInError, tr.Snapshot().SecondsInError)
	assert.False(t, tr.Tick())
	assert.Equal(t, MaxSecondsInError, tr.Snapshot().SecondsInError)
}

func TestTracker_Stale(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(time.Minute)
	tr.now = func() time.Time { return now }

	tr.Apply(poller.PollResult{})
	now = now.Add(59 * time.Second)
	assert.False(t, tr.Tick())

	now = now.Add(2 * time.Second)
	assert.True(t, tr.Tick())
	s := tr.Snapshot()
	assert.Equal(t, HealthStale, s.Health)
	assert.Equal(t, uint16(1), s.SecondsInError)

	assert.True(t, tr.Apply(poller.PollResult{}))
	assert.Equal(t, HealthOK, tr.Snapshot().Health)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, uint16(0), ErrorCode(nil))
	assert.Equal(t, uint16(1), ErrorCode(errors.New("x")))
	assert.Equal(t, uint16(1), ErrorCode(fmt.Errorf("wrap: %w", transport.ErrConnectionRefused)))
	assert.Equal(t, uint16(4), ErrorCode(&transport.ProtocolError{Function: 6, Exception: 4}))
}

func TestSnapshot_JSON(t *testing.T) {
	b, err := json.Marshal(Snapshot{Health: HealthError, LastErrorCode: 2, SecondsInError: 9})
	require.NoError(t, err)
	assert.JSONEq(t, `{"health":"error","health_code":2,"last_error_code":2,"seconds_in_error":9}`, string(b))
}
