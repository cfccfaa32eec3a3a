// internal/status/tracker.go
package status

import (
	"errors"
	"sync"
	"time"

	"github.com/tamzrod/freshair-modbus/internal/poller"
)

// Tracker folds poll results and a 1 Hz tick into a Snapshot.
// Apply and Tick report whether the snapshot changed so writers
// only deliver on change.
type Tracker struct {
	mu sync.Mutex

	snap   Snapshot
	lastOK time.Time

	// staleAfter turns OK into Stale when no poll succeeded for that long; zero disables.
	staleAfter time.Duration
	now        func() time.Time
}

// NewTracker starts in HealthUnknown.
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{
		snap:       Snapshot{Health: HealthUnknown},
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Apply records one poll result.
func (t *Tracker) Apply(res poller.PollResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.snap
	if res.Err == nil {
		// Recovery / OK: reset error code and seconds-in-error.
		next = Snapshot{Health: HealthOK}
		t.lastOK = t.now()
	} else {
		next.Health = HealthError
		next.LastErrorCode = ErrorCode(res.Err)
		// NOTE: seconds_in_error increments on the 1Hz ticker only.
	}

	changed := next != t.snap
	t.snap = next
	return changed
}

// Tick advances the 1 Hz clock: OK may go stale, and every non-OK
// second is counted until MaxSecondsInError.
func (t *Tracker) Tick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	if t.snap.Health == HealthOK && t.staleAfter > 0 && t.now().Sub(t.lastOK) > t.staleAfter {
		t.snap.Health = HealthStale
		changed = true
	}

	if t.snap.Health != HealthOK && t.snap.SecondsInError < MaxSecondsInError {
		t.snap.SecondsInError++
		changed = true
	}
	return changed
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns ErrorCodeGeneric.
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }
	type coderC interface{ ModbusCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}
	var c coderC
	if errors.As(err, &c) {
		return c.ModbusCode()
	}

	return ErrorCodeGeneric
}
