// internal/poller/types.go
package poller

import "time"

// PollResult is the outcome of one poll cycle.
// Values are not carried: observers of the device see them.
type PollResult struct {
	DeviceID string
	At       time.Time
	Duration time.Duration

	Err error // non-nil means the poll cycle failed and the cache is absent
}

// OK reports whether the cycle succeeded.
func (r PollResult) OK() bool {
	return r.Err == nil
}
