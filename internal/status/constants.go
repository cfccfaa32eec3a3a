// internal/status/constants.go
package status

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy device.
const HealthOK uint16 = 1

// HealthError represents a device error state.
const HealthError uint16 = 2

// HealthStale represents a stale data state:
// the last poll succeeded but no poll has completed for too long.
const HealthStale uint16 = 3

// ---- LIMITS ----

// MaxSecondsInError is where seconds_in_error saturates. It never wraps.
const MaxSecondsInError uint16 = 65535

// ---- ERROR CODES ----

// ErrorCodeGeneric is reported for errors that carry no device code.
const ErrorCodeGeneric uint16 = 1

// HealthName returns the lower-case name of a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	default:
		return "invalid"
	}
}
