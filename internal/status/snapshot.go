// internal/status/snapshot.go
package status

import "encoding/json"

// Snapshot represents exactly what the writers are allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}

type snapshotJSON struct {
	Health         string `json:"health"`
	HealthCode     uint16 `json:"health_code"`
	LastErrorCode  uint16 `json:"last_error_code"`
	SecondsInError uint16 `json:"seconds_in_error"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Health:         HealthName(s.Health),
		HealthCode:     s.Health,
		LastErrorCode:  s.LastErrorCode,
		SecondsInError: s.SecondsInError,
	})
}
