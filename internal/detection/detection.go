// Package detection defines the contract between a monitored session and
// whatever produces behavioral detections for it, plus a simulated source.
package detection

import "time"

type Kind string

const (
	KindHeadMovement    Kind = "head_movement"
	KindDeviceDetection Kind = "device_detection"
)

// Event is a single detection. Events are consumed once and never persisted
// individually.
type Event struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Source hands out one detection sequence per monitored session.
type Source interface {
	Begin(sessionID string) Sequence
}

// Sequence is a lazy, unbounded stream of detections sampled once per tick.
// After Close it yields nothing; a new session must call Source.Begin again.
type Sequence interface {
	// Next returns the events observed for the tick at the given instant. It
	// may return none.
	Next(at time.Time) []Event
	Close()
}
