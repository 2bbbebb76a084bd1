package session

import (
	"time"

	"github.com/ent0n29/proctor/internal/capture"
	"github.com/ent0n29/proctor/internal/risk"
	"github.com/ent0n29/proctor/internal/store"
)

type AdvisoryKind string

const (
	AdvisoryExcessiveMovement AdvisoryKind = "excessive_movement"
	AdvisoryProhibitedDevice  AdvisoryKind = "prohibited_device"
	AdvisoryCameraDenied      AdvisoryKind = "camera_denied"
)

const (
	msgExcessiveMovement = "Excessive head movement detected!"
	msgProhibitedDevice  = "Mobile phone detected! This is strictly monitored."
	msgCameraDenied      = "Camera access denied. Please enable camera permissions."
	msgCameraUnavailable = "Camera unavailable. Monitoring continues without video."
)

// Advisory is a transient notice. A zero ExpiresAt lasts until the session ends.
type Advisory struct {
	Kind      AdvisoryKind `json:"kind"`
	Message   string       `json:"message"`
	RaisedAt  time.Time    `json:"raised_at"`
	ExpiresAt time.Time    `json:"expires_at,omitempty"`
}

func (a Advisory) expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// Snapshot is the live view of a lifecycle's current or most recent session.
type Snapshot struct {
	Session         store.Session `json:"session"`
	Active          bool          `json:"active"`
	ElapsedSeconds  int64         `json:"elapsed_seconds"`
	Tier            risk.Tier     `json:"tier"`
	Gauge           risk.Gauge    `json:"gauge"`
	CameraAvailable bool          `json:"camera_available"`
	Advisories      []Advisory    `json:"advisories"`
}

type UpdateType string

const (
	UpdateSnapshot        UpdateType = "snapshot"
	UpdateAdvisory        UpdateType = "advisory"
	UpdateAdvisoryCleared UpdateType = "advisory_cleared"
	UpdateEnded           UpdateType = "ended"
)

// Update is pushed to subscribers as the session evolves.
type Update struct {
	Type     UpdateType
	Snapshot Snapshot
	Advisory *Advisory
}

// Config tunes a Lifecycle. Zero fields take the defaults below.
type Config struct {
	DetectionInterval         time.Duration
	ElapsedInterval           time.Duration
	MovementAdvisoryThreshold int
	MovementAdvisoryTTL       time.Duration
	DeviceAdvisoryTTL         time.Duration
	CaptureConstraints        capture.Constraints
	SubscriberBuffer          int
}

func DefaultConfig() Config {
	return Config{
		DetectionInterval:         2 * time.Second,
		ElapsedInterval:           time.Second,
		MovementAdvisoryThreshold: 5,
		MovementAdvisoryTTL:       3 * time.Second,
		DeviceAdvisoryTTL:         5 * time.Second,
		CaptureConstraints:        capture.DefaultConstraints(),
		SubscriberBuffer:          32,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DetectionInterval <= 0 {
		c.DetectionInterval = d.DetectionInterval
	}
	if c.ElapsedInterval <= 0 {
		c.ElapsedInterval = d.ElapsedInterval
	}
	if c.MovementAdvisoryThreshold <= 0 {
		c.MovementAdvisoryThreshold = d.MovementAdvisoryThreshold
	}
	if c.MovementAdvisoryTTL <= 0 {
		c.MovementAdvisoryTTL = d.MovementAdvisoryTTL
	}
	if c.DeviceAdvisoryTTL <= 0 {
		c.DeviceAdvisoryTTL = d.DeviceAdvisoryTTL
	}
	if c.CaptureConstraints == (capture.Constraints{}) {
		c.CaptureConstraints = d.CaptureConstraints
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	return c
}
