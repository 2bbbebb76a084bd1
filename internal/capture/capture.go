// Package capture abstracts the camera a monitored session holds open.
// Pixels are never inspected here; the device is a scoped resource that must
// be released on every exit path.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("camera access denied")
	ErrUnknownStream    = errors.New("unknown capture stream")
)

// Constraints describes the requested video stream.
type Constraints struct {
	Width  int
	Height int
	Audio  bool
}

// DefaultConstraints matches the 640x480 video-only stream used for monitoring.
func DefaultConstraints() Constraints {
	return Constraints{Width: 640, Height: 480}
}

// Stream is an acquired device handle.
type Stream struct {
	ID          string
	Constraints Constraints
}

type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	Release(s Stream) error
}

// MockDevice hands out fake streams and tracks which are still open.
type MockDevice struct {
	mu       sync.Mutex
	deny     bool
	open     map[string]Stream
	acquired int
	released int
}

func NewMockDevice() *MockDevice {
	return &MockDevice{open: make(map[string]Stream)}
}

// NewDeniedDevice returns a device whose every acquisition fails with
// ErrPermissionDenied.
func NewDeniedDevice() *MockDevice {
	d := NewMockDevice()
	d.deny = true
	return d
}

// SetDenied toggles permission for later acquisitions.
func (d *MockDevice) SetDenied(deny bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deny = deny
}

func (d *MockDevice) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return Stream{}, fmt.Errorf("acquire camera: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deny {
		return Stream{}, ErrPermissionDenied
	}
	s := Stream{ID: uuid.NewString(), Constraints: c}
	d.open[s.ID] = s
	d.acquired++
	return s, nil
}

func (d *MockDevice) Release(s Stream) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.open[s.ID]; !ok {
		return ErrUnknownStream
	}
	delete(d.open, s.ID)
	d.released++
	return nil
}

// OpenStreams reports how many acquired streams have not been released.
func (d *MockDevice) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// Counts returns the total number of acquisitions and releases.
func (d *MockDevice) Counts() (acquired, released int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired, d.released
}

// NoDevice is used when no camera is configured. Acquisition always reports
// ErrPermissionDenied so sessions run in degraded display mode.
type NoDevice struct{}

func (NoDevice) Acquire(context.Context, Constraints) (Stream, error) {
	return Stream{}, ErrPermissionDenied
}

func (NoDevice) Release(Stream) error { return ErrUnknownStream }
