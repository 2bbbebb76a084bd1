package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDeviceAcquireRelease(t *testing.T) {
	d := NewMockDevice()
	s, err := d.Acquire(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	assert.Equal(t, 640, s.Constraints.Width)
	assert.Equal(t, 1, d.OpenStreams())

	require.NoError(t, d.Release(s))
	assert.Equal(t, 0, d.OpenStreams())
	assert.ErrorIs(t, d.Release(s), ErrUnknownStream)

	acquired, released := d.Counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestDeniedDevice(t *testing.T) {
	d := NewDeniedDevice()
	_, err := d.Acquire(context.Background(), DefaultConstraints())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 0, d.OpenStreams())

	d.SetDenied(false)
	_, err = d.Acquire(context.Background(), DefaultConstraints())
	assert.NoError(t, err)
}

func TestAcquireHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockDevice().Acquire(ctx, DefaultConstraints())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoDevice(t *testing.T) {
	_, err := NoDevice{}.Acquire(context.Background(), DefaultConstraints())
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
