package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSourceIsDeterministicPerSeed(t *testing.T) {
	src := NewSimulatedSource(SimulatedConfig{HeadMovementProbability: 0.3, DeviceProbability: 0.1, Seed: 42})
	a := src.Begin("session-1")
	b := src.Begin("session-1")
	now := time.Now()
	for i := 0; i < 200; i++ {
		assert.Equal(t, a.Next(now), b.Next(now), "tick %d", i)
	}
}

func TestSimulatedSourceRatesApproximateProbabilities(t *testing.T) {
	src := NewSimulatedSource(SimulatedConfig{HeadMovementProbability: 0.3, DeviceProbability: 0.1, Seed: 7})
	seq := src.Begin("session-rates")
	const ticks = 10000
	var head, device int
	now := time.Now()
	for i := 0; i < ticks; i++ {
		for _, ev := range seq.Next(now) {
			switch ev.Kind {
			case KindHeadMovement:
				head++
			case KindDeviceDetection:
				device++
			}
		}
	}
	assert.InDelta(t, 0.3, float64(head)/ticks, 0.03)
	assert.InDelta(t, 0.1, float64(device)/ticks, 0.03)
}

func TestSimulatedSourceExtremes(t *testing.T) {
	always := NewSimulatedSource(SimulatedConfig{HeadMovementProbability: 1, DeviceProbability: 1, Seed: 1}).Begin("s")
	now := time.Now()
	events := always.Next(now)
	require.Len(t, events, 2)
	assert.Equal(t, KindHeadMovement, events[0].Kind)
	assert.Equal(t, KindDeviceDetection, events[1].Kind)
	assert.Equal(t, now, events[0].OccurredAt)

	never := NewSimulatedSource(SimulatedConfig{HeadMovementProbability: 0, DeviceProbability: 0, Seed: 1}).Begin("s")
	for i := 0; i < 100; i++ {
		assert.Empty(t, never.Next(now))
	}
}

func TestSimulatedSequenceClosedYieldsNothing(t *testing.T) {
	seq := NewSimulatedSource(SimulatedConfig{HeadMovementProbability: 1, DeviceProbability: 1, Seed: 3}).Begin("s")
	seq.Close()
	assert.Empty(t, seq.Next(time.Now()))
}

func TestScriptedSourceReplaysAndInjects(t *testing.T) {
	src := NewScriptedSource(
		[]Kind{KindHeadMovement},
		nil,
		[]Kind{KindHeadMovement, KindDeviceDetection},
	)
	seq := src.Begin("s1")
	now := time.Now()

	assert.Len(t, seq.Next(now), 1)
	assert.Empty(t, seq.Next(now))
	assert.Len(t, seq.Next(now), 2)
	assert.Empty(t, seq.Next(now))

	src.Inject(KindDeviceDetection)
	events := seq.Next(now)
	require.Len(t, events, 1)
	assert.Equal(t, KindDeviceDetection, events[0].Kind)

	seq.Close()
	src.Inject(KindHeadMovement)
	assert.Empty(t, seq.Next(now))

	fresh := src.Begin("s2")
	assert.Len(t, fresh.Next(now), 1)
	assert.Equal(t, 2, src.Begun())
}

func TestRepeat(t *testing.T) {
	batches := Repeat(KindHeadMovement, 3)
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Equal(t, []Kind{KindHeadMovement}, b)
	}
}
