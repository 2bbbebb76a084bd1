package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/proctor/internal/risk"
	"github.com/ent0n29/proctor/internal/store"
)

func TestSimulatePrintsFinalSession(t *testing.T) {
	var out bytes.Buffer
	err := simulate(context.Background(), &out, simulateOptions{
		name:     "Sim",
		duration: 100 * time.Millisecond,
		interval: 10 * time.Millisecond,
		headProb: 1,
		devProb:  0,
		seed:     7,
	})
	require.NoError(t, err)

	text := out.String()
	require.Contains(t, text, "started for Sim")
	start := strings.Index(text, "{")
	require.GreaterOrEqual(t, start, 0)

	var final struct {
		store.Session
		Tier risk.Tier `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(text[start:]), &final))
	assert.Equal(t, "Sim", final.StudentName)
	assert.NotNil(t, final.EndTime)
	assert.Positive(t, final.HeadMovementCount)
	assert.Equal(t, risk.Score(final.HeadMovementCount, 0).TrustScore, final.TrustScore)
	assert.Equal(t, risk.TierFor(final.TrustScore), final.Tier)
}

func TestSimulateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := simulate(ctx, &out, simulateOptions{
		name:     "Sim",
		duration: time.Hour,
		interval: 10 * time.Millisecond,
		denyCam:  true,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"status": "completed"`)
}
