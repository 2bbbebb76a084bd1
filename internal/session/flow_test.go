package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/proctor/internal/audio"
	"github.com/ent0n29/proctor/internal/auth"
	"github.com/ent0n29/proctor/internal/capture"
	"github.com/ent0n29/proctor/internal/detection"
	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/logging"
	"github.com/ent0n29/proctor/internal/risk"
	"github.com/ent0n29/proctor/internal/store"
)

func TestRegisterAuthenticateMonitorStop(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()

	registrar := auth.NewRegistrar(st, nil, logging.Discard())
	sample := audio.EncodeWAVPCM16LE(audio.Silence(2*time.Second, 8000), 8000)
	alice, err := registrar.Register(ctx, auth.RegistrationRequest{Name: "Alice", Email: "alice@x.com", Sample: sample})
	require.NoError(t, err)

	ch := auth.NewChallenge(auth.Options{Finder: st, Matcher: auth.FixedMatcher(true), Logger: logging.Discard()})
	defer ch.Close()
	require.NoError(t, ch.SubmitIdentity(ctx, "alice"))
	require.Equal(t, auth.PhaseAwaitingResponse, ch.State().Phase)

	ident := identity.New()
	grant, err := ch.SubmitResponse(ctx, ident, sample)
	require.NoError(t, err)
	require.Equal(t, auth.PhaseGranted, ch.State().Phase)
	assert.Equal(t, alice.ID, grant.Student.ID)

	src := detection.NewScriptedSource()
	dev := capture.NewMockDevice()
	lc := NewLifecycle(fastConfig(), Deps{Store: st, Source: src, Device: dev, Logger: logging.Discard()})

	sess, err := lc.Start(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, sess.Status)
	assert.Equal(t, 100, sess.TrustScore)

	for i := 0; i < 6; i++ {
		src.Inject(detection.KindHeadMovement)
	}
	snap := waitFor(t, lc, func(s Snapshot) bool { return s.Session.HeadMovementCount == 6 })
	assert.LessOrEqual(t, snap.Session.TrustScore, 70)
	assert.True(t, hasAdvisory(snap, AdvisoryExcessiveMovement))

	final, stopped, err := lc.Stop(ctx)
	require.NoError(t, err)
	require.True(t, stopped)
	assert.Equal(t, risk.FinalStatus(final.CheatingPercentage), final.Status)
	assert.Equal(t, store.StatusCompleted, final.Status)
	require.NotNil(t, final.EndTime)

	history, err := st.ListSessionsForStudent(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, final.Status, history[0].Status)
	assert.Equal(t, 6, history[0].HeadMovementCount)
	assert.NotNil(t, history[0].EndTime)
	assert.Equal(t, 0, dev.OpenStreams())
}

func TestFiveMovementsRaiseNoAdvisory(t *testing.T) {
	f := newFixture(t, fastConfig(), detection.NewScriptedSource(detection.Repeat(detection.KindHeadMovement, 5)...), nil)
	_, err := f.lc.Start(context.Background(), f.ident)
	require.NoError(t, err)
	snap := waitFor(t, f.lc, func(s Snapshot) bool { return s.Session.HeadMovementCount == 5 })
	assert.False(t, hasAdvisory(snap, AdvisoryExcessiveMovement))
	assert.Equal(t, risk.TierMedium, snap.Tier)
	assert.Equal(t, risk.GaugeCaution, snap.Gauge)
}
