package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/proctor/internal/audio"
	"github.com/ent0n29/proctor/internal/logging"
	"github.com/ent0n29/proctor/internal/store"
)

func wavOf(d time.Duration) []byte {
	pcm := audio.Silence(d, 8000)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	return audio.EncodeWAVPCM16LE(pcm, 8000)
}

func TestRegisterCreatesStudentWithVoiceProfile(t *testing.T) {
	st := store.NewInMemoryStore()
	r := NewRegistrar(st, NewPromptPool(RegistrationPrompts, 3), logging.Discard())
	assert.Contains(t, RegistrationPrompts, r.EnrollmentPrompt())

	s, err := r.Register(context.Background(), RegistrationRequest{Name: " Alice ", Email: "alice@x.com", Sample: wavOf(2 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "Alice", s.Name)
	assert.True(t, strings.HasPrefix(s.VoiceProfileRef, "voice_"))
	assert.Len(t, s.VoiceProfileRef, len("voice_")+16)

	found, err := st.FindStudentByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)

	_, err = r.Register(context.Background(), RegistrationRequest{Name: "ALICE", Email: "a2@x.com", Sample: wavOf(2 * time.Second)})
	assert.ErrorIs(t, err, store.ErrDuplicateIdentity)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	r := NewRegistrar(store.NewInMemoryStore(), nil, logging.Discard())
	ctx := context.Background()

	_, err := r.Register(ctx, RegistrationRequest{Name: "", Email: "x@x.com", Sample: wavOf(time.Second)})
	assert.ErrorIs(t, err, ErrInvalidRegistration)
	assert.Contains(t, err.Error(), "name failed required")

	_, err = r.Register(ctx, RegistrationRequest{Name: "Bob", Email: "not-an-email", Sample: wavOf(time.Second)})
	assert.ErrorIs(t, err, ErrInvalidRegistration)

	_, err = r.Register(ctx, RegistrationRequest{Name: "Bob", Email: "bob@x.com"})
	assert.ErrorIs(t, err, ErrInvalidRegistration)

	_, err = r.Register(ctx, RegistrationRequest{Name: "Bob", Email: "bob@x.com", Sample: []byte("garbage")})
	assert.ErrorIs(t, err, ErrInvalidRegistration)
	assert.ErrorIs(t, err, audio.ErrNotWAV)

	_, err = r.Register(ctx, RegistrationRequest{Name: "Bob", Email: "bob@x.com", Sample: wavOf(500 * time.Millisecond)})
	assert.ErrorIs(t, err, ErrSampleTooShort)

	// Two bytes at a claimed 1 Hz would otherwise count as a full second.
	_, err = r.Register(ctx, RegistrationRequest{Name: "Bob", Email: "bob@x.com", Sample: audio.EncodeWAVPCM16LE([]byte{0, 0}, 1)})
	assert.ErrorIs(t, err, ErrInvalidRegistration)
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}
