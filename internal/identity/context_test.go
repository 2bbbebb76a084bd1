package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/proctor/internal/store"
)

func TestContextBindClaimClear(t *testing.T) {
	c := New()
	_, ok := c.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, c.ClaimSession("s1"), ErrNotBound)

	c.Bind(store.Student{ID: "stu-1", Name: "Alice"})
	got, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "Alice", got.Name)
	assert.False(t, c.BoundAt().IsZero())

	require.NoError(t, c.ClaimSession("s1"))
	assert.ErrorIs(t, c.ClaimSession("s2"), ErrSessionActive)
	assert.Equal(t, "s1", c.ActiveSession())

	c.ReleaseSession("other")
	assert.Equal(t, "s1", c.ActiveSession())
	c.ReleaseSession("s1")
	assert.Empty(t, c.ActiveSession())

	require.NoError(t, c.ClaimSession("pending"))
	assert.False(t, c.SwapSession("other", "s3"))
	assert.True(t, c.SwapSession("pending", "s3"))
	assert.Equal(t, "s3", c.ActiveSession())
	c.Clear()
	_, ok = c.Current()
	assert.False(t, ok)
	assert.Empty(t, c.ActiveSession())
}

func TestClaimsAreKeyedByStudent(t *testing.T) {
	c := NewClaims()
	require.NoError(t, c.Claim("stu-1", "pending-a"))
	assert.ErrorIs(t, c.Claim("stu-1", "pending-b"), ErrSessionActive)
	require.NoError(t, c.Claim("stu-2", "pending-c"))

	assert.False(t, c.Swap("stu-1", "pending-b", "s1"))
	assert.True(t, c.Swap("stu-1", "pending-a", "s1"))
	id, ok := c.Active("stu-1")
	require.True(t, ok)
	assert.Equal(t, "s1", id)

	c.Release("stu-1", "pending-a")
	_, ok = c.Active("stu-1")
	assert.True(t, ok, "stale release must not drop a newer claim")
	c.Release("stu-1", "s1")
	_, ok = c.Active("stu-1")
	assert.False(t, ok)
	require.NoError(t, c.Claim("stu-1", "s2"))
}

func TestNilClaimsAcceptEverything(t *testing.T) {
	var c *Claims
	require.NoError(t, c.Claim("stu-1", "a"))
	require.NoError(t, c.Claim("stu-1", "b"))
	assert.True(t, c.Swap("stu-1", "a", "b"))
	c.Release("stu-1", "b")
	_, ok := c.Active("stu-1")
	assert.False(t, ok)
}
