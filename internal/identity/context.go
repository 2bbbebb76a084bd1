// Package identity holds who is signed in for one client and whether they
// currently own a monitored session. A Context is created per client and passed
// explicitly; it is bound when a challenge is granted and cleared on logout.
package identity

import (
	"errors"
	"sync"
	"time"

	"github.com/ent0n29/proctor/internal/store"
)

var (
	ErrNotBound      = errors.New("no identity is bound")
	ErrSessionActive = errors.New("identity already owns an active session")
)

type Context struct {
	mu            sync.RWMutex
	student       *store.Student
	boundAt       time.Time
	activeSession string
}

func New() *Context { return &Context{} }

// Bind sets the signed-in student. Rebinding replaces a previous identity but
// keeps any active session claim, which belongs to the lifecycle.
func (c *Context) Bind(s store.Student) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := s
	c.student = &st
	c.boundAt = time.Now().UTC()
}

func (c *Context) Current() (store.Student, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.student == nil {
		return store.Student{}, false
	}
	return *c.student, true
}

func (c *Context) BoundAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.boundAt
}

// ClaimSession records sessionID as this identity's active session.
func (c *Context) ClaimSession(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.student == nil {
		return ErrNotBound
	}
	if c.activeSession != "" {
		return ErrSessionActive
	}
	c.activeSession = sessionID
	return nil
}

// ReleaseSession drops the claim if it is still held for sessionID.
func (c *Context) ReleaseSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeSession == sessionID {
		c.activeSession = ""
	}
}

// SwapSession replaces the claim from with to. It reports false when from is
// not the current claim.
func (c *Context) SwapSession(from, to string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeSession != from || from == "" {
		return false
	}
	c.activeSession = to
	return true
}

func (c *Context) ActiveSession() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeSession
}

// Clear signs the identity out. Callers stop any active session first.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.student = nil
	c.boundAt = time.Time{}
	c.activeSession = ""
}
