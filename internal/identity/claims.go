package identity

import "sync"

// Claims records which students own an active session across every client.
// A nil *Claims accepts every claim.
type Claims struct {
	mu       sync.Mutex
	sessions map[string]string
}

func NewClaims() *Claims {
	return &Claims{sessions: make(map[string]string)}
}

// Claim records sessionID for studentID. It fails with ErrSessionActive when
// the student already owns one.
func (c *Claims) Claim(studentID, sessionID string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[studentID]; ok {
		return ErrSessionActive
	}
	c.sessions[studentID] = sessionID
	return nil
}

// Swap replaces the student's claim from with to. It reports false when from
// is not the current claim.
func (c *Claims) Swap(studentID, from, to string) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.sessions[studentID]; !ok || cur != from {
		return false
	}
	c.sessions[studentID] = to
	return true
}

// Release drops the claim if it is still held for sessionID.
func (c *Claims) Release(studentID, sessionID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[studentID] == sessionID {
		delete(c.sessions, studentID)
	}
}

// Active returns the session the student currently owns.
func (c *Claims) Active(studentID string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.sessions[studentID]
	return id, ok
}
