package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrAttemptNotFound = errors.New("auth attempt not found")

type attempt struct {
	challenge *Challenge
	lastUsed  time.Time
}

// Attempts tracks in-flight challenges by attempt id so a client can drive one
// across several requests.
type Attempts struct {
	mu       sync.Mutex
	attempts map[string]*attempt
	newFn    func() *Challenge
	idleTTL  time.Duration
}

// NewAttempts builds a registry creating challenges with opts. Attempts idle
// longer than idleTTL are evicted by the janitor.
func NewAttempts(opts Options, idleTTL time.Duration) *Attempts {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Attempts{
		attempts: make(map[string]*attempt),
		newFn:    func() *Challenge { return NewChallenge(opts) },
		idleTTL:  idleTTL,
	}
}

func (a *Attempts) Begin() (string, *Challenge) {
	id := uuid.NewString()
	ch := a.newFn()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts[id] = &attempt{challenge: ch, lastUsed: time.Now().UTC()}
	return id, ch
}

func (a *Attempts) Get(id string) (*Challenge, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	at.lastUsed = time.Now().UTC()
	return at.challenge, nil
}

// Finish drops an attempt, typically once it has been granted.
func (a *Attempts) Finish(id string) {
	a.mu.Lock()
	at, ok := a.attempts[id]
	delete(a.attempts, id)
	a.mu.Unlock()
	if ok {
		at.challenge.Close()
	}
}

func (a *Attempts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attempts)
}

func (a *Attempts) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Sweep(time.Now().UTC())
			}
		}
	}()
}

// Sweep evicts granted attempts and those idle since before now-idleTTL. It
// returns the number evicted.
func (a *Attempts) Sweep(now time.Time) int {
	var evicted []*Challenge
	a.mu.Lock()
	for id, at := range a.attempts {
		if now.Sub(at.lastUsed) < a.idleTTL && at.challenge.State().Phase != PhaseGranted {
			continue
		}
		evicted = append(evicted, at.challenge)
		delete(a.attempts, id)
	}
	a.mu.Unlock()

	for _, ch := range evicted {
		ch.Close()
	}
	return len(evicted)
}
