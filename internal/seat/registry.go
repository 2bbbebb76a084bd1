// Package seat maps bearer tokens to a signed-in identity and the lifecycle
// that runs its monitored sessions. Each seat is isolated: its own identity
// context, its own timers and counters.
package seat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/session"
	"github.com/ent0n29/proctor/internal/store"
)

var ErrNotFound = errors.New("seat not found")

type Seat struct {
	Token          string
	Identity       *identity.Context
	Lifecycle      *session.Lifecycle
	IssuedAt       time.Time
	LastActivityAt time.Time
}

type Registry struct {
	mu                sync.RWMutex
	seats             map[string]*Seat
	newLifecycle      func() *session.Lifecycle
	inactivityTimeout time.Duration
	onExpire          func(*Seat)
}

// NewRegistry builds a registry creating one lifecycle per seat with
// newLifecycle. Seats idle longer than inactivityTimeout with no active
// session are signed out by the janitor.
func NewRegistry(newLifecycle func() *session.Lifecycle, inactivityTimeout time.Duration) *Registry {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Registry{
		seats:             make(map[string]*Seat),
		newLifecycle:      newLifecycle,
		inactivityTimeout: inactivityTimeout,
	}
}

func (r *Registry) SetExpireHook(hook func(*Seat)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

// Issue opens a seat for an identity that has just been granted.
func (r *Registry) Issue(ident *identity.Context) *Seat {
	now := time.Now().UTC()
	s := &Seat{
		Token:          uuid.NewString(),
		Identity:       ident,
		Lifecycle:      r.newLifecycle(),
		IssuedAt:       now,
		LastActivityAt: now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seats[s.Token] = s
	return s
}

// Get returns the seat for token and marks it active.
func (r *Registry) Get(token string) (*Seat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.seats[token]
	if !ok {
		return nil, ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return s, nil
}

// Logout stops the seat's active session, clears its identity and forgets it.
func (r *Registry) Logout(ctx context.Context, token string) (store.Session, bool, error) {
	r.mu.Lock()
	s, ok := r.seats[token]
	delete(r.seats, token)
	r.mu.Unlock()
	if !ok {
		return store.Session{}, false, ErrNotFound
	}
	return s.Lifecycle.Logout(ctx, s.Identity)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seats)
}

// ActiveCount reports seats with a session currently running.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.seats {
		if s.Lifecycle.Active() {
			count++
		}
	}
	return count
}

func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
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
				r.expireInactive(ctx, time.Now().UTC())
			}
		}
	}()
}

// Close logs every seat out, finalizing any running session.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	seats := make([]*Seat, 0, len(r.seats))
	for token, s := range r.seats {
		seats = append(seats, s)
		delete(r.seats, token)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range seats {
		if _, _, err := s.Lifecycle.Logout(ctx, s.Identity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) expireInactive(ctx context.Context, now time.Time) {
	var expired []*Seat

	r.mu.Lock()
	for token, s := range r.seats {
		if now.Sub(s.LastActivityAt) < r.inactivityTimeout {
			continue
		}
		// A running session keeps its seat.
		if s.Lifecycle.Active() {
			continue
		}
		expired = append(expired, s)
		delete(r.seats, token)
	}
	hook := r.onExpire
	r.mu.Unlock()

	for _, s := range expired {
		_, _, _ = s.Lifecycle.Logout(ctx, s.Identity)
		if hook != nil {
			hook(s)
		}
	}
}
