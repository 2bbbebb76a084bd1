// Package auth gates monitored sessions behind a two-step challenge: the
// student names themselves, then answers a randomly drawn voice prompt.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/proctor/internal/identity"
	"github.com/ent0n29/proctor/internal/observability"
	"github.com/ent0n29/proctor/internal/store"
	"github.com/ent0n29/proctor/internal/traces"
)

type Phase string

const (
	PhaseAwaitingIdentity Phase = "awaiting_identity"
	PhaseAwaitingResponse Phase = "awaiting_challenge_response"
	PhaseGranted          Phase = "granted"
	PhaseDenied           Phase = "denied"
)

var (
	ErrIdentityNotFound  = errors.New("no student matches that name")
	ErrChallengeMismatch = errors.New("voice response did not match")
	ErrInvalidPhase      = errors.New("operation not allowed in current challenge phase")
)

// DefaultDenialResetDelay is how long a denial is shown before the challenge
// returns to awaiting identity.
const DefaultDenialResetDelay = 3 * time.Second

// StudentFinder is the lookup a challenge needs from the store.
type StudentFinder interface {
	FindStudentByName(ctx context.Context, name string) (store.Student, error)
}

// State is a point-in-time view of a challenge.
type State struct {
	Phase          Phase          `json:"phase"`
	Prompt         string         `json:"prompt,omitempty"`
	Student        *store.Student `json:"student,omitempty"`
	AttemptsFailed int            `json:"attempts_failed"`
	LastError      string         `json:"last_error,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Grant is returned once the challenge succeeds.
type Grant struct {
	Student   store.Student
	GrantedAt time.Time
}

type Options struct {
	Finder           StudentFinder
	Matcher          Matcher
	Prompts          *PromptPool
	DenialResetDelay time.Duration
	Logger           *slog.Logger
	Metrics          *observability.Metrics
}

// Challenge is one authentication attempt. Calls are serialized; the only
// background activity is the timer that resets a denial.
type Challenge struct {
	finder     StudentFinder
	matcher    Matcher
	prompts    *PromptPool
	resetDelay time.Duration
	log        *slog.Logger
	metrics    *observability.Metrics

	mu        sync.Mutex
	phase     Phase
	prompt    string
	student   *store.Student
	failed    int
	lastErr   error
	updatedAt time.Time

	// gen invalidates reset timers and in-flight matches that were overtaken.
	gen        uint64
	resetTimer *time.Timer
}

func NewChallenge(opts Options) *Challenge {
	if opts.Matcher == nil {
		opts.Matcher = NewSimulatedMatcher(DefaultMatchRate, 0)
	}
	if opts.Prompts == nil {
		opts.Prompts = NewPromptPool(LoginPrompts, 0)
	}
	if opts.DenialResetDelay <= 0 {
		opts.DenialResetDelay = DefaultDenialResetDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Challenge{
		finder:     opts.Finder,
		matcher:    opts.Matcher,
		prompts:    opts.Prompts,
		resetDelay: opts.DenialResetDelay,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		phase:      PhaseAwaitingIdentity,
		updatedAt:  time.Now().UTC(),
	}
}

func (c *Challenge) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Phase:          c.phase,
		Prompt:         c.prompt,
		AttemptsFailed: c.failed,
		UpdatedAt:      c.updatedAt,
	}
	if c.student != nil {
		s := *c.student
		st.Student = &s
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// SubmitIdentity looks the student up by name, case-insensitively. It is
// accepted while awaiting identity and while a denial is still displayed.
func (c *Challenge) SubmitIdentity(ctx context.Context, name string) error {
	ctx, span := traces.StartSpan(ctx, "auth.submit_identity")
	defer span.End()

	c.mu.Lock()
	if c.phase != PhaseAwaitingIdentity && c.phase != PhaseDenied {
		phase := c.phase
		c.mu.Unlock()
		traces.Fail(span, ErrInvalidPhase)
		return fmt.Errorf("submit identity in %s: %w", phase, ErrInvalidPhase)
	}
	c.stopResetLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	name = strings.TrimSpace(name)
	var (
		student store.Student
		err     error
	)
	if name == "" {
		err = store.ErrNotFound
	} else {
		student, err = c.finder.FindStudentByName(ctx, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrInvalidPhase
	}
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			// The displayed denial still resets on its own.
			if c.phase == PhaseDenied {
				c.denyLocked(c.lastErr)
			}
			traces.Fail(span, err)
			return fmt.Errorf("find student: %w", err)
		}
		c.student = nil
		c.prompt = ""
		c.denyLocked(ErrIdentityNotFound)
		c.metrics.Auth("identity_not_found")
		c.log.Info("auth identity not found")
		traces.Fail(span, ErrIdentityNotFound)
		return ErrIdentityNotFound
	}

	c.student = &student
	c.prompt = c.prompts.Draw()
	c.lastErr = nil
	c.setPhaseLocked(PhaseAwaitingResponse)
	span.SetAttributes(traces.StudentID(student.ID))
	return nil
}

// SubmitResponse runs the matcher against the current prompt. On success ident
// is bound to the student and the challenge becomes terminal.
func (c *Challenge) SubmitResponse(ctx context.Context, ident *identity.Context, sample []byte) (Grant, error) {
	ctx, span := traces.StartSpan(ctx, "auth.submit_response")
	defer span.End()

	c.mu.Lock()
	if c.phase != PhaseAwaitingResponse {
		phase := c.phase
		c.mu.Unlock()
		traces.Fail(span, ErrInvalidPhase)
		return Grant{}, fmt.Errorf("submit response in %s: %w", phase, ErrInvalidPhase)
	}
	gen := c.gen
	student := *c.student
	prompt := c.prompt
	c.mu.Unlock()
	span.SetAttributes(traces.StudentID(student.ID))

	ok, err := c.matcher.Match(ctx, student, prompt, sample)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.phase != PhaseAwaitingResponse {
		return Grant{}, ErrInvalidPhase
	}
	if err != nil {
		traces.Fail(span, err)
		return Grant{}, fmt.Errorf("match response: %w", err)
	}
	if !ok {
		c.failed++
		c.denyLocked(ErrChallengeMismatch)
		c.metrics.Auth("challenge_mismatch")
		c.log.Info("auth challenge mismatch", "student_id", student.ID, "attempts_failed", c.failed)
		traces.Fail(span, ErrChallengeMismatch)
		return Grant{}, ErrChallengeMismatch
	}

	c.gen++
	c.prompt = ""
	c.lastErr = nil
	c.setPhaseLocked(PhaseGranted)
	if ident != nil {
		ident.Bind(student)
	}
	c.metrics.Auth("granted")
	c.log.Info("auth granted", "student_id", student.ID)
	return Grant{Student: student, GrantedAt: c.updatedAt}, nil
}

// NewPrompt draws a fresh prompt for the identified student. After a mismatch
// it returns the challenge to awaiting a response without re-entering identity.
func (c *Challenge) NewPrompt() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.phase == PhaseAwaitingResponse:
	case c.phase == PhaseDenied && c.student != nil:
		c.stopResetLocked()
		c.lastErr = nil
	default:
		return "", ErrInvalidPhase
	}
	c.gen++
	c.prompt = c.prompts.Draw()
	c.setPhaseLocked(PhaseAwaitingResponse)
	return c.prompt, nil
}

// Cancel abandons the pending prompt and returns to awaiting identity.
func (c *Challenge) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseAwaitingResponse && c.phase != PhaseDenied {
		return ErrInvalidPhase
	}
	c.stopResetLocked()
	c.gen++
	c.resetLocked()
	c.metrics.Auth("cancelled")
	return nil
}

// Close stops the pending reset timer, if any.
func (c *Challenge) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopResetLocked()
	c.gen++
}

func (c *Challenge) denyLocked(err error) {
	c.lastErr = err
	c.setPhaseLocked(PhaseDenied)
	gen := c.gen
	c.resetTimer = time.AfterFunc(c.resetDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.phase != PhaseDenied {
			return
		}
		c.resetTimer = nil
		c.resetLocked()
	})
}

func (c *Challenge) resetLocked() {
	c.prompt = ""
	c.student = nil
	c.lastErr = nil
	c.setPhaseLocked(PhaseAwaitingIdentity)
}

func (c *Challenge) stopResetLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

func (c *Challenge) setPhaseLocked(p Phase) {
	c.phase = p
	c.updatedAt = time.Now().UTC()
}
