package auth

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ent0n29/proctor/internal/store"
)

// Matcher decides whether a spoken response belongs to the enrolled student.
type Matcher interface {
	Match(ctx context.Context, student store.Student, prompt string, sample []byte) (bool, error)
}

// DefaultMatchRate is the success probability of the simulated matcher.
const DefaultMatchRate = 0.9

// SimulatedMatcher accepts a response with a fixed probability. The sample is
// not inspected.
type SimulatedMatcher struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

// NewSimulatedMatcher builds a matcher succeeding with probability rate. Rates
// outside [0,1] fall back to DefaultMatchRate; a zero seed seeds from the clock.
func NewSimulatedMatcher(rate float64, seed uint64) *SimulatedMatcher {
	if rate < 0 || rate > 1 {
		rate = DefaultMatchRate
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimulatedMatcher{rate: rate, rng: rand.New(rand.NewPCG(seed, 0x5eed))}
}

func (m *SimulatedMatcher) Match(ctx context.Context, _ store.Student, _ string, _ []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.rate, nil
}

// FixedMatcher always returns the same verdict.
type FixedMatcher bool

func (f FixedMatcher) Match(ctx context.Context, _ store.Student, _ string, _ []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return bool(f), nil
}
